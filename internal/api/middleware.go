package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fathima-sithara/realtime-service/internal/auth"
	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type identityResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// JWTAuth resolves the bearer token to an existing user and stores the id
// under the "user_id" local.
func JWTAuth(resolver identityResolver, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := auth.ParseBearer(c.Get(fiber.HeaderAuthorization))
		uid, err := resolver.Resolve(c.UserContext(), token)
		if err != nil {
			if errors.Is(err, domain.ErrUnauthorized) {
				return fail(c, fiber.StatusUnauthorized, "Authentication required")
			}
			log.Error("identity lookup failed", zap.Error(err))
			return fail(c, fiber.StatusInternalServerError, "Authentication failed")
		}
		c.Locals("user_id", uid)
		return c.Next()
	}
}

func userID(c *fiber.Ctx) string {
	uid, _ := c.Locals("user_id").(string)
	return uid
}

// RequestLogger logs one line per request.
func RequestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		log.Info("http request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", c.IP()),
		)
		return err
	}
}

// IPRateLimiter is an in-process token bucket per client IP.
type IPRateLimiter struct {
	visitors sync.Map
	rps      rate.Limit
	burst    int
	log      *zap.Logger
	stop     chan struct{}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanoseconds
}

func NewIPRateLimiter(perMinute int, log *zap.Logger) *IPRateLimiter {
	l := &IPRateLimiter{
		rps:   rate.Limit(float64(perMinute) / 60.0),
		burst: 5,
		log:   log,
		stop:  make(chan struct{}),
	}
	go l.cleanupVisitors()
	return l
}

func (l *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	v, ok := l.visitors.Load(ip)
	if !ok {
		v, _ = l.visitors.LoadOrStore(ip, &visitor{limiter: rate.NewLimiter(l.rps, l.burst)})
	}
	vi := v.(*visitor)
	vi.lastSeen.Store(time.Now().UnixNano())
	return vi.limiter
}

func (l *IPRateLimiter) cleanupVisitors() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-5 * time.Minute).UnixNano()
			l.visitors.Range(func(k, v interface{}) bool {
				if v.(*visitor).lastSeen.Load() < cutoff {
					l.visitors.Delete(k)
				}
				return true
			})
		}
	}
}

func (l *IPRateLimiter) Close() { close(l.stop) }

func (l *IPRateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := clientIP(c)
		if !l.getLimiter(ip).Allow() {
			l.log.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", c.Path()))
			return fail(c, fiber.StatusTooManyRequests, "Rate limit exceeded")
		}
		return c.Next()
	}
}

// RedisRateLimiter is a fixed-window counter shared by every instance.
type RedisRateLimiter struct {
	redis  *redis.Client
	prefix string
	limit  int
	window time.Duration
	log    *zap.Logger
}

func NewRedisRateLimiter(r *redis.Client, prefix string, limit int, window time.Duration, log *zap.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{redis: r, prefix: prefix, limit: limit, window: window, log: log}
}

func (r *RedisRateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := userID(c)
		if key == "" {
			key = clientIP(c)
		}
		redisKey := fmt.Sprintf("%s:ratelimit:%s", r.prefix, key)
		ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
		defer cancel()
		count, err := r.redis.Incr(ctx, redisKey).Result()
		if err != nil {
			// keep serving when redis is unavailable
			r.log.Warn("rate limiter unavailable", zap.Error(err))
			return c.Next()
		}
		if count == 1 {
			r.redis.Expire(ctx, redisKey, r.window)
		}
		if count > int64(r.limit) {
			return fail(c, fiber.StatusTooManyRequests, "Rate limit exceeded")
		}
		return c.Next()
	}
}

func clientIP(c *fiber.Ctx) string {
	ip := c.IP()
	if ip == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "error": msg})
}
