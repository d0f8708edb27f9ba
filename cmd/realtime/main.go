package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fathima-sithara/realtime-service/internal/api"
	"github.com/fathima-sithara/realtime-service/internal/auth"
	"github.com/fathima-sithara/realtime-service/internal/chat"
	"github.com/fathima-sithara/realtime-service/internal/config"
	"github.com/fathima-sithara/realtime-service/internal/discovery"
	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/events"
	"github.com/fathima-sithara/realtime-service/internal/logger"
	"github.com/fathima-sithara/realtime-service/internal/metrics"
	"github.com/fathima-sithara/realtime-service/internal/notify"
	"github.com/fathima-sithara/realtime-service/internal/presence"
	"github.com/fathima-sithara/realtime-service/internal/repository"
	"github.com/fathima-sithara/realtime-service/internal/ws"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Dev(), cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting realtime service", zap.String("node_id", cfg.App.NodeID), zap.String("store", cfg.App.Store))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// storage
	var (
		messages      repository.MessageStore
		users         repository.UserDirectory
		notifications repository.NotificationStore
		mongoClient   *mongo.Client
	)
	switch cfg.App.Store {
	case "memory":
		dir := repository.NewMemoryUserDirectory()
		for _, id := range cfg.App.SeedUsers {
			dir.Add(&domain.User{ID: id})
		}
		messages, users, notifications = repository.NewMemoryMessageStore(), dir, repository.NewMemoryNotificationStore()
	default:
		mongoClient, err = repository.NewMongoClient(ctx, cfg.Mongo.URI)
		if err != nil {
			log.Fatal("mongo connect failed", zap.Error(err))
		}
		db := mongoClient.Database(cfg.Mongo.Database)
		ms, err := repository.NewMongoMessageStore(db)
		if err != nil {
			log.Fatal("message store init failed", zap.Error(err))
		}
		ns, err := repository.NewMongoNotificationStore(db)
		if err != nil {
			log.Fatal("notification store init failed", zap.Error(err))
		}
		messages, users, notifications = ms, repository.NewMongoUserDirectory(db), ns
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	// redis backs cross-node presence, fan-out and the REST rate limit
	hubOpts := []ws.HubOption{ws.WithMetrics(m)}
	var (
		rdb       *redis.Client
		rateLimit fiber.Handler
	)
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rdb.Ping(pctx).Err(); err != nil {
			log.Fatal("redis ping failed", zap.Error(err))
		}
		cancel()
		hubOpts = append(hubOpts,
			ws.WithMirror(presence.NewMirror(rdb, cfg.Redis.Prefix, cfg.PresenceTTL)),
			ws.WithRelay(presence.NewRelay(rdb, cfg.Redis.Prefix, cfg.App.NodeID, log)),
		)
		rateLimit = api.NewRedisRateLimiter(rdb, cfg.Redis.Prefix, cfg.HTTP.RateLimitPerMin, time.Minute, log).Handler()
	} else {
		ipl := api.NewIPRateLimiter(cfg.HTTP.RateLimitPerMin, log)
		defer ipl.Close()
		rateLimit = ipl.Handler()
	}

	publisher := newPublisher(cfg, log)
	defer publisher.Close()

	hub := ws.NewHub(log.Named("ws"), hubOpts...)
	chatSvc := chat.NewService(messages, users, hub, hub, log.Named("chat"),
		chat.WithEvents(publisher),
		chat.WithMetrics(m),
		chat.WithMaxBody(cfg.Chat.MaxBodyLength),
	)
	notifySvc := notify.NewService(notifications, hub, publisher, m, log.Named("notify"))

	if cfg.Kafka.ConsumeRequests {
		consumer := notify.NewConsumer(notify.ConsumerConfig{
			Brokers:    cfg.Kafka.Brokers,
			Topic:      cfg.Kafka.TopicNotifications,
			GroupID:    cfg.Kafka.GroupID,
			DLQTopic:   cfg.Kafka.DLQTopic,
			MaxRetries: cfg.Kafka.MaxRetries,
			Backoff:    cfg.RetryBackoff,
		}, notifySvc, log.Named("consumer"))
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error("notification consumer stopped", zap.Error(err))
			}
		}()
	}

	jv, err := auth.NewJWTValidator(cfg.JWT.Alg, cfg.JWT.HSSecret, cfg.JWT.PublicKeyPath)
	if err != nil {
		log.Fatal("jwt validator init failed", zap.Error(err))
	}
	resolver := auth.NewResolver(jv, users)

	socket := ws.NewServer(hub, chatSvc, resolver, ws.ClientConfig{
		PingInterval:   cfg.PingInterval,
		PongWait:       cfg.PongWait,
		WriteDeadline:  cfg.WriteDeadline,
		MaxMessageSize: cfg.WS.MaxMessageSizeBytes,
		RateLimit:      cfg.WS.RateLimitPerSec,
		SendQueueSize:  cfg.WS.SendQueueSize,
	}, m, log.Named("ws"))

	app := api.NewServerApp(api.Deps{
		Chat:      chatSvc,
		Notify:    notifySvc,
		Resolver:  resolver,
		Socket:    socket,
		Metrics:   m,
		RateLimit: rateLimit,
		Log:       log.Named("http"),
	})

	registrar, err := discovery.NewRegistrar(cfg.Consul.Addr, cfg.Consul.ServiceName, cfg.Consul.ServiceHost, cfg.App.NodeID, log)
	if err != nil {
		log.Fatal("consul init failed", zap.Error(err))
	}

	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr()))
		if err := app.Listen(cfg.Addr()); err != nil {
			log.Fatal("server failed", zap.Error(err))
		}
	}()
	if registrar != nil {
		if err := registrar.Register(cfg.App.Port); err != nil {
			log.Warn("consul registration failed", zap.Error(err))
			registrar = nil
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received")

	if registrar != nil {
		registrar.Deregister()
	}
	stop()

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(sctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	hub.Shutdown()
	if rdb != nil {
		_ = rdb.Close()
	}
	if mongoClient != nil {
		_ = mongoClient.Disconnect(sctx)
	}
	log.Info("realtime service stopped")
}

func newPublisher(cfg *config.Config, log *zap.Logger) events.Publisher {
	var next events.Publisher
	switch cfg.Events.Broker {
	case "kafka":
		next = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	case "nats":
		p, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			log.Fatal("nats connect failed", zap.Error(err))
		}
		next = p
	default:
		return events.Noop{}
	}
	return events.WithBreaker(next, cfg.Events.Broker, events.BreakerConfig{
		MaxFailures: cfg.Breaker.MaxFailures,
		Interval:    time.Duration(cfg.Breaker.IntervalSeconds) * time.Second,
		Timeout:     time.Duration(cfg.Breaker.TimeoutSeconds) * time.Second,
	}, log)
}
