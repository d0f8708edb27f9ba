package ws

import (
	"context"
	"errors"
	"time"

	"github.com/fathima-sithara/realtime-service/internal/auth"
	"github.com/fathima-sithara/realtime-service/internal/chat"
	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/metrics"
	"github.com/fathima-sithara/realtime-service/internal/protocol"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const eventTimeout = 10 * time.Second

type identityResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// Server is the socket side of the delivery channel.
type Server struct {
	hub      *Hub
	chat     *chat.Service
	resolver identityResolver
	cfg      ClientConfig
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewServer(hub *Hub, chatSvc *chat.Service, resolver identityResolver, cfg ClientConfig, m *metrics.Metrics, log *zap.Logger) *Server {
	return &Server{hub: hub, chat: chatSvc, resolver: resolver, cfg: cfg.withDefaults(), metrics: m, log: log}
}

// Authenticate runs before the upgrade. Connections without a valid identity
// are refused with 401 and never join a room.
func (s *Server) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		token := c.Query("token")
		if token == "" {
			token = auth.ParseBearer(c.Get(fiber.HeaderAuthorization))
		}
		uid, err := s.resolver.Resolve(c.UserContext(), token)
		if err != nil {
			s.log.Info("socket authentication rejected", zap.String("ip", c.IP()), zap.Error(err))
			status := fiber.StatusUnauthorized
			if !errors.Is(err, domain.ErrUnauthorized) {
				status = fiber.StatusInternalServerError
			}
			return c.Status(status).JSON(fiber.Map{"success": false, "error": "Authentication error"})
		}
		c.Locals("user_id", uid)
		return c.Next()
	}
}

func (s *Server) Handler() fiber.Handler {
	return websocket.New(s.serve)
}

func (s *Server) serve(conn *websocket.Conn) {
	uid, _ := conn.Locals("user_id").(string)
	if uid == "" {
		_ = conn.Close()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewClient(uuid.NewString(), uid, conn, s.hub, s.cfg)
	s.hub.Register(client, protocol.RoomsFor(uid)...)
	s.log.Info("user connected", zap.String("user_id", uid), zap.String("conn_id", client.id))

	pctx, pcancel := context.WithTimeout(ctx, eventTimeout)
	if n, err := s.chat.PromotePending(pctx, uid); err != nil {
		s.log.Warn("connect promotion failed", zap.String("user_id", uid), zap.Error(err))
	} else if n > 0 {
		s.log.Debug("promoted pending messages", zap.String("user_id", uid), zap.Int("count", n))
	}
	pcancel()

	done := make(chan struct{})
	go func() {
		client.writePump()
		close(done)
	}()
	client.readPump(ctx, s)
	<-done
	s.log.Info("user disconnected", zap.String("user_id", uid), zap.String("conn_id", client.id))
}

// Dispatch handles one inbound frame from c.
func (s *Server) Dispatch(ctx context.Context, c *Client, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		c.sendError("Invalid event")
		return
	}
	if s.metrics != nil {
		s.metrics.InboundEvents.WithLabelValues(env.Type).Inc()
	}
	ctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()

	switch env.Type {
	case protocol.TypeSendMessage:
		s.onSendMessage(ctx, c, env)
	case protocol.TypeMarkRead:
		s.onMarkRead(ctx, c, env)
	case protocol.TypeTyping:
		s.onTyping(ctx, c, env)
	default:
		c.sendError("Unknown event: " + env.Type)
	}
}

func (s *Server) onSendMessage(ctx context.Context, c *Client, env *protocol.Envelope) {
	var p protocol.SendMessage
	if err := env.Bind(&p); err != nil || p.RecipientID == "" || p.Message == "" {
		c.sendError("Recipient ID and message are required")
		return
	}
	msg, err := s.chat.Send(ctx, c.userID, chat.SendInput{
		RecipientID:     p.RecipientID,
		Body:            p.Message,
		ClientMessageID: p.ClientMessageID,
	})
	if err != nil {
		s.logFailure("send_message", c, err)
		c.sendError(domain.PublicMessage(err, "Failed to send message"))
		return
	}
	s.chat.DeliverLive(ctx, msg)
}

func (s *Server) onMarkRead(ctx context.Context, c *Client, env *protocol.Envelope) {
	var p protocol.MarkRead
	if err := env.Bind(&p); err != nil {
		c.sendError("Sender ID is required")
		return
	}
	if err := p.Validate(); err != nil {
		c.sendError(domain.PublicMessage(err, "Sender ID is required"))
		return
	}
	n, err := s.chat.MarkRead(ctx, c.userID, p.SenderID)
	if err != nil {
		s.logFailure("mark_read", c, err)
		c.sendError(domain.PublicMessage(err, "Failed to mark messages as read"))
		return
	}
	_ = s.hub.EmitTo(c, protocol.MarkReadSuccess{Count: n})
}

func (s *Server) onTyping(ctx context.Context, c *Client, env *protocol.Envelope) {
	var p protocol.Typing
	if err := env.Bind(&p); err != nil {
		return
	}
	if err := p.Validate(); err != nil {
		return
	}
	_ = s.chat.Typing(ctx, c.userID, p.RecipientID, p.IsTyping)
}

func (s *Server) logFailure(event string, c *Client, err error) {
	if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrRecipientNotFound) {
		s.log.Debug("event rejected", zap.String("event", event), zap.String("user_id", c.userID), zap.Error(err))
		return
	}
	s.log.Error("event failed", zap.String("event", event), zap.String("user_id", c.userID), zap.Error(err))
}

func (c *Client) sendError(msg string) {
	_ = c.hub.EmitTo(c, protocol.Error{Message: msg})
}
