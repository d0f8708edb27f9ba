package api

import (
	"errors"

	"github.com/fathima-sithara/realtime-service/internal/chat"
	"github.com/fathima-sithara/realtime-service/internal/metrics"
	"github.com/fathima-sithara/realtime-service/internal/notify"
	"github.com/fathima-sithara/realtime-service/internal/ws"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

type Deps struct {
	Chat     *chat.Service
	Notify   *notify.Service
	Resolver identityResolver
	Socket   *ws.Server
	Metrics  *metrics.Metrics
	// RateLimit guards the REST routes when set.
	RateLimit fiber.Handler
	Log       *zap.Logger
}

type handler struct {
	chat     *chat.Service
	notify   *notify.Service
	validate *validator.Validate
	log      *zap.Logger
}

func NewServerApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New())
	app.Use(RequestLogger(d.Log))

	h := &handler{chat: d.Chat, notify: d.Notify, validate: validator.New(), log: d.Log}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))
	}
	if d.Socket != nil {
		app.Get("/ws", d.Socket.Authenticate(), d.Socket.Handler())
	}

	guards := []fiber.Handler{JWTAuth(d.Resolver, d.Log)}
	if d.RateLimit != nil {
		guards = append(guards, d.RateLimit)
	}

	chatGroup := app.Group("/api/chat", guards...)
	chatGroup.Get("/conversations/:recipientId", h.history)
	chatGroup.Post("/messages", h.sendMessage)
	chatGroup.Post("/messages/read", h.markRead)
	// paths used by released mobile clients
	chatGroup.Get("/messages/:recipientId", h.history)
	chatGroup.Post("/send", h.sendMessage)
	chatGroup.Post("/mark-read", h.markRead)

	if d.Notify != nil {
		n := app.Group("/api/notifications", guards...)
		n.Get("/", h.listNotifications)
		n.Get("/unread-count", h.unreadCount)
		n.Put("/read-all", h.markAllNotificationsRead)
		n.Put("/:id/read", h.markNotificationRead)
		n.Delete("/:id", h.deleteNotification)
	}
	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}
	return fail(c, code, msg)
}
