package api

import (
	"errors"

	"github.com/fathima-sithara/realtime-service/internal/chat"
	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type sendMessageRequest struct {
	RecipientID     string `json:"recipientId" validate:"required"`
	Message         string `json:"message" validate:"required"`
	ClientMessageID string `json:"clientMessageId" validate:"omitempty,max=64"`
}

type markReadRequest struct {
	SenderID string `json:"senderId" validate:"required"`
}

// GET /api/chat/conversations/:recipientId
func (h *handler) history(c *fiber.Ctx) error {
	msgs, err := h.chat.History(c.UserContext(), userID(c), c.Params("recipientId"))
	if err != nil {
		return h.chatError(c, err, "Failed to fetch messages")
	}
	return c.JSON(fiber.Map{"success": true, "messages": msgs})
}

// POST /api/chat/messages
func (h *handler) sendMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Recipient ID and message are required")
	}
	msg, err := h.chat.Send(c.UserContext(), userID(c), chat.SendInput{
		RecipientID:     req.RecipientID,
		Body:            req.Message,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		return h.chatError(c, err, "Failed to send message")
	}
	h.chat.AnnounceFallback(c.UserContext(), msg)
	return c.JSON(fiber.Map{"success": true, "message": msg})
}

// POST /api/chat/messages/read
func (h *handler) markRead(c *fiber.Ctx) error {
	var req markReadRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Sender ID is required")
	}
	n, err := h.chat.MarkRead(c.UserContext(), userID(c), req.SenderID)
	if err != nil {
		return h.chatError(c, err, "Failed to mark messages as read")
	}
	return c.JSON(fiber.Map{"success": true, "count": n})
}

func (h *handler) chatError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fail(c, fiber.StatusBadRequest, domain.PublicMessage(err, fallback))
	case errors.Is(err, domain.ErrRecipientNotFound):
		return fail(c, fiber.StatusNotFound, domain.PublicMessage(err, fallback))
	default:
		h.log.Error("chat request failed", zap.String("path", c.Path()), zap.String("user_id", userID(c)), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, fallback)
	}
}
