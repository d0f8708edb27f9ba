package api

import (
	"errors"

	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/repository"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// GET /api/notifications?page=&limit=&unreadOnly=
func (h *handler) listNotifications(c *fiber.Ctx) error {
	uid := userID(c)
	q := repository.NotificationQuery{
		Page:       c.QueryInt("page", 1),
		Limit:      c.QueryInt("limit", 20),
		UnreadOnly: c.QueryBool("unreadOnly", false),
	}.Normalize()
	items, total, err := h.notify.List(c.UserContext(), uid, q)
	if err != nil {
		return h.internal(c, err, "Failed to fetch notifications")
	}
	unread, err := h.notify.UnreadCount(c.UserContext(), uid)
	if err != nil {
		return h.internal(c, err, "Failed to fetch notifications")
	}
	pages := (total + int64(q.Limit) - 1) / int64(q.Limit)
	return c.JSON(fiber.Map{
		"success":       true,
		"notifications": items,
		"pagination": fiber.Map{
			"page":  q.Page,
			"limit": q.Limit,
			"total": total,
			"pages": pages,
		},
		"unreadCount": unread,
	})
}

// GET /api/notifications/unread-count
func (h *handler) unreadCount(c *fiber.Ctx) error {
	n, err := h.notify.UnreadCount(c.UserContext(), userID(c))
	if err != nil {
		return h.internal(c, err, "Failed to fetch unread count")
	}
	return c.JSON(fiber.Map{"success": true, "count": n})
}

// PUT /api/notifications/:id/read
func (h *handler) markNotificationRead(c *fiber.Ctx) error {
	n, err := h.notify.MarkRead(c.UserContext(), userID(c), c.Params("id"))
	if errors.Is(err, domain.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "Notification not found")
	}
	if err != nil {
		return h.internal(c, err, "Failed to mark notification as read")
	}
	return c.JSON(fiber.Map{"success": true, "notification": n})
}

// PUT /api/notifications/read-all
func (h *handler) markAllNotificationsRead(c *fiber.Ctx) error {
	n, err := h.notify.MarkAllRead(c.UserContext(), userID(c))
	if err != nil {
		return h.internal(c, err, "Failed to mark all notifications as read")
	}
	return c.JSON(fiber.Map{"success": true, "updatedCount": n})
}

// DELETE /api/notifications/:id
func (h *handler) deleteNotification(c *fiber.Ctx) error {
	err := h.notify.Delete(c.UserContext(), userID(c), c.Params("id"))
	if errors.Is(err, domain.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "Notification not found")
	}
	if err != nil {
		return h.internal(c, err, "Failed to delete notification")
	}
	return c.JSON(fiber.Map{"success": true, "message": "Notification deleted"})
}

func (h *handler) internal(c *fiber.Ctx, err error, msg string) error {
	h.log.Error("notification request failed", zap.String("path", c.Path()), zap.Error(err))
	return fail(c, fiber.StatusInternalServerError, msg)
}
