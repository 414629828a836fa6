package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"boardroom/internal/middleware"
	"boardroom/internal/models"
	"boardroom/internal/services"
)

// slashActions maps control keywords to the local action a client should
// perform. Control inputs never reach the generation pipeline.
var slashActions = map[string]string{
	"clear":     "clear_session",
	"tasks":     "open_tasks",
	"knowledge": "open_knowledge",
	"canvas":    "open_canvas",
	"reload":    "reload",
}

// ChatHandler drives conversation turns.
type ChatHandler struct {
	turns    *services.TurnService
	sessions *services.SessionService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(turns *services.TurnService, sessions *services.SessionService) *ChatHandler {
	return &ChatHandler{turns: turns, sessions: sessions}
}

// SendMessage posts a user message to a session and runs the agent turn.
// Slash commands are intercepted before the pipeline and answered as local
// actions.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	sessionID := c.Params("id")

	var req models.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if action, ok := parseSlashCommand(req.Text); ok {
		if action == "clear_session" {
			if err := h.sessions.ClearMessages(c.Context(), userID, sessionID); err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to clear session"})
			}
			h.turns.DropRuntime(userID, sessionID)
		}
		return c.JSON(fiber.Map{"type": "local_action", "action": action})
	}

	result, err := h.turns.SendMessage(c.Context(), userID, sessionID, &req)
	if err != nil {
		status := fiber.StatusInternalServerError
		msg := err.Error()
		switch {
		case strings.Contains(msg, "too many requests"):
			status = fiber.StatusTooManyRequests
		case strings.Contains(msg, "not found"):
			status = fiber.StatusNotFound
		case strings.Contains(msg, "busy"), strings.Contains(msg, "turn already"):
			status = fiber.StatusConflict
		case strings.Contains(msg, "required"), strings.Contains(msg, "empty"):
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}

	return c.JSON(fiber.Map{
		"type":         "turn_complete",
		"user_message": result.UserMessage,
		"replies":      result.Replies,
		"cancelled":    result.Cancelled,
	})
}

// Stop sets the cancellation flag for the session's in-flight turn. Agents
// already answered keep their replies.
func (h *ChatHandler) Stop(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	h.turns.Stop(userID, c.Params("id"))
	return c.JSON(fiber.Map{"success": true})
}

// Transcript returns the session's merged message view, pending and failed
// local entries included.
func (h *ChatHandler) Transcript(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	messages, err := h.turns.Transcript(c.Context(), userID, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load transcript"})
	}
	return c.JSON(fiber.Map{"messages": messages})
}

// Feedback tags a message with a thumbs up or down, or clears the tag.
func (h *ChatHandler) Feedback(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req models.FeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Feedback != "up" && req.Feedback != "down" && req.Feedback != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "feedback must be up, down or empty"})
	}

	if err := h.sessions.SetFeedback(c.Context(), userID, c.Params("messageId"), req.Feedback); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Message not found"})
	}
	return c.JSON(fiber.Map{"success": true})
}

// parseSlashCommand reports whether the text is a control input and which
// local action it maps to. Unknown keywords fall through to the pipeline as
// ordinary text.
func parseSlashCommand(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return "", false
	}
	fields := strings.Fields(trimmed[1:])
	if len(fields) == 0 {
		return "", false
	}
	action, ok := slashActions[strings.ToLower(fields[0])]
	return action, ok
}
