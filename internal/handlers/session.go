package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"boardroom/internal/middleware"
	"boardroom/internal/models"
	"boardroom/internal/services"
)

// SessionHandler handles chat session lifecycle.
type SessionHandler struct {
	sessions *services.SessionService
	turns    *services.TurnService
	canvas   *services.CanvasService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *services.SessionService, turns *services.TurnService, canvas *services.CanvasService) *SessionHandler {
	return &SessionHandler{sessions: sessions, turns: turns, canvas: canvas}
}

// List returns the user's sessions, most recently active first.
func (h *SessionHandler) List(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	sessions, err := h.sessions.ListSessions(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list sessions"})
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}

// Create starts a new session.
func (h *SessionHandler) Create(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req models.CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	session, err := h.sessions.CreateSession(c.Context(), userID, &req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

// Get returns one session.
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	session, err := h.sessions.GetSession(c.Context(), userID, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	}
	return c.JSON(session)
}

// Delete removes a session, its messages and its canvas.
func (h *SessionHandler) Delete(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	sessionID := c.Params("id")

	if err := h.sessions.DeleteSession(c.Context(), userID, sessionID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	h.turns.DropRuntime(userID, sessionID)
	h.canvas.Clear(userID, sessionID)
	return c.JSON(fiber.Map{"success": true})
}

// ToggleParticipant adds or removes an agent from a group session. A session
// always keeps at least one participant.
func (h *SessionHandler) ToggleParticipant(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req models.ToggleParticipantRequest
	if err := c.BodyParser(&req); err != nil || req.AgentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "agent_id is required"})
	}

	session, err := h.sessions.ToggleParticipant(c.Context(), userID, c.Params("id"), req.AgentID)
	if err != nil {
		if strings.Contains(err.Error(), "last participant") {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(session)
}
