package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"boardroom/internal/middleware"
	"boardroom/internal/models"
	"boardroom/internal/services"
)

// AgentHandler handles persona roster CRUD.
type AgentHandler struct {
	agents   *services.AgentService
	sessions *services.SessionService
}

// NewAgentHandler creates a new agent handler
func NewAgentHandler(agents *services.AgentService, sessions *services.SessionService) *AgentHandler {
	return &AgentHandler{agents: agents, sessions: sessions}
}

// List returns the user's full roster, seeding the built-in personas on first use.
func (h *AgentHandler) List(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	agents, err := h.agents.List(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list agents"})
	}
	return c.JSON(fiber.Map{"agents": agents})
}

// Get returns one agent by id.
func (h *AgentHandler) Get(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	agent, err := h.agents.Get(c.Context(), userID, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Agent not found"})
	}
	return c.JSON(agent)
}

// Create adds a custom persona to the roster.
func (h *AgentHandler) Create(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req models.CreateAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	agent, err := h.agents.Create(c.Context(), userID, &req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(agent)
}

// Update edits a persona.
func (h *AgentHandler) Update(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req models.CreateAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	agent, err := h.agents.Update(c.Context(), userID, c.Params("id"), &req)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(agent)
}

// Delete removes a custom persona. Built-in personas are protected.
func (h *AgentHandler) Delete(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	if err := h.agents.Delete(c.Context(), userID, c.Params("id")); err != nil {
		if strings.Contains(err.Error(), "built-in") {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true})
}

// OpenChat finds or creates the individual session for one agent, so
// switching to an agent in the sidebar reuses the same thread.
func (h *AgentHandler) OpenChat(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	agent, err := h.agents.Get(c.Context(), userID, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Agent not found"})
	}

	session, err := h.sessions.FindOrCreateIndividual(c.Context(), userID, agent)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to open chat"})
	}
	return c.JSON(session)
}
