package handlers

import (
	"github.com/gofiber/fiber/v2"

	"boardroom/internal/middleware"
	"boardroom/internal/models"
	"boardroom/internal/services"
)

// KnowledgeHandler handles the knowledge base CRUD.
type KnowledgeHandler struct {
	knowledge *services.KnowledgeService
}

// NewKnowledgeHandler creates a new knowledge handler
func NewKnowledgeHandler(knowledge *services.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{knowledge: knowledge}
}

// List returns all knowledge items, newest first.
func (h *KnowledgeHandler) List(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	items, err := h.knowledge.List(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list knowledge items"})
	}
	return c.JSON(fiber.Map{"items": items})
}

// Create adds a knowledge item.
func (h *KnowledgeHandler) Create(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req models.CreateKnowledgeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	item, err := h.knowledge.Create(c.Context(), userID, &req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

// Delete removes a knowledge item.
func (h *KnowledgeHandler) Delete(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	if err := h.knowledge.Delete(c.Context(), userID, c.Params("id")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Knowledge item not found"})
	}
	return c.JSON(fiber.Map{"success": true})
}
