package handlers

import (
	"github.com/gofiber/fiber/v2"

	"boardroom/internal/middleware"
	"boardroom/internal/models"
	"boardroom/internal/services"
)

// DirectiveHandler handles standing directive CRUD.
type DirectiveHandler struct {
	directives *services.DirectiveService
}

// NewDirectiveHandler creates a new directive handler
func NewDirectiveHandler(directives *services.DirectiveService) *DirectiveHandler {
	return &DirectiveHandler{directives: directives}
}

// List returns all directives, active and inactive.
func (h *DirectiveHandler) List(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	directives, err := h.directives.List(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list directives"})
	}
	return c.JSON(fiber.Map{"directives": directives})
}

// Create adds a directive, active by default.
func (h *DirectiveHandler) Create(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req models.CreateDirectiveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	directive, err := h.directives.Create(c.Context(), userID, &req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(directive)
}

// Toggle flips a directive's active state.
func (h *DirectiveHandler) Toggle(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req models.ToggleDirectiveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.directives.SetActive(c.Context(), userID, c.Params("id"), req.Active); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Directive not found"})
	}
	return c.JSON(fiber.Map{"success": true})
}

// Delete removes a directive.
func (h *DirectiveHandler) Delete(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	if err := h.directives.Delete(c.Context(), userID, c.Params("id")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Directive not found"})
	}
	return c.JSON(fiber.Map{"success": true})
}
