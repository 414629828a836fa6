package handlers

import (
	"github.com/gofiber/fiber/v2"

	"boardroom/internal/middleware"
	"boardroom/internal/models"
	"boardroom/internal/services"
)

// CanvasHandler handles the per-session shared canvas.
type CanvasHandler struct {
	canvas *services.CanvasService
}

// NewCanvasHandler creates a new canvas handler
func NewCanvasHandler(canvas *services.CanvasService) *CanvasHandler {
	return &CanvasHandler{canvas: canvas}
}

// Get returns the session's canvas document.
func (h *CanvasHandler) Get(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	return c.JSON(h.canvas.Get(userID, c.Params("id")))
}

// Update overwrites the canvas wholesale with a user edit.
func (h *CanvasHandler) Update(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req models.UpdateCanvasRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	return c.JSON(h.canvas.Update(userID, c.Params("id"), &req))
}

// Clear resets the canvas to empty.
func (h *CanvasHandler) Clear(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	h.canvas.Clear(userID, c.Params("id"))
	return c.JSON(fiber.Map{"success": true})
}

// Preview renders the canvas markdown to HTML.
func (h *CanvasHandler) Preview(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	html, err := h.canvas.RenderHTML(userID, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to render canvas"})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(html)
}
