package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"boardroom/internal/database"
	"boardroom/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db          *database.MongoDB
	connManager *services.ConnectionManager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.MongoDB, connManager *services.ConnectionManager) *HealthHandler {
	return &HealthHandler{db: db, connManager: connManager}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	status := "healthy"
	if h.db != nil {
		if err := h.db.Ping(c.Context()); err != nil {
			status = "degraded"
		}
	}
	return c.JSON(fiber.Map{
		"status":      status,
		"connections": h.connManager.Count(),
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}
