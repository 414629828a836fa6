package handlers

import (
	"github.com/gofiber/fiber/v2"

	"boardroom/internal/middleware"
	"boardroom/internal/models"
	"boardroom/internal/services"
)

// TaskHandler handles the task board CRUD.
type TaskHandler struct {
	tasks *services.TaskService
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(tasks *services.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// List returns all tasks, newest first.
func (h *TaskHandler) List(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	tasks, err := h.tasks.List(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list tasks"})
	}
	return c.JSON(fiber.Map{"tasks": tasks})
}

// Create adds a task to the board.
func (h *TaskHandler) Create(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req models.CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	task, err := h.tasks.Create(c.Context(), userID, &req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(task)
}

// UpdateStatus moves a task between board columns.
func (h *TaskHandler) UpdateStatus(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req models.UpdateTaskStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	task, err := h.tasks.UpdateStatus(c.Context(), userID, c.Params("id"), req.Status)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(task)
}

// Delete removes a task.
func (h *TaskHandler) Delete(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	if err := h.tasks.Delete(c.Context(), userID, c.Params("id")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Task not found"})
	}
	return c.JSON(fiber.Map{"success": true})
}
