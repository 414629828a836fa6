package models

import "time"

// Task statuses
const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusDone       = "done"
)

// Task priorities
const (
	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
)

// Task is a board item, created by the user or by an agent's new_task payload.
type Task struct {
	ID          string     `bson:"taskId" json:"id"`
	UserID      string     `bson:"userId" json:"-"`
	Title       string     `bson:"title" json:"title"`
	Description string     `bson:"description,omitempty" json:"description,omitempty"`
	Assignee    string     `bson:"assignee,omitempty" json:"assignee,omitempty"`
	Status      string     `bson:"status" json:"status"`
	Priority    string     `bson:"priority" json:"priority"`
	DueDate     *time.Time `bson:"dueDate,omitempty" json:"due_date,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt" json:"created_at"`
}

// CreateTaskRequest is the request body for creating a task.
type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Assignee    string `json:"assignee"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date"` // ISO 8601, optional
}

// UpdateTaskStatusRequest moves a task between board columns.
type UpdateTaskStatusRequest struct {
	Status string `json:"status"`
}
