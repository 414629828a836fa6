package models

import "time"

// CanvasDocument is the single shared scratchpad for a session: markdown
// content overwritten wholesale on each update, by the user or by an agent's
// canvas_update payload. There is no merge or diff semantics.
type CanvasDocument struct {
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	UpdatedBy string    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateCanvasRequest is the request body for a user edit of the canvas.
type UpdateCanvasRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}
