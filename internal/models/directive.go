package models

import "time"

// Directive is a global rule injected into every agent's prompt while active.
// Directives override persona-level behavior.
type Directive struct {
	ID        string    `bson:"directiveId" json:"id"`
	UserID    string    `bson:"userId" json:"-"`
	Text      string    `bson:"text" json:"text"`
	Active    bool      `bson:"active" json:"active"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}

// CreateDirectiveRequest is the request body for adding a directive.
type CreateDirectiveRequest struct {
	Text string `json:"text"`
}

// ToggleDirectiveRequest flips a directive's active state.
type ToggleDirectiveRequest struct {
	Active bool `json:"active"`
}
