package models

import "time"

// Knowledge item categories
const (
	KnowledgeCategoryNote = "note"
	KnowledgeCategoryFile = "file"
	KnowledgeCategoryLink = "link"
)

// KnowledgeItem is a titled content unit forming the retrieval context
// injected into every agent prompt. Items are created by the user or emitted
// by an agent's new_kb_entry payload.
type KnowledgeItem struct {
	ID        string    `bson:"itemId" json:"id"`
	UserID    string    `bson:"userId" json:"-"`
	Title     string    `bson:"title" json:"title"`
	Category  string    `bson:"category" json:"category"`
	Content   string    `bson:"content" json:"content"`
	Source    string    `bson:"source,omitempty" json:"source,omitempty"` // agent name when agent-contributed
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}

// CreateKnowledgeRequest is the request body for adding a knowledge item.
type CreateKnowledgeRequest struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Content  string `json:"content"`
}
