package models

// Message delivery status values. A confirmed message carries no status tag at
// all — status is only materialized for the pending and failed states.
const (
	MessageStatusPending = "pending"
	MessageStatusFailed  = "failed"
)

// Sender kinds
const (
	SenderUser   = "user"
	SenderAgent  = "agent"
	SenderSystem = "system"
)

// Message represents a single conversational turn within a chat session.
// The client generates the ID; the timestamp is a per-session logical clock in
// Unix milliseconds, monotonically non-decreasing.
type Message struct {
	ID             string           `bson:"messageId" json:"id"`
	SessionID      string           `bson:"sessionId" json:"session_id"`
	Sender         string           `bson:"sender" json:"sender"` // "user", "agent", "system"
	AgentID        string           `bson:"agentId,omitempty" json:"agent_id,omitempty"`
	SenderName     string           `bson:"senderName" json:"sender_name"`
	Text           string           `bson:"text" json:"text"`
	Timestamp      int64            `bson:"timestamp" json:"timestamp"` // Unix milliseconds
	Status         string           `bson:"status,omitempty" json:"status,omitempty"`
	Attachments    []Attachment     `bson:"attachments,omitempty" json:"attachments,omitempty"`
	Chart          *ChartData       `bson:"chart,omitempty" json:"chart,omitempty"`
	Email          *EmailDraft      `bson:"email,omitempty" json:"email,omitempty"`
	Meeting        *MeetingInvite   `bson:"meeting,omitempty" json:"meeting,omitempty"`
	CanvasAction   *CanvasUpdate    `bson:"canvasAction,omitempty" json:"canvas_action,omitempty"`
	Grounding      []GroundingChunk `bson:"grounding,omitempty" json:"grounding,omitempty"`
	ContextSummary string           `bson:"contextSummary,omitempty" json:"context_summary,omitempty"`
	Feedback       string           `bson:"feedback,omitempty" json:"feedback,omitempty"` // "up" or "down"
}

// IsConfirmed reports whether the message has settled on the server side.
func (m *Message) IsConfirmed() bool {
	return m.Status == ""
}

// Attachment is a binary part carried alongside message text, forwarded to the
// model as inline data.
type Attachment struct {
	MimeType string `bson:"mimeType" json:"mime_type"`
	Data     []byte `bson:"data" json:"data"`
	Filename string `bson:"filename,omitempty" json:"filename,omitempty"`
}

// GroundingChunk is citation metadata attached by the provider when web-search
// grounding was used for a reply.
type GroundingChunk struct {
	URI   string `bson:"uri" json:"uri"`
	Title string `bson:"title,omitempty" json:"title,omitempty"`
}

// SendMessageRequest is the request body for posting a user message to a session.
type SendMessageRequest struct {
	Text           string       `json:"text"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Model          string       `json:"model,omitempty"`
	DevilsAdvocate bool         `json:"devils_advocate,omitempty"`
	DeepResearch   bool         `json:"deep_research,omitempty"`
}

// FeedbackRequest tags a message with a thumbs up or down.
type FeedbackRequest struct {
	Feedback string `json:"feedback"` // "up", "down" or "" to clear
}
