package models

// Side-channel payloads agents may embed in their replies as fenced JSON
// blocks. Each kind is gated by a required top-level key; the orchestrator
// extracts them before the reply is displayed.

// KnowledgeEntry is the "new_kb_entry" payload: the agent contributes an item
// to the shared knowledge base.
type KnowledgeEntry struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Content  string `json:"content"`
}

// TaskRequest is the "new_task" payload: the agent files a task on the board.
type TaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Assignee    string `json:"assignee,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
}

// Chart types
const (
	ChartTypeBar  = "BAR"
	ChartTypeLine = "LINE"
	ChartTypePie  = "PIE"
)

// ChartData is the "chart_data" payload: a renderable chart spec.
type ChartData struct {
	Title    string         `bson:"title" json:"title"`
	Type     string         `bson:"type" json:"type"` // BAR, LINE, PIE
	Labels   []string       `bson:"labels" json:"labels"`
	Datasets []ChartDataset `bson:"datasets" json:"datasets"`
}

// ChartDataset is one series within a chart.
type ChartDataset struct {
	Label string    `bson:"label" json:"label"`
	Data  []float64 `bson:"data" json:"data"`
	Color string    `bson:"color,omitempty" json:"color,omitempty"`
}

// CanvasUpdate is the "canvas_update" payload: a wholesale overwrite of the
// session's shared canvas document.
type CanvasUpdate struct {
	Title   string `bson:"title" json:"title"`
	Content string `bson:"content" json:"content"`
}

// EmailDraft is the "draft_email" payload.
type EmailDraft struct {
	To      string `bson:"to" json:"to"`
	Subject string `bson:"subject" json:"subject"`
	Body    string `bson:"body" json:"body"`
}

// MeetingInvite is the "schedule_meeting" payload. Times are ISO 8601 strings
// as emitted by the model; they are passed through unparsed.
type MeetingInvite struct {
	Title       string `bson:"title" json:"title"`
	StartTime   string `bson:"startTime" json:"startTime"`
	EndTime     string `bson:"endTime" json:"endTime"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
	Location    string `bson:"location,omitempty" json:"location,omitempty"`
}
