package models

import "time"

// Session modes
const (
	ModeIndividual = "individual"
	ModeFocusGroup = "focus_group"
	ModeWholeSuite = "whole_suite"
)

// ChatSession is a persisted conversation thread with a fixed mode and a
// non-empty ordered participant list. Messages live in their own collection
// keyed by session id.
type ChatSession struct {
	ID             string    `bson:"sessionId" json:"id"`
	UserID         string    `bson:"userId" json:"-"`
	Title          string    `bson:"title" json:"title"`
	Mode           string    `bson:"mode" json:"mode"`
	ParticipantIDs []string  `bson:"participantIds" json:"participant_ids"`
	CreatedAt      time.Time `bson:"createdAt" json:"created_at"`
	LastActivityAt time.Time `bson:"lastActivityAt" json:"last_activity_at"`
}

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	Title          string   `json:"title"`
	Mode           string   `json:"mode"`
	ParticipantIDs []string `json:"participant_ids"`
}

// ToggleParticipantRequest adds or removes an agent from a group session's
// live target set.
type ToggleParticipantRequest struct {
	AgentID string `json:"agent_id"`
}
