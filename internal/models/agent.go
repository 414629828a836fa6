package models

import "time"

// Agent is a configured persona: a named role with its own behavioral
// contract. Built-in seed personas have IsCustom=false; user-created ones are
// custom and deletable.
type Agent struct {
	ID                string    `bson:"agentId" json:"id"`
	UserID            string    `bson:"userId" json:"-"`
	FirstName         string    `bson:"firstName" json:"first_name"`
	LastName          string    `bson:"lastName" json:"last_name"`
	Role              string    `bson:"role" json:"role"`
	Expertise         string    `bson:"expertise,omitempty" json:"expertise,omitempty"`
	SystemInstruction string    `bson:"systemInstruction" json:"system_instruction"`
	Backstory         string    `bson:"backstory,omitempty" json:"backstory,omitempty"`
	Avatar            string    `bson:"avatar,omitempty" json:"avatar,omitempty"`
	VoiceID           string    `bson:"voiceId,omitempty" json:"voice_id,omitempty"`
	IsCustom          bool      `bson:"isCustom" json:"is_custom"`
	CreatedAt         time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt         time.Time `bson:"updatedAt" json:"updated_at"`
}

// FullName returns the agent's display name.
func (a *Agent) FullName() string {
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// CreateAgentRequest is the request body for creating or updating an agent.
type CreateAgentRequest struct {
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Role              string `json:"role"`
	Expertise         string `json:"expertise"`
	SystemInstruction string `json:"system_instruction"`
	Backstory         string `json:"backstory"`
	Avatar            string `json:"avatar"`
	VoiceID           string `json:"voice_id"`
}
