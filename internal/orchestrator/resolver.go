package orchestrator

import (
	"strings"

	"boardroom/internal/models"
)

// mentionSigil introduces a mention token: "@Marcus review this".
const mentionSigil = '@'

// Resolver decides which agents are addressed by a user message. Mentions
// fully override the ambient selection for the turn; the ambient selection
// itself is never changed here.
type Resolver struct{}

// NewResolver creates a resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve computes the ordered target set for one turn.
//
// Mention tokens are matched case-insensitively as substrings against each
// known agent's first name, surname, and role. One or more matches replace the
// ambient set for this turn; ambiguous tokens add every agent they match. If
// the resulting set is empty the first known agent responds, so a turn always
// yields at least one reply.
func (r *Resolver) Resolve(text string, ambient, known []models.Agent) []models.Agent {
	targets := ambient

	if mentioned := r.matchMentions(text, known); len(mentioned) > 0 {
		targets = mentioned
	}

	if len(targets) == 0 && len(known) > 0 {
		targets = known[:1]
	}

	return targets
}

// matchMentions scans for sigil-prefixed tokens and collects every known
// agent any token matches, preserving roster order and de-duplicating.
func (r *Resolver) matchMentions(text string, known []models.Agent) []models.Agent {
	var tokens []string
	for _, word := range strings.Fields(text) {
		if len(word) > 1 && word[0] == mentionSigil {
			token := strings.ToLower(strings.Trim(word[1:], ".,!?;:"))
			if token != "" {
				tokens = append(tokens, token)
			}
		}
	}
	if len(tokens) == 0 {
		return nil
	}

	matched := make(map[string]bool)
	var out []models.Agent
	for _, agent := range known {
		if matched[agent.ID] {
			continue
		}
		first := strings.ToLower(agent.FirstName)
		last := strings.ToLower(agent.LastName)
		role := strings.ToLower(agent.Role)
		for _, token := range tokens {
			if strings.Contains(first, token) || strings.Contains(last, token) || strings.Contains(role, token) {
				matched[agent.ID] = true
				out = append(out, agent)
				break
			}
		}
	}
	return out
}
