package orchestrator

import (
	"sort"
	"sync"
	"time"

	"boardroom/internal/models"
)

// ConversationStore holds the in-memory message list for the active session.
// It merges server-confirmed messages with locally pending or failed ones so
// nothing optimistically added disappears before its remote write settles.
//
// All methods are safe for concurrent use, though the turn scheduler is the
// only writer during a round.
type ConversationStore struct {
	mu        sync.Mutex
	sessionID string
	messages  []models.Message
	lastStamp int64
}

// NewConversationStore creates an empty store bound to no session.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{}
}

// Reset clears all messages and rebinds the store to a session. It must run
// synchronously when the active session changes, before the new session's
// remote listener attaches, so the previous session's messages never render
// under the new session's header.
func (s *ConversationStore) Reset(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
	s.messages = nil
	s.lastStamp = 0
}

// SessionID returns the session the store is currently bound to.
func (s *ConversationStore) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// NextTimestamp returns a logical clock value in Unix milliseconds,
// monotonically non-decreasing within the session.
func (s *ConversationStore) NextTimestamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextTimestampLocked()
}

func (s *ConversationStore) nextTimestampLocked() int64 {
	now := time.Now().UnixMilli()
	if now <= s.lastStamp {
		now = s.lastStamp + 1
	}
	s.lastStamp = now
	return now
}

// ApplyRemoteSnapshot replaces the confirmed partition with the given server
// list, keeping local pending/failed messages whose ids the server does not
// yet know about. The merged view is sorted by timestamp and contains no
// duplicate ids.
func (s *ConversationStore) ApplyRemoteSnapshot(serverMessages []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	serverIDs := make(map[string]bool, len(serverMessages))
	for _, m := range serverMessages {
		serverIDs[m.ID] = true
	}

	merged := make([]models.Message, 0, len(serverMessages)+4)
	merged = append(merged, serverMessages...)
	for _, m := range s.messages {
		if m.Status != "" && !serverIDs[m.ID] {
			merged = append(merged, m)
		}
	}

	sortMessages(merged)
	s.messages = merged
	for _, m := range merged {
		if m.Timestamp > s.lastStamp {
			s.lastStamp = m.Timestamp
		}
	}
}

// AppendLocal inserts a message with status=pending at the current logical
// time: the optimistic echo of a user send or agent reply before its
// persistence call resolves. If the message carries no timestamp one is
// assigned. Returns the stored copy.
func (s *ConversationStore) AppendLocal(msg models.Message) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.Status = models.MessageStatusPending
	if msg.Timestamp == 0 {
		msg.Timestamp = s.nextTimestampLocked()
	} else if msg.Timestamp > s.lastStamp {
		s.lastStamp = msg.Timestamp
	}
	s.messages = append(s.messages, msg)
	sortMessages(s.messages)
	return msg
}

// MarkConfirmed clears the status tag on an existing local entry in place once
// its persistence call succeeds. Identity is preserved.
func (s *ConversationStore) MarkConfirmed(id string) {
	s.setStatus(id, "")
}

// MarkFailed flips an existing local entry to failed. The message stays
// visible as immutable history but is excluded from future model context.
func (s *ConversationStore) MarkFailed(id string) {
	s.setStatus(id, models.MessageStatusFailed)
}

func (s *ConversationStore) setStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Status = status
			return
		}
	}
}

// Messages returns a copy of the full merged view, sorted by timestamp.
func (s *ConversationStore) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ContextMessages returns the most recent limit messages suitable for model
// context: failed messages are dropped. limit <= 0 means no cap.
func (s *ConversationStore) ContextMessages(limit int) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	usable := make([]models.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if m.Status == models.MessageStatusFailed {
			continue
		}
		usable = append(usable, m)
	}
	if limit > 0 && len(usable) > limit {
		usable = usable[len(usable)-limit:]
	}
	return usable
}

// sortMessages orders by timestamp ascending with a stable id tiebreak so the
// merged view has one deterministic order.
func sortMessages(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp != msgs[j].Timestamp {
			return msgs[i].Timestamp < msgs[j].Timestamp
		}
		return msgs[i].ID < msgs[j].ID
	})
}
