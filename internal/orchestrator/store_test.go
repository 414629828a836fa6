package orchestrator

import (
	"testing"

	"boardroom/internal/models"
)

func confirmed(id string, ts int64, text string) models.Message {
	return models.Message{ID: id, Sender: models.SenderUser, Text: text, Timestamp: ts}
}

func TestStore_AppendLocalAssignsPendingAndTimestamp(t *testing.T) {
	s := NewConversationStore()
	s.Reset("sess-1")

	stored := s.AppendLocal(models.Message{ID: "m1", Text: "hello"})

	if stored.Status != models.MessageStatusPending {
		t.Errorf("expected pending status, got %q", stored.Status)
	}
	if stored.Timestamp == 0 {
		t.Error("expected a timestamp to be assigned")
	}
}

func TestStore_TimestampsMonotonic(t *testing.T) {
	s := NewConversationStore()
	s.Reset("sess-1")

	prev := int64(0)
	for i := 0; i < 100; i++ {
		ts := s.NextTimestamp()
		if ts <= prev {
			t.Fatalf("timestamp %d not greater than previous %d", ts, prev)
		}
		prev = ts
	}
}

func TestStore_SnapshotMergeKeepsPending(t *testing.T) {
	s := NewConversationStore()
	s.Reset("sess-1")

	s.AppendLocal(models.Message{ID: "local-1", Text: "in flight", Timestamp: 300})
	s.ApplyRemoteSnapshot([]models.Message{
		confirmed("srv-1", 100, "first"),
		confirmed("srv-2", 200, "second"),
	})

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages after merge, got %d", len(msgs))
	}
	if msgs[2].ID != "local-1" {
		t.Errorf("pending message lost or misordered: got %q last", msgs[2].ID)
	}
	if msgs[2].Status != models.MessageStatusPending {
		t.Errorf("pending message should stay pending, got %q", msgs[2].Status)
	}
}

func TestStore_SnapshotMergeDropsSettledDuplicates(t *testing.T) {
	s := NewConversationStore()
	s.Reset("sess-1")

	s.AppendLocal(models.Message{ID: "m1", Text: "optimistic copy", Timestamp: 100})

	// Server echoes the same id back: the confirmed copy wins, no duplicate.
	s.ApplyRemoteSnapshot([]models.Message{confirmed("m1", 100, "server copy")})

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Text != "server copy" {
		t.Errorf("server copy should win: got %q", msgs[0].Text)
	}
	if msgs[0].Status != "" {
		t.Errorf("merged message should be confirmed, got status %q", msgs[0].Status)
	}
}

func TestStore_SnapshotMergeIdempotent(t *testing.T) {
	s := NewConversationStore()
	s.Reset("sess-1")

	snapshot := []models.Message{
		confirmed("a", 100, "one"),
		confirmed("b", 200, "two"),
	}
	s.AppendLocal(models.Message{ID: "p", Text: "pending", Timestamp: 300})

	s.ApplyRemoteSnapshot(snapshot)
	first := s.Messages()
	s.ApplyRemoteSnapshot(snapshot)
	second := s.Messages()

	if len(first) != len(second) {
		t.Fatalf("re-applying the same snapshot changed message count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("order changed at %d: %q vs %q", i, first[i].ID, second[i].ID)
		}
	}
}

func TestStore_MergeSortsByTimestamp(t *testing.T) {
	s := NewConversationStore()
	s.Reset("sess-1")

	s.ApplyRemoteSnapshot([]models.Message{
		confirmed("c", 300, "third"),
		confirmed("a", 100, "first"),
		confirmed("b", 200, "second"),
	})

	msgs := s.Messages()
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if msgs[i].ID != id {
			t.Errorf("position %d: expected %q, got %q", i, id, msgs[i].ID)
		}
	}
}

func TestStore_MarkConfirmedInPlace(t *testing.T) {
	s := NewConversationStore()
	s.Reset("sess-1")

	stored := s.AppendLocal(models.Message{ID: "m1", Text: "hi"})
	s.MarkConfirmed("m1")

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Status != "" {
		t.Errorf("expected confirmed (empty status), got %q", msgs[0].Status)
	}
	if msgs[0].Timestamp != stored.Timestamp {
		t.Errorf("confirmation must not move the message: timestamp %d -> %d", stored.Timestamp, msgs[0].Timestamp)
	}
}

func TestStore_FailedExcludedFromContext(t *testing.T) {
	s := NewConversationStore()
	s.Reset("sess-1")

	s.AppendLocal(models.Message{ID: "ok", Text: "fine", Timestamp: 100})
	s.MarkConfirmed("ok")
	s.AppendLocal(models.Message{ID: "bad", Text: "broken", Timestamp: 200})
	s.MarkFailed("bad")

	ctx := s.ContextMessages(0)
	if len(ctx) != 1 || ctx[0].ID != "ok" {
		t.Fatalf("failed message leaked into context: %+v", ctx)
	}

	// Still visible in the full transcript.
	if len(s.Messages()) != 2 {
		t.Error("failed message should remain visible in the transcript")
	}
}

func TestStore_ContextWindowKeepsMostRecent(t *testing.T) {
	s := NewConversationStore()
	s.Reset("sess-1")

	for i := 0; i < 10; i++ {
		s.AppendLocal(models.Message{ID: string(rune('a' + i)), Timestamp: int64(100 + i)})
	}

	ctx := s.ContextMessages(3)
	if len(ctx) != 3 {
		t.Fatalf("expected window of 3, got %d", len(ctx))
	}
	if ctx[0].ID != "h" || ctx[2].ID != "j" {
		t.Errorf("window should keep the most recent messages, got %q..%q", ctx[0].ID, ctx[2].ID)
	}
}

func TestStore_ResetClearsEverything(t *testing.T) {
	s := NewConversationStore()
	s.Reset("sess-1")
	s.AppendLocal(models.Message{ID: "m1", Text: "old session"})

	s.Reset("sess-2")

	if len(s.Messages()) != 0 {
		t.Error("messages from the previous session survived the reset")
	}
	if s.SessionID() != "sess-2" {
		t.Errorf("expected session sess-2, got %q", s.SessionID())
	}
}
