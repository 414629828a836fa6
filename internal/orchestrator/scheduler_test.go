package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"boardroom/internal/models"
)

type funcGenerator struct {
	fn       func(call int, req *GenerateRequest) (*GenerateResponse, error)
	calls    int
	requests []*GenerateRequest
}

func (g *funcGenerator) Generate(_ context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	g.requests = append(g.requests, req)
	call := g.calls
	g.calls++
	return g.fn(call, req)
}

type memMessageSink struct {
	saved  []models.Message
	failOn func(msg *models.Message) error
}

func (m *memMessageSink) SaveMessage(_ context.Context, _ string, msg *models.Message) error {
	if m.failOn != nil {
		if err := m.failOn(msg); err != nil {
			return err
		}
	}
	m.saved = append(m.saved, *msg)
	return nil
}

type memKnowledgeSink struct{ entries []models.KnowledgeEntry }

func (m *memKnowledgeSink) AddAgentEntry(_ context.Context, _ string, e *models.KnowledgeEntry, _ string) error {
	m.entries = append(m.entries, *e)
	return nil
}

type memTaskSink struct{ tasks []models.TaskRequest }

func (m *memTaskSink) AddAgentTask(_ context.Context, _ string, task *models.TaskRequest, _ string) error {
	m.tasks = append(m.tasks, *task)
	return nil
}

type memCanvasSink struct{ updates []models.CanvasUpdate }

func (m *memCanvasSink) ApplyUpdate(_ context.Context, _, _ string, u *models.CanvasUpdate, _ string) error {
	m.updates = append(m.updates, *u)
	return nil
}

type memMetricsHook struct {
	retries int
	kinds   []string
}

func (m *memMetricsHook) RecordGenerationRetry() { m.retries++ }
func (m *memMetricsHook) RecordPayload(kind string) {
	m.kinds = append(m.kinds, kind)
}

func newTestScheduler(gen Generator, sink MessageSink) (*Scheduler, *ConversationStore) {
	iv := NewInvoker(gen, InvokerConfig{})
	iv.SetSleep(func(context.Context, time.Duration) error { return nil })
	store := NewConversationStore()
	store.Reset("sess-1")
	return NewScheduler(iv, NewResolver(), store, sink), store
}

func turnRequest(text string, agents ...models.Agent) *TurnRequest {
	return &TurnRequest{
		UserID:    "u1",
		SessionID: "sess-1",
		Text:      text,
		Ambient:   agents,
		Roster:    agents,
		Model:     "gemini-2.5-flash",
	}
}

var (
	agentA = models.Agent{ID: "a1", FirstName: "Marcus", LastName: "Chen", Role: "CTO"}
	agentB = models.Agent{ID: "a2", FirstName: "Sofia", LastName: "Marquez", Role: "CMO"}
	agentC = models.Agent{ID: "a3", FirstName: "David", LastName: "Okafor", Role: "CFO"}
)

func TestScheduler_SingleAgentTurn(t *testing.T) {
	gen := &funcGenerator{fn: func(int, *GenerateRequest) (*GenerateResponse, error) {
		return &GenerateResponse{Text: "We should prototype first."}, nil
	}}
	sink := &memMessageSink{}
	s, store := newTestScheduler(gen, sink)

	result, err := s.RunTurn(context.Background(), turnRequest("thoughts?", agentA))
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(result.Replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(result.Replies))
	}
	if result.Replies[0].Sender != models.SenderAgent || result.Replies[0].AgentID != "a1" {
		t.Errorf("reply attribution wrong: %+v", result.Replies[0])
	}

	// User message then reply, both persisted and confirmed.
	if len(sink.saved) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(sink.saved))
	}
	for _, m := range store.Messages() {
		if !m.IsConfirmed() {
			t.Errorf("message %q left unconfirmed (%q)", m.ID, m.Status)
		}
	}
	if s.State() != StateIdle {
		t.Errorf("state = %s after turn, want IDLE", s.State())
	}
}

func TestScheduler_SequentialAgentsSeeEarlierReplies(t *testing.T) {
	gen := &funcGenerator{fn: func(call int, _ *GenerateRequest) (*GenerateResponse, error) {
		return &GenerateResponse{Text: fmt.Sprintf("reply number %d", call+1)}, nil
	}}
	s, _ := newTestScheduler(gen, &memMessageSink{})

	_, err := s.RunTurn(context.Background(), turnRequest("both of you weigh in", agentA, agentB))
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if gen.calls != 2 {
		t.Fatalf("calls = %d, want 2", gen.calls)
	}

	// The second agent's history must contain the first agent's reply.
	second := gen.requests[1]
	var sawFirstReply bool
	for _, turn := range second.History {
		if strings.Contains(turn.Text, "reply number 1") {
			sawFirstReply = true
		}
	}
	if !sawFirstReply {
		t.Error("second agent did not see the first agent's reply in context")
	}
}

func TestScheduler_HaltsWhenUserMessageFails(t *testing.T) {
	gen := &funcGenerator{fn: func(int, *GenerateRequest) (*GenerateResponse, error) {
		return &GenerateResponse{Text: "never called"}, nil
	}}
	sink := &memMessageSink{failOn: func(msg *models.Message) error {
		if msg.Sender == models.SenderUser {
			return errors.New("mongo: connection refused")
		}
		return nil
	}}
	s, store := newTestScheduler(gen, sink)

	_, err := s.RunTurn(context.Background(), turnRequest("hello", agentA, agentB))
	if err == nil {
		t.Fatal("expected an error when the user message cannot be persisted")
	}
	if gen.calls != 0 {
		t.Errorf("agents dispatched despite halted turn: %d calls", gen.calls)
	}

	msgs := store.Messages()
	if len(msgs) != 1 || msgs[0].Status != models.MessageStatusFailed {
		t.Errorf("user message should remain locally as failed: %+v", msgs)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %s, want IDLE", s.State())
	}
}

func TestScheduler_StopSkipsRemainingAgents(t *testing.T) {
	var s *Scheduler
	gen := &funcGenerator{fn: func(call int, _ *GenerateRequest) (*GenerateResponse, error) {
		if call == 0 {
			s.Stop() // user hits stop while the first agent is generating
		}
		return &GenerateResponse{Text: "reply"}, nil
	}}
	s, _ = newTestScheduler(gen, &memMessageSink{})

	result, err := s.RunTurn(context.Background(), turnRequest("everyone respond", agentA, agentB, agentC))
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if gen.calls != 1 {
		t.Errorf("calls = %d, want 1 (first agent finishes, rest skipped)", gen.calls)
	}
	if len(result.Replies) != 1 {
		t.Errorf("replies = %d, want 1", len(result.Replies))
	}
	if !result.Cancelled {
		t.Error("result not marked cancelled")
	}
}

func TestScheduler_StopFlagClearedForNextTurn(t *testing.T) {
	gen := &funcGenerator{fn: func(int, *GenerateRequest) (*GenerateResponse, error) {
		return &GenerateResponse{Text: "reply"}, nil
	}}
	s, _ := newTestScheduler(gen, &memMessageSink{})

	s.Stop()
	result, err := s.RunTurn(context.Background(), turnRequest("still there?", agentA))
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(result.Replies) != 1 || result.Cancelled {
		t.Errorf("stale stop flag leaked into a new turn: %+v", result)
	}
}

func TestScheduler_RoutesPayloads(t *testing.T) {
	gen := &funcGenerator{fn: func(int, *GenerateRequest) (*GenerateResponse, error) {
		return &GenerateResponse{Text: "Logged the decision and charted the numbers for everyone.\n" +
			"```json\n" + `{"new_kb_entry": {"title": "Decision", "category": "note", "content": "Go EU-first"}}` + "\n```\n" +
			"```json\n" + `{"new_task": {"title": "Legal review", "priority": "high"}}` + "\n```\n" +
			"```json\n" + `{"chart_data": {"title": "Mix", "type": "PIE", "labels": ["EU", "US"], "datasets": [{"label": "rev", "data": [60, 40]}]}}` + "\n```\n" +
			"```json\n" + `{"canvas_update": {"title": "Plan", "content": "EU launch outline"}}` + "\n```",
		}, nil
	}}
	kb := &memKnowledgeSink{}
	tasks := &memTaskSink{}
	canvas := &memCanvasSink{}
	s, _ := newTestScheduler(gen, &memMessageSink{})
	s.WithSinks(kb, tasks, canvas, nil)

	result, err := s.RunTurn(context.Background(), turnRequest("decide", agentA))
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if len(kb.entries) != 1 || kb.entries[0].Title != "Decision" {
		t.Errorf("knowledge sink: %+v", kb.entries)
	}
	if len(tasks.tasks) != 1 || tasks.tasks[0].Title != "Legal review" {
		t.Errorf("task sink: %+v", tasks.tasks)
	}
	if len(canvas.updates) != 1 || canvas.updates[0].Content != "EU launch outline" {
		t.Errorf("canvas sink: %+v", canvas.updates)
	}

	reply := result.Replies[0]
	if reply.Chart == nil || reply.Chart.Title != "Mix" {
		t.Errorf("chart not attached to the message: %+v", reply.Chart)
	}
	if reply.CanvasAction == nil {
		t.Error("canvas action not attached to the message")
	}
	if strings.Contains(reply.Text, "```") {
		t.Errorf("payload blocks leaked into reply text: %q", reply.Text)
	}
}

func TestScheduler_PanicBecomesSystemMessage(t *testing.T) {
	gen := &funcGenerator{fn: func(call int, _ *GenerateRequest) (*GenerateResponse, error) {
		if call == 0 {
			panic("nil dereference in provider adapter")
		}
		return &GenerateResponse{Text: "still here"}, nil
	}}
	s, store := newTestScheduler(gen, &memMessageSink{})

	result, err := s.RunTurn(context.Background(), turnRequest("go", agentA, agentB))
	if err != nil {
		t.Fatalf("a panicking agent must not abort the turn: %v", err)
	}
	if len(result.Replies) != 2 {
		t.Fatalf("replies = %d, want 2 (failure notice + second agent)", len(result.Replies))
	}

	notice := result.Replies[0]
	if notice.Sender != models.SenderSystem {
		t.Errorf("failure notice sender = %q, want system", notice.Sender)
	}
	if notice.Status != models.MessageStatusFailed {
		t.Errorf("failure notice status = %q, want failed", notice.Status)
	}
	if result.Replies[1].Text != "still here" {
		t.Errorf("second agent did not run after the panic")
	}

	// The failed notice must not feed later model context.
	for _, m := range store.ContextMessages(0) {
		if m.Sender == models.SenderSystem {
			t.Error("system failure notice leaked into model context")
		}
	}
}

func TestScheduler_InvokerFailureBecomesSystemMessage(t *testing.T) {
	gen := &funcGenerator{fn: func(int, *GenerateRequest) (*GenerateResponse, error) {
		return nil, &TurnError{Category: ErrorCategoryPermanent, Message: "safety block", StatusCode: 400}
	}}
	s, _ := newTestScheduler(gen, &memMessageSink{})

	result, err := s.RunTurn(context.Background(), turnRequest("go", agentA))
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	notice := result.Replies[0]
	if notice.Sender != models.SenderSystem || !strings.Contains(notice.Text, "Marcus Chen") {
		t.Errorf("failure notice should name the agent: %+v", notice)
	}
}

func TestScheduler_RejectsConcurrentTurn(t *testing.T) {
	var s *Scheduler
	gen := &funcGenerator{fn: func(int, *GenerateRequest) (*GenerateResponse, error) {
		if _, err := s.RunTurn(context.Background(), turnRequest("again", agentA)); err == nil {
			t.Error("expected second turn to be rejected while the first is running")
		}
		return &GenerateResponse{Text: "done"}, nil
	}}
	s, _ = newTestScheduler(gen, &memMessageSink{})

	if _, err := s.RunTurn(context.Background(), turnRequest("first", agentA)); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
}

func TestScheduler_ReplyPersistFailureKeptLocallyAsFailed(t *testing.T) {
	gen := &funcGenerator{fn: func(int, *GenerateRequest) (*GenerateResponse, error) {
		return &GenerateResponse{Text: "a reply that will not persist"}, nil
	}}
	sink := &memMessageSink{failOn: func(msg *models.Message) error {
		if msg.Sender == models.SenderAgent {
			return errors.New("write concern error")
		}
		return nil
	}}
	s, store := newTestScheduler(gen, sink)

	result, err := s.RunTurn(context.Background(), turnRequest("go", agentA))
	if err != nil {
		t.Fatalf("reply persistence failure must not abort the turn: %v", err)
	}
	if result.Replies[0].Status != models.MessageStatusFailed {
		t.Errorf("reply status = %q, want failed", result.Replies[0].Status)
	}
	if len(store.Messages()) != 2 {
		t.Errorf("reply vanished from the local transcript")
	}
}

func TestScheduler_PeersAreResolvedResponders(t *testing.T) {
	gen := &funcGenerator{fn: func(int, *GenerateRequest) (*GenerateResponse, error) {
		return &GenerateResponse{Text: "On it."}, nil
	}}
	s, _ := newTestScheduler(gen, &memMessageSink{})

	// Mentions pull in roster agents outside the ambient set; the responders,
	// not the ambient participants, are each other's colleagues for the turn.
	req := &TurnRequest{
		UserID:    "u1",
		SessionID: "sess-1",
		Text:      "@sofia @david can you two take this?",
		Ambient:   []models.Agent{agentA},
		Roster:    []models.Agent{agentA, agentB, agentC},
		Model:     "gemini-2.5-flash",
	}
	result, err := s.RunTurn(context.Background(), req)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(result.Replies) != 2 {
		t.Fatalf("replies = %d, want 2", len(result.Replies))
	}
	if len(gen.requests) != 2 {
		t.Fatalf("generator calls = %d, want 2", len(gen.requests))
	}

	sofiaPrompt := gen.requests[0].SystemInstruction
	if !strings.Contains(sofiaPrompt, "David Okafor") {
		t.Errorf("first responder's prompt should list the co-responder")
	}
	if strings.Contains(sofiaPrompt, "Marcus Chen") {
		t.Errorf("non-responding ambient agent leaked into the peer list")
	}
	davidPrompt := gen.requests[1].SystemInstruction
	if !strings.Contains(davidPrompt, "Sofia Marquez") {
		t.Errorf("second responder's prompt should list the co-responder")
	}
}

func TestScheduler_RecordsPayloadMetrics(t *testing.T) {
	gen := &funcGenerator{fn: func(int, *GenerateRequest) (*GenerateResponse, error) {
		return &GenerateResponse{Text: "Logged and charted.\n" +
			"```json\n" + `{"new_kb_entry": {"title": "Burn rate", "category": "note", "content": "Down 12% QoQ"}}` + "\n```\n" +
			"```json\n" + `{"chart_data": {"title": "Burn", "type": "BAR", "labels": ["Q1", "Q2"], "datasets": [{"label": "Burn", "data": [10, 8.8]}]}}` + "\n```\n"}, nil
	}}
	hook := &memMetricsHook{}
	s, _ := newTestScheduler(gen, &memMessageSink{})
	s.WithSinks(&memKnowledgeSink{}, &memTaskSink{}, &memCanvasSink{}, nil)
	s.WithMetrics(hook)

	if _, err := s.RunTurn(context.Background(), turnRequest("numbers?", agentA)); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if len(hook.kinds) != 2 {
		t.Fatalf("recorded %d payload kinds, want 2: %v", len(hook.kinds), hook.kinds)
	}
	seen := map[string]bool{}
	for _, k := range hook.kinds {
		seen[k] = true
	}
	if !seen["new_kb_entry"] || !seen["chart_data"] {
		t.Errorf("recorded kinds = %v, want new_kb_entry and chart_data", hook.kinds)
	}
}
