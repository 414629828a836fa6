package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"boardroom/internal/models"
)

type fakeResult struct {
	resp *GenerateResponse
	err  error
}

type fakeGenerator struct {
	results []fakeResult
	calls   int
	lastReq *GenerateRequest
}

func (g *fakeGenerator) Generate(_ context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	g.lastReq = req
	i := g.calls
	g.calls++
	if i >= len(g.results) {
		i = len(g.results) - 1
	}
	r := g.results[i]
	return r.resp, r.err
}

func noSleep(delays *[]time.Duration) SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func testInvoker(gen Generator) (*Invoker, *[]time.Duration) {
	iv := NewInvoker(gen, InvokerConfig{})
	delays := &[]time.Duration{}
	iv.SetSleep(noSleep(delays))
	return iv, delays
}

func basicTurn() *TurnContext {
	agent := models.Agent{ID: "a1", FirstName: "Marcus", LastName: "Chen", Role: "CTO", Expertise: "distributed systems"}
	return &TurnContext{
		Agent: agent,
		Peers: []models.Agent{agent},
		Model: "gemini-2.5-flash",
	}
}

func TestInvoker_SuccessFirstAttempt(t *testing.T) {
	gen := &fakeGenerator{results: []fakeResult{
		{resp: &GenerateResponse{Text: "Sharding is the right call here."}},
	}}
	iv, delays := testInvoker(gen)

	reply, turnErr := iv.Invoke(context.Background(), basicTurn())
	if turnErr != nil {
		t.Fatalf("unexpected error: %v", turnErr)
	}
	if reply.Text != "Sharding is the right call here." {
		t.Errorf("text = %q", reply.Text)
	}
	if gen.calls != 1 {
		t.Errorf("calls = %d, want 1", gen.calls)
	}
	if len(*delays) != 0 {
		t.Errorf("slept %d times on a clean call", len(*delays))
	}
}

func TestInvoker_RetriesTransientThenSucceeds(t *testing.T) {
	gen := &fakeGenerator{results: []fakeResult{
		{err: errors.New("dial tcp: connection refused")},
		{err: errors.New("dial tcp: connection refused")},
		{resp: &GenerateResponse{Text: "Recovered."}},
	}}
	iv, delays := testInvoker(gen)

	reply, turnErr := iv.Invoke(context.Background(), basicTurn())
	if turnErr != nil {
		t.Fatalf("unexpected error after retries: %v", turnErr)
	}
	if reply.Text != "Recovered." {
		t.Errorf("text = %q", reply.Text)
	}
	if gen.calls != 3 {
		t.Errorf("calls = %d, want 3", gen.calls)
	}
	if len(*delays) != 2 {
		t.Fatalf("slept %d times, want 2", len(*delays))
	}
	if (*delays)[1] <= (*delays)[0]/2 {
		t.Errorf("backoff not growing: %v then %v", (*delays)[0], (*delays)[1])
	}
}

func TestInvoker_RecordsRetryMetrics(t *testing.T) {
	gen := &fakeGenerator{results: []fakeResult{
		{err: errors.New("dial tcp: connection refused")},
		{err: errors.New("dial tcp: connection refused")},
		{resp: &GenerateResponse{Text: "Recovered."}},
	}}
	iv, _ := testInvoker(gen)
	hook := &memMetricsHook{}
	iv.SetMetrics(hook)

	if _, turnErr := iv.Invoke(context.Background(), basicTurn()); turnErr != nil {
		t.Fatalf("unexpected error after retries: %v", turnErr)
	}
	if hook.retries != 2 {
		t.Errorf("recorded %d retries, want 2", hook.retries)
	}
}

func TestInvoker_PermanentErrorNotRetried(t *testing.T) {
	gen := &fakeGenerator{results: []fakeResult{
		{err: &TurnError{Category: ErrorCategoryPermanent, Message: "safety block", StatusCode: 400}},
	}}
	iv, delays := testInvoker(gen)

	_, turnErr := iv.Invoke(context.Background(), basicTurn())
	if turnErr == nil {
		t.Fatal("expected an error")
	}
	if turnErr.Category != ErrorCategoryPermanent {
		t.Errorf("category = %s", turnErr.Category)
	}
	if gen.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on permanent)", gen.calls)
	}
	if len(*delays) != 0 {
		t.Errorf("slept before a permanent failure")
	}
}

func TestInvoker_ExhaustsAttempts(t *testing.T) {
	gen := &fakeGenerator{results: []fakeResult{
		{err: errors.New("connection reset by peer")},
	}}
	iv, _ := testInvoker(gen)

	_, turnErr := iv.Invoke(context.Background(), basicTurn())
	if turnErr == nil {
		t.Fatal("expected exhaustion error")
	}
	if turnErr.Category != ErrorCategoryTransient {
		t.Errorf("category = %s", turnErr.Category)
	}
	if gen.calls != 3 {
		t.Errorf("calls = %d, want 3 (default attempts)", gen.calls)
	}
}

func TestInvoker_RespectsRetryAfter(t *testing.T) {
	gen := &fakeGenerator{results: []fakeResult{
		{err: ClassifyHTTPStatus(429, "quota")},
		{resp: &GenerateResponse{Text: "ok"}},
	}}
	iv, delays := testInvoker(gen)

	_, turnErr := iv.Invoke(context.Background(), basicTurn())
	if turnErr != nil {
		t.Fatalf("unexpected error: %v", turnErr)
	}
	if len(*delays) != 1 {
		t.Fatalf("slept %d times, want 1", len(*delays))
	}
	if (*delays)[0] < 30*time.Second {
		t.Errorf("delay %v shorter than provider Retry-After of 30s", (*delays)[0])
	}
}

func TestInvoker_ExtractsPayloads(t *testing.T) {
	gen := &fakeGenerator{results: []fakeResult{
		{resp: &GenerateResponse{Text: "Filed it for tracking purposes.\n```json\n" +
			`{"new_task": {"title": "Audit vendor contracts", "priority": "high"}}` +
			"\n```"}},
	}}
	iv, _ := testInvoker(gen)

	reply, turnErr := iv.Invoke(context.Background(), basicTurn())
	if turnErr != nil {
		t.Fatalf("unexpected error: %v", turnErr)
	}
	if len(reply.Payloads) != 1 || reply.Payloads[0].Kind != PayloadTask {
		t.Fatalf("payloads = %+v", reply.Payloads)
	}
	if strings.Contains(reply.Text, "```") {
		t.Errorf("payload block left in reply text: %q", reply.Text)
	}
}

func TestInvoker_SystemInstructionOrder(t *testing.T) {
	iv, _ := testInvoker(&fakeGenerator{results: []fakeResult{{resp: &GenerateResponse{}}}})
	iv.SetClock(func() time.Time { return time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC) })

	tc := basicTurn()
	tc.Peers = append(tc.Peers, models.Agent{ID: "a2", FirstName: "Sofia", LastName: "Marquez", Role: "CMO"})
	tc.Directives = []models.Directive{{Text: "Answer in under 100 words."}}
	tc.Knowledge = []models.KnowledgeItem{{Title: "Pricing", Category: "note", Content: "Tiered plans"}}
	tc.Modes = ModeFlags{DevilsAdvocate: true}
	tc.Canvas = &models.CanvasDocument{Title: "Roadmap", Content: "H2 priorities"}

	prompt := iv.BuildSystemInstruction(tc)

	sections := []string{
		"## Core Rules",
		"## Standing Directives",
		"Answer in under 100 words.",
		"Current time:",
		"## You",
		"Marcus Chen",
		"## Colleagues Present",
		"Sofia Marquez",
		"## Knowledge Base",
		"Tiered plans",
		"## Devil's Advocate Mode",
		"## Shared Canvas",
		"H2 priorities",
		"## Group Dynamics",
	}

	last := -1
	for _, section := range sections {
		idx := strings.Index(prompt, section)
		if idx == -1 {
			t.Fatalf("section %q missing from prompt", section)
		}
		if idx < last {
			t.Errorf("section %q out of order", section)
		}
		last = idx
	}

	if !strings.Contains(prompt, "new_kb_entry") {
		t.Error("payload format instructions missing")
	}
	if strings.Contains(prompt, "Deep Research") {
		t.Error("deep research section present without the mode")
	}
}

func TestInvoker_SoloAgentHasNoPeerSections(t *testing.T) {
	iv, _ := testInvoker(&fakeGenerator{results: []fakeResult{{resp: &GenerateResponse{}}}})

	prompt := iv.BuildSystemInstruction(basicTurn())

	if strings.Contains(prompt, "## Colleagues Present") {
		t.Error("peer roster present for a solo agent")
	}
	if strings.Contains(prompt, "## Group Dynamics") {
		t.Error("group dynamics guidance present for a solo agent")
	}
}

func TestInvoker_HistoryWindowAndRoles(t *testing.T) {
	gen := &fakeGenerator{results: []fakeResult{{resp: &GenerateResponse{Text: "ok"}}}}
	iv, _ := testInvoker(gen)

	tc := basicTurn()
	for i := 0; i < 40; i++ {
		tc.History = append(tc.History, models.Message{
			ID: "u", Sender: models.SenderUser, Text: "question", Timestamp: int64(i),
		})
	}
	tc.History = append(tc.History,
		models.Message{ID: "a", Sender: models.SenderAgent, SenderName: "Sofia Marquez", Text: "an answer", Timestamp: 100},
		models.Message{ID: "s", Sender: models.SenderSystem, Text: "Sofia could not respond.", Timestamp: 101},
	)

	if _, err := iv.Invoke(context.Background(), tc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history := gen.lastReq.History
	if len(history) != 29 {
		// Window of 30 includes the system message, which is then dropped.
		t.Fatalf("history length = %d, want 29", len(history))
	}
	lastTurn := history[len(history)-1]
	if lastTurn.Role != "model" {
		t.Errorf("agent message role = %q, want model", lastTurn.Role)
	}
	if !strings.HasPrefix(lastTurn.Text, "Sofia Marquez: ") {
		t.Errorf("agent turn missing speaker prefix: %q", lastTurn.Text)
	}
	for _, turn := range history {
		if turn.Role != "user" && turn.Role != "model" {
			t.Errorf("unexpected role %q in history", turn.Role)
		}
	}
}

func TestInvoker_DeepResearchEnablesGrounding(t *testing.T) {
	gen := &fakeGenerator{results: []fakeResult{{resp: &GenerateResponse{Text: "ok"}}}}
	iv, _ := testInvoker(gen)

	tc := basicTurn()
	tc.Modes.DeepResearch = true

	if _, err := iv.Invoke(context.Background(), tc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gen.lastReq.SearchGrounding {
		t.Error("search grounding not enabled in deep research mode")
	}
	if gen.lastReq.ThinkingBudget != -1 {
		t.Errorf("thinking budget = %d, want -1 (dynamic)", gen.lastReq.ThinkingBudget)
	}
}
