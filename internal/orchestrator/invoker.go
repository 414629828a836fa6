package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"boardroom/internal/models"
)

// Generator is the boundary to the language-model provider. Implementations
// issue exactly one generation call; the invoker owns timeout and retry.
type Generator interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is the provider-agnostic request for one generation call.
type GenerateRequest struct {
	Model             string
	SystemInstruction string
	History           []HistoryTurn
	Temperature       float32
	SearchGrounding   bool
	ThinkingBudget    int32 // -1 dynamic, 0 disabled, >0 fixed token budget
}

// HistoryTurn is one entry of the formatted conversation history.
type HistoryTurn struct {
	Role        string // "user" or "model"
	Text        string
	Attachments []models.Attachment
}

// GenerateResponse is the provider's reply.
type GenerateResponse struct {
	Text      string
	Grounding []models.GroundingChunk
}

// ModeFlags are the optional per-turn behavioral modes.
type ModeFlags struct {
	DevilsAdvocate bool
	DeepResearch   bool
}

// TurnContext carries everything one agent invocation needs.
type TurnContext struct {
	Agent      models.Agent
	Peers      []models.Agent // every agent responding this turn, including Agent
	History    []models.Message
	Knowledge  []models.KnowledgeItem
	Directives []models.Directive // active set only
	Modes      ModeFlags
	Canvas     *models.CanvasDocument
	Model      string
}

// AgentReply is the invoker's output contract: cleaned display text, extracted
// payloads, provider grounding, and a short context summary for transparency.
type AgentReply struct {
	Text           string
	Payloads       []Payload
	Grounding      []models.GroundingChunk
	ContextSummary string
}

// InvokerConfig tunes timeout and retry policy.
type InvokerConfig struct {
	CallTimeout    time.Duration // per-attempt ceiling; default 45s
	MaxAttempts    int           // total attempts including the first; default 3
	InitialBackoff time.Duration // default 1s, doubling with jitter
	MaxBackoff     time.Duration // default 30s
	HistoryWindow  int           // most recent turns kept in context; default 30
	Temperature    float32       // default 0.7
}

func (c *InvokerConfig) applyDefaults() {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 45 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 30
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.7
	}
}

// MetricsHook receives orchestration events for instrumentation. A nil hook
// disables recording.
type MetricsHook interface {
	RecordGenerationRetry()
	RecordPayload(kind string)
}

// SleepFunc waits for d or until ctx is done. Injectable so retry tests run
// without real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Invoker produces one agent's reply to the current turn: it assembles the
// system instruction, issues the generation call under timeout and bounded
// backoff retry, and extracts side-channel payloads from the raw output.
type Invoker struct {
	gen     Generator
	cfg     InvokerConfig
	backoff *BackoffCalculator
	breaker *CircuitBreaker
	sleep   SleepFunc
	now     func() time.Time
	metrics MetricsHook
}

// NewInvoker creates an invoker around the given generator.
func NewInvoker(gen Generator, cfg InvokerConfig) *Invoker {
	cfg.applyDefaults()
	return &Invoker{
		gen:     gen,
		cfg:     cfg,
		backoff: NewBackoffCalculator(cfg.InitialBackoff, cfg.MaxBackoff, 2.0, 20),
		breaker: NewCircuitBreaker(5),
		sleep:   defaultSleep,
		now:     time.Now,
	}
}

// SetSleep replaces the retry delay function. Used by tests.
func (iv *Invoker) SetSleep(sleep SleepFunc) {
	iv.sleep = sleep
}

// SetClock replaces the time source used for the prompt timestamp. Used by tests.
func (iv *Invoker) SetClock(now func() time.Time) {
	iv.now = now
}

// SetMetrics attaches the instrumentation hook.
func (iv *Invoker) SetMetrics(hook MetricsHook) {
	iv.metrics = hook
}

// Invoke runs one agent turn. Transient provider failures are retried with
// exponential backoff; exhausting retries or timing out returns a *TurnError,
// never a panic, so the scheduler can surface a system-authored message.
func (iv *Invoker) Invoke(ctx context.Context, tc *TurnContext) (*AgentReply, *TurnError) {
	req := &GenerateRequest{
		Model:             tc.Model,
		SystemInstruction: iv.BuildSystemInstruction(tc),
		History:           iv.buildHistory(tc),
		Temperature:       iv.cfg.Temperature,
		SearchGrounding:   tc.Modes.DeepResearch,
	}
	if tc.Modes.DeepResearch {
		req.ThinkingBudget = -1
	}

	resp, turnErr := iv.callWithRetry(ctx, tc.Agent.FullName(), req)
	if turnErr != nil {
		return nil, turnErr
	}

	cleaned, payloads := Extract(resp.Text)

	return &AgentReply{
		Text:           cleaned,
		Payloads:       payloads,
		Grounding:      resp.Grounding,
		ContextSummary: iv.contextSummary(tc),
	}, nil
}

// callWithRetry wraps the generation call in a per-attempt timeout and a
// bounded exponential-backoff retry on transient error classes only.
func (iv *Invoker) callWithRetry(ctx context.Context, agentName string, req *GenerateRequest) (*GenerateResponse, *TurnError) {
	var lastErr *TurnError

	for attempt := 0; attempt < iv.cfg.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, iv.cfg.CallTimeout)
		resp, err := iv.gen.Generate(callCtx, req)
		cancel()

		if err == nil {
			iv.breaker.RecordSuccess("provider")
			return resp, nil
		}

		lastErr = ClassifyError(err)
		if !lastErr.IsRetryable() {
			log.Printf("❌ [INVOKER] %s: terminal %s error: %v", agentName, lastErr.Category, err)
			return nil, lastErr
		}

		source := ErrorSource(lastErr)
		if iv.breaker.RecordFailure(source) {
			log.Printf("🔌 [INVOKER] %s: circuit open for '%s', skipping remaining retries", agentName, source)
			break
		}

		if attempt == iv.cfg.MaxAttempts-1 {
			break
		}

		delay := iv.backoff.NextDelay(attempt)
		if lastErr.RetryAfter > 0 {
			retryAfter := time.Duration(lastErr.RetryAfter) * time.Second
			if retryAfter > delay {
				delay = retryAfter
			}
		}
		log.Printf("🔄 [INVOKER] %s: retrying (%d/%d) after %v — %s",
			agentName, attempt+1, iv.cfg.MaxAttempts-1, delay, lastErr.Message)
		if iv.metrics != nil {
			iv.metrics.RecordGenerationRetry()
		}

		if err := iv.sleep(ctx, delay); err != nil {
			return nil, ClassifyError(err)
		}
	}

	return nil, lastErr
}

// BuildSystemInstruction assembles the full system-level instruction block for
// one agent turn, in fixed order: core rules, user directives, current time,
// persona, peer roster, knowledge base, mode instructions, canvas state, and
// group dynamics guidance.
func (iv *Invoker) BuildSystemInstruction(tc *TurnContext) string {
	var sb strings.Builder

	// 1. Immutable core behavioral rules
	sb.WriteString("## Core Rules\n\n")
	sb.WriteString("- Be truthful. If you do not know something, say so plainly.\n")
	sb.WriteString("- Ground factual claims in the knowledge base below when it covers the topic, and say which entry you used.\n")
	sb.WriteString("- Standing directives override your persona when they conflict.\n")
	sb.WriteString("- You can act outside the chat only through the structured payload blocks described below; never claim to have taken any other action.\n\n")
	sb.WriteString(payloadInstructions)
	sb.WriteString("\n")

	// 2. Active user directives
	if len(tc.Directives) > 0 {
		sb.WriteString("## Standing Directives\n\n")
		for _, d := range tc.Directives {
			sb.WriteString(fmt.Sprintf("- %s\n", d.Text))
		}
		sb.WriteString("\n")
	}

	// 3. Current time
	sb.WriteString(fmt.Sprintf("Current time: %s\n\n", iv.now().Format(time.RFC1123)))

	// 4. Persona
	agent := tc.Agent
	sb.WriteString(fmt.Sprintf("## You\n\nYou are %s, %s.\n", agent.FullName(), agent.Role))
	if agent.Expertise != "" {
		sb.WriteString(fmt.Sprintf("Expertise: %s\n", agent.Expertise))
	}
	if agent.Backstory != "" {
		sb.WriteString(fmt.Sprintf("Backstory: %s\n", agent.Backstory))
	}
	if agent.SystemInstruction != "" {
		sb.WriteString(fmt.Sprintf("\n%s\n", agent.SystemInstruction))
	}
	sb.WriteString("\n")

	// 5. Co-present peers
	peers := peersOf(tc)
	if len(peers) > 0 {
		sb.WriteString("## Colleagues Present\n\n")
		for _, p := range peers {
			sb.WriteString(fmt.Sprintf("- %s (%s)", p.FullName(), p.Role))
			if p.Expertise != "" {
				sb.WriteString(": " + p.Expertise)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("You may acknowledge a colleague's expertise, but never speak for them.\n\n")
	}

	// 6. Knowledge base
	if len(tc.Knowledge) > 0 {
		sb.WriteString("## Knowledge Base\n\n")
		for _, item := range tc.Knowledge {
			sb.WriteString(fmt.Sprintf("### %s [%s]\n%s\n\n", item.Title, item.Category, item.Content))
		}
	}

	// 7. Mode instructions
	if tc.Modes.DevilsAdvocate {
		sb.WriteString("## Devil's Advocate Mode\n\nChallenge the prevailing view. Surface risks, counter-examples, and weak assumptions before agreeing with anything.\n\n")
	}
	if tc.Modes.DeepResearch {
		sb.WriteString("## Deep Research Mode\n\nUse web search to ground your answer in current sources and cite them.\n\n")
	}

	// 8. Canvas
	if tc.Canvas != nil && tc.Canvas.Content != "" {
		sb.WriteString("## Shared Canvas\n\n")
		sb.WriteString(fmt.Sprintf("Title: %s\n\n%s\n\n", tc.Canvas.Title, tc.Canvas.Content))
		sb.WriteString("To edit the canvas, emit a canvas_update payload with the complete new content; it replaces the document wholesale.\n\n")
	}

	// 9. Group dynamics
	if len(peers) > 0 {
		sb.WriteString("## Group Dynamics\n\n")
		sb.WriteString("Do not open with \"As X said\" or restate a colleague's reply. Add something new: a different angle, a concern, a concrete next step.\n")
	}

	return sb.String()
}

// payloadInstructions tells the model the exact fenced-JSON block formats for
// each side-channel action.
const payloadInstructions = "## Structured Actions\n\n" +
	"To take an action, embed a fenced ```json block whose single top-level key names the action:\n" +
	"- `new_kb_entry`: {\"title\", \"category\", \"content\"} — add to the knowledge base\n" +
	"- `new_task`: {\"title\", \"description\", \"priority\", \"assignee\", \"dueDate\"} — file a task\n" +
	"- `chart_data`: {\"title\", \"type\" (BAR|LINE|PIE), \"labels\": [], \"datasets\": [{\"label\", \"data\": [], \"color\"}]}\n" +
	"- `canvas_update`: {\"title\", \"content\"} — replace the shared canvas\n" +
	"- `draft_email`: {\"to\", \"subject\", \"body\"}\n" +
	"- `schedule_meeting`: {\"title\", \"startTime\" (ISO), \"endTime\" (ISO), \"description\", \"location\"}\n"

// buildHistory formats the most recent window of the conversation for the
// provider, carrying attachments as inline binary parts.
func (iv *Invoker) buildHistory(tc *TurnContext) []HistoryTurn {
	history := tc.History
	if len(history) > iv.cfg.HistoryWindow {
		history = history[len(history)-iv.cfg.HistoryWindow:]
	}

	turns := make([]HistoryTurn, 0, len(history))
	for _, m := range history {
		turn := HistoryTurn{Attachments: m.Attachments}
		switch m.Sender {
		case models.SenderUser:
			turn.Role = "user"
			turn.Text = m.Text
		case models.SenderAgent:
			turn.Role = "model"
			// Prefix with the speaker so agents can tell each other apart in
			// group sessions.
			turn.Text = fmt.Sprintf("%s: %s", m.SenderName, m.Text)
		default:
			continue // system-authored error bubbles never reach the model
		}
		turns = append(turns, turn)
	}
	return turns
}

// contextSummary is a short human-readable description of what context fed
// this invocation, shown for transparency alongside the reply.
func (iv *Invoker) contextSummary(tc *TurnContext) string {
	var modes []string
	if tc.Modes.DevilsAdvocate {
		modes = append(modes, "devils-advocate")
	}
	if tc.Modes.DeepResearch {
		modes = append(modes, "deep-research")
	}
	modeStr := "none"
	if len(modes) > 0 {
		modeStr = strings.Join(modes, ",")
	}
	return fmt.Sprintf("model=%s peers=%d kb=%d directives=%d modes=%s",
		tc.Model, len(peersOf(tc)), len(tc.Knowledge), len(tc.Directives), modeStr)
}

// peersOf returns every agent present this turn except the responder.
func peersOf(tc *TurnContext) []models.Agent {
	var peers []models.Agent
	for _, p := range tc.Peers {
		if p.ID != tc.Agent.ID {
			peers = append(peers, p)
		}
	}
	return peers
}
