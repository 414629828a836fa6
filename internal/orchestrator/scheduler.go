package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"boardroom/internal/models"
)

// TurnState is the scheduler's lifecycle phase.
type TurnState string

const (
	StateIdle               TurnState = "IDLE"
	StateSendingUserMessage TurnState = "SENDING_USER_MESSAGE"
	StateDispatchingAgents  TurnState = "DISPATCHING_AGENTS"
)

// MessageSink persists one message of a session's transcript.
type MessageSink interface {
	SaveMessage(ctx context.Context, userID string, msg *models.Message) error
}

// KnowledgeSink receives knowledge-base entries emitted by agents.
type KnowledgeSink interface {
	AddAgentEntry(ctx context.Context, userID string, entry *models.KnowledgeEntry, author string) error
}

// TaskSink receives tasks filed by agents.
type TaskSink interface {
	AddAgentTask(ctx context.Context, userID string, task *models.TaskRequest, author string) error
}

// CanvasSink applies wholesale canvas replacements emitted by agents.
type CanvasSink interface {
	ApplyUpdate(ctx context.Context, userID, sessionID string, update *models.CanvasUpdate, author string) error
}

// Notifier pushes the session's current transcript snapshot to connected
// clients. Implementations must not block.
type Notifier interface {
	NotifySession(userID, sessionID string, messages []models.Message)
}

// TurnRequest is one user message plus everything needed to dispatch the
// responding agents.
type TurnRequest struct {
	UserID      string
	SessionID   string
	Text        string
	Attachments []models.Attachment
	Ambient     []models.Agent // the session's current participants
	Roster      []models.Agent // every agent known to the user, for mention resolution
	Knowledge   []models.KnowledgeItem
	Directives  []models.Directive
	Canvas      *models.CanvasDocument
	Model       string
	Modes       ModeFlags
}

// TurnResult reports what one completed turn produced.
type TurnResult struct {
	UserMessage models.Message
	Replies     []models.Message
	Cancelled   bool
}

// Scheduler serializes turns for one session: it persists the user's message,
// resolves the responding agents, and invokes them strictly one at a time so
// each sees its predecessors' replies. Only one turn runs at a time.
type Scheduler struct {
	invoker  *Invoker
	resolver *Resolver
	store    *ConversationStore

	messages  MessageSink
	knowledge KnowledgeSink
	tasks     TaskSink
	canvas    CanvasSink
	notifier  Notifier

	metrics MetricsHook

	mu         sync.Mutex
	state      TurnState
	responding string // agent ID currently generating, "" otherwise
	cancel     atomic.Bool
}

// NewScheduler wires a scheduler. The knowledge, task, canvas, and notifier
// sinks may be nil; routing to a nil sink is skipped.
func NewScheduler(invoker *Invoker, resolver *Resolver, store *ConversationStore, messages MessageSink) *Scheduler {
	return &Scheduler{
		invoker:  invoker,
		resolver: resolver,
		store:    store,
		messages: messages,
		state:    StateIdle,
	}
}

// WithSinks attaches the optional payload sinks and snapshot notifier.
func (s *Scheduler) WithSinks(knowledge KnowledgeSink, tasks TaskSink, canvas CanvasSink, notifier Notifier) *Scheduler {
	s.knowledge = knowledge
	s.tasks = tasks
	s.canvas = canvas
	s.notifier = notifier
	return s
}

// WithMetrics attaches the instrumentation hook.
func (s *Scheduler) WithMetrics(hook MetricsHook) *Scheduler {
	s.metrics = hook
	return s
}

// State returns the current lifecycle phase.
func (s *Scheduler) State() TurnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RespondingAgent returns the ID of the agent currently generating, or "".
func (s *Scheduler) RespondingAgent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responding
}

// Stop requests cancellation of the in-flight turn. Agents already generating
// finish; agents not yet dispatched are skipped.
func (s *Scheduler) Stop() {
	s.cancel.Store(true)
	log.Printf("🛑 [SCHEDULER] stop requested")
}

func (s *Scheduler) setState(state TurnState, responding string) {
	s.mu.Lock()
	s.state = state
	s.responding = responding
	s.mu.Unlock()
}

// RunTurn executes one full turn. It returns an error only when the user's
// own message could not be persisted; agent-side failures are recorded as
// system-authored messages in the transcript instead.
func (s *Scheduler) RunTurn(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil, fmt.Errorf("turn already in progress (state=%s)", s.state)
	}
	s.state = StateSendingUserMessage
	s.mu.Unlock()
	s.cancel.Store(false)

	defer s.setState(StateIdle, "")

	// Phase 1: persist the user's message. Failure here halts the whole turn;
	// no agent may respond to a message the server never accepted.
	userMsg := models.Message{
		ID:          uuid.New().String(),
		SessionID:   req.SessionID,
		Sender:      models.SenderUser,
		SenderName:  "You",
		Text:        req.Text,
		Attachments: req.Attachments,
	}
	stored := s.store.AppendLocal(userMsg)
	if err := s.messages.SaveMessage(ctx, req.UserID, &stored); err != nil {
		s.store.MarkFailed(stored.ID)
		s.notify(req)
		return nil, fmt.Errorf("persisting user message: %w", err)
	}
	s.store.MarkConfirmed(stored.ID)
	stored.Status = ""
	s.notify(req)

	// Phase 2: dispatch responders strictly one at a time.
	s.setState(StateDispatchingAgents, "")
	responders := s.resolver.Resolve(req.Text, req.Ambient, req.Roster)

	result := &TurnResult{UserMessage: stored}
	for _, agent := range responders {
		if s.cancel.Load() {
			log.Printf("🛑 [SCHEDULER] turn cancelled, skipping %d remaining agent(s)",
				len(responders)-len(result.Replies))
			result.Cancelled = true
			break
		}
		s.setState(StateDispatchingAgents, agent.ID)
		reply := s.dispatchAgent(ctx, req, agent, responders)
		result.Replies = append(result.Replies, reply)
		s.notify(req)
	}

	return result, nil
}

// dispatchAgent invokes one agent and folds its reply into the transcript.
// A panic inside the invocation is converted into a system-authored failure
// message so a single bad turn never takes down the session.
func (s *Scheduler) dispatchAgent(ctx context.Context, req *TurnRequest, agent models.Agent, responders []models.Agent) (msg models.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("🔥 [SCHEDULER] panic while invoking %s: %v", agent.FullName(), r)
			msg = s.recordFailure(ctx, req, agent,
				fmt.Sprintf("%s could not respond due to an internal error.", agent.FullName()))
		}
	}()

	tc := &TurnContext{
		Agent:      agent,
		Peers:      responders,
		History:    s.store.ContextMessages(s.invoker.cfg.HistoryWindow),
		Knowledge:  req.Knowledge,
		Directives: req.Directives,
		Modes:      req.Modes,
		Canvas:     req.Canvas,
		Model:      req.Model,
	}

	reply, turnErr := s.invoker.Invoke(ctx, tc)
	if turnErr != nil {
		log.Printf("❌ [SCHEDULER] %s failed: %v", agent.FullName(), turnErr)
		return s.recordFailure(ctx, req, agent,
			fmt.Sprintf("%s could not respond: %s", agent.FullName(), turnErr.Message))
	}

	msg = models.Message{
		ID:             uuid.New().String(),
		SessionID:      req.SessionID,
		Sender:         models.SenderAgent,
		AgentID:        agent.ID,
		SenderName:     agent.FullName(),
		Text:           reply.Text,
		Grounding:      reply.Grounding,
		ContextSummary: reply.ContextSummary,
	}
	s.routePayloads(ctx, req, agent, reply.Payloads, &msg)

	stored := s.store.AppendLocal(msg)
	if err := s.messages.SaveMessage(ctx, req.UserID, &stored); err != nil {
		// The reply stays visible locally as failed; later turns still see it.
		log.Printf("⚠️ [SCHEDULER] persisting reply from %s failed: %v", agent.FullName(), err)
		s.store.MarkFailed(stored.ID)
		stored.Status = models.MessageStatusFailed
		return stored
	}
	s.store.MarkConfirmed(stored.ID)
	stored.Status = ""
	return stored
}

// routePayloads delivers side-channel payloads: display payloads (chart,
// email, meeting) ride on the message itself; knowledge, task, and canvas
// payloads go to their sinks. Sink failures are logged, never fatal.
func (s *Scheduler) routePayloads(ctx context.Context, req *TurnRequest, agent models.Agent, payloads []Payload, msg *models.Message) {
	for _, p := range payloads {
		if s.metrics != nil {
			s.metrics.RecordPayload(string(p.Kind))
		}
		switch p.Kind {
		case PayloadChart:
			msg.Chart = p.Chart
		case PayloadEmail:
			msg.Email = p.Email
		case PayloadMeeting:
			msg.Meeting = p.Meeting
		case PayloadKnowledge:
			if s.knowledge == nil {
				continue
			}
			if err := s.knowledge.AddAgentEntry(ctx, req.UserID, p.Knowledge, agent.FullName()); err != nil {
				log.Printf("⚠️ [SCHEDULER] knowledge entry from %s dropped: %v", agent.FullName(), err)
			}
		case PayloadTask:
			if s.tasks == nil {
				continue
			}
			if err := s.tasks.AddAgentTask(ctx, req.UserID, p.Task, agent.FullName()); err != nil {
				log.Printf("⚠️ [SCHEDULER] task from %s dropped: %v", agent.FullName(), err)
			}
		case PayloadCanvas:
			msg.CanvasAction = p.Canvas
			if s.canvas == nil {
				continue
			}
			if err := s.canvas.ApplyUpdate(ctx, req.UserID, req.SessionID, p.Canvas, agent.FullName()); err != nil {
				log.Printf("⚠️ [SCHEDULER] canvas update from %s dropped: %v", agent.FullName(), err)
			}
		}
	}
}

// recordFailure appends a system-authored failure notice for a broken agent
// invocation. Best-effort persisted; the local transcript keeps it either way.
func (s *Scheduler) recordFailure(ctx context.Context, req *TurnRequest, agent models.Agent, text string) models.Message {
	msg := models.Message{
		ID:         uuid.New().String(),
		SessionID:  req.SessionID,
		Sender:     models.SenderSystem,
		AgentID:    agent.ID,
		SenderName: "System",
		Text:       text,
	}
	stored := s.store.AppendLocal(msg)
	s.store.MarkFailed(stored.ID)
	stored.Status = models.MessageStatusFailed
	if err := s.messages.SaveMessage(ctx, req.UserID, &stored); err != nil {
		log.Printf("⚠️ [SCHEDULER] could not persist failure notice: %v", err)
	}
	return stored
}

func (s *Scheduler) notify(req *TurnRequest) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifySession(req.UserID, req.SessionID, s.store.Messages())
}
