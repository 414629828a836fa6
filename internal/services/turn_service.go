package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/time/rate"

	"boardroom/internal/logging"
	"boardroom/internal/models"
	"boardroom/internal/orchestrator"
)

// TurnService runs conversational turns. It keeps one scheduler and one
// conversation store per active session and assembles the per-turn context
// (participants, knowledge, directives, canvas) from the other services.
type TurnService struct {
	generator  orchestrator.Generator
	sessions   *SessionService
	agents     *AgentService
	knowledge  *KnowledgeService
	tasks      *TaskService
	directives *DirectiveService
	canvas     *CanvasService
	conns      *ConnectionManager
	metrics    *Metrics

	invokerCfg   orchestrator.InvokerConfig
	defaultModel string
	perUserRate  rate.Limit
	burst        int

	mu       sync.Mutex
	runtimes map[string]*sessionRuntime // key: userID + "/" + sessionID
	limiters map[string]*rate.Limiter   // key: userID
}

type sessionRuntime struct {
	scheduler *orchestrator.Scheduler
	store     *orchestrator.ConversationStore
}

// TurnServiceDeps bundles the collaborating services.
type TurnServiceDeps struct {
	Generator  orchestrator.Generator
	Sessions   *SessionService
	Agents     *AgentService
	Knowledge  *KnowledgeService
	Tasks      *TaskService
	Directives *DirectiveService
	Canvas     *CanvasService
	Conns      *ConnectionManager
	Metrics    *Metrics
}

// NewTurnService creates the turn service. ratePerMinute bounds how many
// turns a single user may start per minute.
func NewTurnService(deps TurnServiceDeps, invokerCfg orchestrator.InvokerConfig, defaultModel string, ratePerMinute int) *TurnService {
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	return &TurnService{
		generator:    deps.Generator,
		sessions:     deps.Sessions,
		agents:       deps.Agents,
		knowledge:    deps.Knowledge,
		tasks:        deps.Tasks,
		directives:   deps.Directives,
		canvas:       deps.Canvas,
		conns:        deps.Conns,
		metrics:      deps.Metrics,
		invokerCfg:   invokerCfg,
		defaultModel: defaultModel,
		perUserRate:  rate.Limit(float64(ratePerMinute) / 60.0),
		burst:        ratePerMinute,
		runtimes:     make(map[string]*sessionRuntime),
		limiters:     make(map[string]*rate.Limiter),
	}
}

// SendMessage runs one full turn: persist the user's message, then dispatch
// the responding agents sequentially.
func (s *TurnService) SendMessage(ctx context.Context, userID, sessionID string, req *models.SendMessageRequest) (*orchestrator.TurnResult, error) {
	if req.Text == "" && len(req.Attachments) == 0 {
		return nil, fmt.Errorf("message text is required")
	}
	if !s.limiter(userID).Allow() {
		return nil, fmt.Errorf("too many requests, slow down")
	}

	session, err := s.sessions.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	ambient, err := s.agents.GetMany(ctx, userID, session.ParticipantIDs)
	if err != nil {
		return nil, err
	}
	roster, err := s.agents.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	knowledge, err := s.knowledge.List(ctx, userID)
	if err != nil {
		log.Printf("⚠️ [TURN] knowledge unavailable, continuing without it: %v", err)
	}
	directives, err := s.directives.ListActive(ctx, userID)
	if err != nil {
		log.Printf("⚠️ [TURN] directives unavailable, continuing without them: %v", err)
	}

	model := req.Model
	if model == "" {
		model = s.defaultModel
	}

	runtime, err := s.runtime(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	turnLog := logging.WithTurn(sessionID, userID)
	turnLog.Info("turn started",
		"participants", len(ambient),
		"model", model,
		"devils_advocate", req.DevilsAdvocate,
		"deep_research", req.DeepResearch,
	)

	turnReq := &orchestrator.TurnRequest{
		UserID:      userID,
		SessionID:   sessionID,
		Text:        req.Text,
		Attachments: req.Attachments,
		Ambient:     ambient,
		Roster:      roster,
		Knowledge:   knowledge,
		Directives:  directives,
		Canvas:      s.canvas.Get(userID, sessionID),
		Model:       model,
		Modes: orchestrator.ModeFlags{
			DevilsAdvocate: req.DevilsAdvocate,
			DeepResearch:   req.DeepResearch,
		},
	}

	result, err := runtime.scheduler.RunTurn(ctx, turnReq)
	if err != nil {
		turnLog.Error("turn failed", "error", err)
	} else {
		turnLog.Info("turn finished", "replies", len(result.Replies), "cancelled", result.Cancelled)
		for _, reply := range result.Replies {
			if reply.Status == models.MessageStatusFailed {
				logging.WithAgent(turnLog, reply.AgentID, reply.SenderName).Warn("reply failed", "text", reply.Text)
			}
		}
	}
	if s.metrics != nil {
		s.metrics.RecordTurn()
		if result != nil {
			for _, reply := range result.Replies {
				switch {
				case reply.Sender == models.SenderSystem:
					s.metrics.RecordAgentReply("failed")
				case reply.Status == models.MessageStatusFailed:
					s.metrics.RecordAgentReply("failed")
				default:
					s.metrics.RecordAgentReply("ok")
				}
			}
			if result.Cancelled {
				s.metrics.RecordAgentReply("cancelled")
			}
		}
	}
	return result, err
}

// Stop cancels the in-flight turn for the session, if any.
func (s *TurnService) Stop(userID, sessionID string) {
	s.mu.Lock()
	runtime, ok := s.runtimes[userID+"/"+sessionID]
	s.mu.Unlock()
	if ok {
		runtime.scheduler.Stop()
	}
}

// Transcript returns the merged view for the session: the persisted messages
// overlaid with any locally pending or failed ones.
func (s *TurnService) Transcript(ctx context.Context, userID, sessionID string) ([]models.Message, error) {
	runtime, err := s.runtime(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return runtime.store.Messages(), nil
}

// DropRuntime releases the in-memory state for a session, e.g. after deletion.
func (s *TurnService) DropRuntime(userID, sessionID string) {
	s.mu.Lock()
	delete(s.runtimes, userID+"/"+sessionID)
	s.mu.Unlock()
}

// runtime returns the session's scheduler and store, creating and hydrating
// them from the persisted transcript on first use.
func (s *TurnService) runtime(ctx context.Context, userID, sessionID string) (*sessionRuntime, error) {
	key := userID + "/" + sessionID

	s.mu.Lock()
	if rt, ok := s.runtimes[key]; ok {
		s.mu.Unlock()
		return rt, nil
	}
	s.mu.Unlock()

	// Hydrate outside the lock: the transcript read can be slow.
	transcript, err := s.sessions.GetTranscript(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	store := orchestrator.NewConversationStore()
	store.Reset(sessionID)
	store.ApplyRemoteSnapshot(transcript)

	invoker := orchestrator.NewInvoker(s.generator, s.invokerCfg)
	scheduler := orchestrator.NewScheduler(invoker, orchestrator.NewResolver(), store, s.sessions).
		WithSinks(s.knowledge, s.tasks, s.canvas, s.conns)
	if s.metrics != nil {
		invoker.SetMetrics(s.metrics)
		scheduler.WithMetrics(s.metrics)
	}

	rt := &sessionRuntime{scheduler: scheduler, store: store}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.runtimes[key]; ok {
		return existing, nil
	}
	s.runtimes[key] = rt
	return rt, nil
}

func (s *TurnService) limiter(userID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.limiters[userID]; ok {
		return l
	}
	l := rate.NewLimiter(s.perUserRate, s.burst)
	s.limiters[userID] = l
	return l
}
