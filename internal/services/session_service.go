package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"boardroom/internal/database"
	"boardroom/internal/models"
	"boardroom/internal/orchestrator"
)

// SessionService manages chat sessions and their message transcripts.
type SessionService struct {
	db       *database.MongoDB
	sessions *mongo.Collection
	messages *mongo.Collection
}

// NewSessionService creates a new session service
func NewSessionService(db *database.MongoDB) *SessionService {
	return &SessionService{
		db:       db,
		sessions: db.Collection(database.CollectionSessions),
		messages: db.Collection(database.CollectionMessages),
	}
}

// CreateSession creates a new chat session for the user.
func (s *SessionService) CreateSession(ctx context.Context, userID string, req *models.CreateSessionRequest) (*models.ChatSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}
	if req.Mode == "" {
		req.Mode = models.ModeIndividual
	}

	now := time.Now()
	session := &models.ChatSession{
		ID:             uuid.New().String(),
		UserID:         userID,
		Title:          req.Title,
		Mode:           req.Mode,
		ParticipantIDs: req.ParticipantIDs,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if session.Title == "" {
		session.Title = "New conversation"
	}

	if _, err := s.sessions.InsertOne(ctx, session); err != nil {
		return nil, classifyMongo("create session", err)
	}
	return session, nil
}

// GetSession retrieves one session scoped to the user.
func (s *SessionService) GetSession(ctx context.Context, userID, sessionID string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := s.sessions.FindOne(ctx, bson.M{"userId": userID, "sessionId": sessionID}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("session not found")
	}
	if err != nil {
		return nil, classifyMongo("get session", err)
	}
	return &session, nil
}

// ListSessions returns the user's sessions sorted by most recent activity.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]models.ChatSession, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastActivityAt", Value: -1}})
	cursor, err := s.sessions.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, classifyMongo("list sessions", err)
	}
	defer cursor.Close(ctx)

	sessions := []models.ChatSession{}
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, classifyMongo("decode sessions", err)
	}
	return sessions, nil
}

// FindOrCreateIndividual returns the user's individual session with the given
// agent, creating it on first contact.
func (s *SessionService) FindOrCreateIndividual(ctx context.Context, userID string, agent *models.Agent) (*models.ChatSession, error) {
	filter := bson.M{
		"userId":         userID,
		"mode":           models.ModeIndividual,
		"participantIds": bson.M{"$eq": []string{agent.ID}},
	}

	var session models.ChatSession
	err := s.sessions.FindOne(ctx, filter).Decode(&session)
	if err == nil {
		return &session, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, classifyMongo("find individual session", err)
	}

	return s.CreateSession(ctx, userID, &models.CreateSessionRequest{
		Title:          agent.FullName(),
		Mode:           models.ModeIndividual,
		ParticipantIDs: []string{agent.ID},
	})
}

// ToggleParticipant adds or removes an agent from the session's ambient set.
// The last participant cannot be removed: a session always has someone to
// answer.
func (s *SessionService) ToggleParticipant(ctx context.Context, userID, sessionID, agentID string) (*models.ChatSession, error) {
	session, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	participants := make([]string, 0, len(session.ParticipantIDs)+1)
	removed := false
	for _, id := range session.ParticipantIDs {
		if id == agentID {
			removed = true
			continue
		}
		participants = append(participants, id)
	}
	if !removed {
		participants = append(participants, agentID)
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("cannot remove the last participant")
	}

	update := bson.M{"$set": bson.M{"participantIds": participants}}
	if _, err := s.sessions.UpdateOne(ctx, bson.M{"userId": userID, "sessionId": sessionID}, update); err != nil {
		return nil, classifyMongo("toggle participant", err)
	}
	session.ParticipantIDs = participants
	return session, nil
}

// DeleteSession removes a session and its entire transcript.
func (s *SessionService) DeleteSession(ctx context.Context, userID, sessionID string) error {
	res, err := s.sessions.DeleteOne(ctx, bson.M{"userId": userID, "sessionId": sessionID})
	if err != nil {
		return classifyMongo("delete session", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("session not found")
	}
	if _, err := s.messages.DeleteMany(ctx, bson.M{"userId": userID, "sessionId": sessionID}); err != nil {
		return classifyMongo("delete session messages", err)
	}
	return nil
}

// ClearMessages wipes the transcript but keeps the session.
func (s *SessionService) ClearMessages(ctx context.Context, userID, sessionID string) error {
	if _, err := s.messages.DeleteMany(ctx, bson.M{"userId": userID, "sessionId": sessionID}); err != nil {
		return classifyMongo("clear messages", err)
	}
	return nil
}

// SaveMessage upserts one message by its client-generated id. Re-sends of the
// same id overwrite rather than duplicate, so a retried persistence call is
// harmless.
func (s *SessionService) SaveMessage(ctx context.Context, userID string, msg *models.Message) error {
	if userID == "" || msg.ID == "" {
		return fmt.Errorf("user ID and message ID are required")
	}

	// Confirmed messages carry no status field at all.
	stored := *msg
	if stored.Status == models.MessageStatusPending {
		stored.Status = ""
	}

	filter := bson.M{"userId": userID, "messageId": stored.ID}
	update := bson.M{
		"$set": bson.M{
			"sessionId":      stored.SessionID,
			"sender":         stored.Sender,
			"agentId":        stored.AgentID,
			"senderName":     stored.SenderName,
			"text":           stored.Text,
			"timestamp":      stored.Timestamp,
			"status":         stored.Status,
			"attachments":    stored.Attachments,
			"chart":          stored.Chart,
			"email":          stored.Email,
			"meeting":        stored.Meeting,
			"canvasAction":   stored.CanvasAction,
			"grounding":      stored.Grounding,
			"contextSummary": stored.ContextSummary,
		},
		"$setOnInsert": bson.M{
			"userId":    userID,
			"messageId": stored.ID,
		},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := s.messages.UpdateOne(ctx, filter, update, opts); err != nil {
		return classifyMongo("save message", err)
	}

	s.touchActivity(ctx, userID, stored.SessionID)
	return nil
}

// GetTranscript returns the session's full message list in timestamp order.
func (s *SessionService) GetTranscript(ctx context.Context, userID, sessionID string) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := s.messages.Find(ctx, bson.M{"userId": userID, "sessionId": sessionID}, opts)
	if err != nil {
		return nil, classifyMongo("get transcript", err)
	}
	defer cursor.Close(ctx)

	messages := []models.Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, classifyMongo("decode transcript", err)
	}
	return messages, nil
}

// SetFeedback tags a message with thumbs up/down, or clears it.
func (s *SessionService) SetFeedback(ctx context.Context, userID, messageID, feedback string) error {
	if feedback != "up" && feedback != "down" && feedback != "" {
		return fmt.Errorf("feedback must be \"up\", \"down\" or empty")
	}

	update := bson.M{"$set": bson.M{"feedback": feedback}}
	if feedback == "" {
		update = bson.M{"$unset": bson.M{"feedback": ""}}
	}

	res, err := s.messages.UpdateOne(ctx, bson.M{"userId": userID, "messageId": messageID}, update)
	if err != nil {
		return classifyMongo("set feedback", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("message not found")
	}
	return nil
}

// DeleteStaleSessions removes sessions idle longer than maxAge along with
// their transcripts. Returns the number of sessions removed.
func (s *SessionService) DeleteStaleSessions(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	filter := bson.M{"lastActivityAt": bson.M{"$lt": cutoff}}

	cursor, err := s.sessions.Find(ctx, filter)
	if err != nil {
		return 0, classifyMongo("find stale sessions", err)
	}
	defer cursor.Close(ctx)

	var stale []models.ChatSession
	if err := cursor.All(ctx, &stale); err != nil {
		return 0, classifyMongo("decode stale sessions", err)
	}

	var removed int64
	for _, session := range stale {
		if _, err := s.messages.DeleteMany(ctx, bson.M{"userId": session.UserID, "sessionId": session.ID}); err != nil {
			log.Printf("⚠️ Failed to delete messages for stale session %s: %v", session.ID, err)
			continue
		}
		res, err := s.sessions.DeleteOne(ctx, bson.M{"userId": session.UserID, "sessionId": session.ID})
		if err != nil {
			log.Printf("⚠️ Failed to delete stale session %s: %v", session.ID, err)
			continue
		}
		removed += res.DeletedCount
	}
	return removed, nil
}

func (s *SessionService) touchActivity(ctx context.Context, userID, sessionID string) {
	update := bson.M{"$set": bson.M{"lastActivityAt": time.Now()}}
	if _, err := s.sessions.UpdateOne(ctx, bson.M{"userId": userID, "sessionId": sessionID}, update); err != nil {
		log.Printf("⚠️ Failed to update session activity: %v", err)
	}
}

// classifyMongo wraps a Mongo error, tagging authorization failures so the
// turn scheduler surfaces them distinctly instead of retrying writes that can
// never succeed.
func classifyMongo(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "not authorized") ||
		strings.Contains(msg, "authentication failed") {
		return &orchestrator.TurnError{
			Category:  orchestrator.ErrorCategoryAuth,
			Message:   fmt.Sprintf("%s: authorization denied", op),
			Retryable: false,
			Cause:     err,
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
