package services

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/yaml.v3"

	"boardroom/internal/database"
	"boardroom/internal/models"
)

//go:embed personas.yaml
var seedPersonasYAML []byte

type seedPersona struct {
	ID                string `yaml:"id"`
	FirstName         string `yaml:"firstName"`
	LastName          string `yaml:"lastName"`
	Role              string `yaml:"role"`
	Expertise         string `yaml:"expertise"`
	Backstory         string `yaml:"backstory"`
	SystemInstruction string `yaml:"systemInstruction"`
	Avatar            string `yaml:"avatar"`
}

// AgentService manages the user's persona roster.
type AgentService struct {
	collection *mongo.Collection
	seeds      []seedPersona
}

// NewAgentService creates a new agent service, loading the built-in persona
// definitions.
func NewAgentService(db *database.MongoDB) (*AgentService, error) {
	var seeds []seedPersona
	if err := yaml.Unmarshal(seedPersonasYAML, &seeds); err != nil {
		return nil, fmt.Errorf("failed to parse seed personas: %w", err)
	}

	return &AgentService{
		collection: db.Collection(database.CollectionAgents),
		seeds:      seeds,
	}, nil
}

// SeedForUser inserts the built-in personas for a user that has none yet.
// Idempotent: an already-seeded user is left alone.
func (s *AgentService) SeedForUser(ctx context.Context, userID string) error {
	count, err := s.collection.CountDocuments(ctx, bson.M{"userId": userID})
	if err != nil {
		return classifyMongo("count agents", err)
	}
	if count > 0 {
		return nil
	}

	now := time.Now()
	docs := make([]interface{}, 0, len(s.seeds))
	for _, seed := range s.seeds {
		docs = append(docs, models.Agent{
			ID:                seed.ID,
			UserID:            userID,
			FirstName:         seed.FirstName,
			LastName:          seed.LastName,
			Role:              seed.Role,
			Expertise:         seed.Expertise,
			Backstory:         seed.Backstory,
			SystemInstruction: seed.SystemInstruction,
			Avatar:            seed.Avatar,
			IsCustom:          false,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}

	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return classifyMongo("seed agents", err)
	}
	log.Printf("🌱 Seeded %d personas for user %s", len(docs), userID)
	return nil
}

// List returns all agents for the user, most recently updated first. A user
// with an empty roster gets the built-in personas seeded on the spot, so a
// failed seed at registration heals itself here.
func (s *AgentService) List(ctx context.Context, userID string) ([]models.Agent, error) {
	agents, err := s.list(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		if err := s.SeedForUser(ctx, userID); err != nil {
			return nil, err
		}
		return s.list(ctx, userID)
	}
	return agents, nil
}

func (s *AgentService) list(ctx context.Context, userID string) ([]models.Agent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cursor, err := s.collection.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, classifyMongo("list agents", err)
	}
	defer cursor.Close(ctx)

	agents := []models.Agent{}
	if err := cursor.All(ctx, &agents); err != nil {
		return nil, classifyMongo("decode agents", err)
	}
	return agents, nil
}

// Get returns one agent scoped to the user.
func (s *AgentService) Get(ctx context.Context, userID, agentID string) (*models.Agent, error) {
	var agent models.Agent
	err := s.collection.FindOne(ctx, bson.M{"userId": userID, "agentId": agentID}).Decode(&agent)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("agent not found")
	}
	if err != nil {
		return nil, classifyMongo("get agent", err)
	}
	return &agent, nil
}

// GetMany returns the agents with the given ids, preserving id order.
func (s *AgentService) GetMany(ctx context.Context, userID string, agentIDs []string) ([]models.Agent, error) {
	if len(agentIDs) == 0 {
		return nil, nil
	}

	cursor, err := s.collection.Find(ctx, bson.M{"userId": userID, "agentId": bson.M{"$in": agentIDs}})
	if err != nil {
		return nil, classifyMongo("get agents", err)
	}
	defer cursor.Close(ctx)

	var fetched []models.Agent
	if err := cursor.All(ctx, &fetched); err != nil {
		return nil, classifyMongo("decode agents", err)
	}

	byID := make(map[string]models.Agent, len(fetched))
	for _, a := range fetched {
		byID[a.ID] = a
	}
	ordered := make([]models.Agent, 0, len(fetched))
	for _, id := range agentIDs {
		if a, ok := byID[id]; ok {
			ordered = append(ordered, a)
		}
	}
	return ordered, nil
}

// Create adds a custom agent.
func (s *AgentService) Create(ctx context.Context, userID string, req *models.CreateAgentRequest) (*models.Agent, error) {
	if req.FirstName == "" {
		return nil, fmt.Errorf("first name is required")
	}
	if req.Role == "" {
		return nil, fmt.Errorf("role is required")
	}

	now := time.Now()
	agent := &models.Agent{
		ID:                uuid.New().String(),
		UserID:            userID,
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		Role:              req.Role,
		Expertise:         req.Expertise,
		SystemInstruction: req.SystemInstruction,
		Backstory:         req.Backstory,
		Avatar:            req.Avatar,
		VoiceID:           req.VoiceID,
		IsCustom:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if _, err := s.collection.InsertOne(ctx, agent); err != nil {
		return nil, classifyMongo("create agent", err)
	}
	return agent, nil
}

// Update modifies an existing agent's persona fields.
func (s *AgentService) Update(ctx context.Context, userID, agentID string, req *models.CreateAgentRequest) (*models.Agent, error) {
	update := bson.M{"$set": bson.M{
		"firstName":         req.FirstName,
		"lastName":          req.LastName,
		"role":              req.Role,
		"expertise":         req.Expertise,
		"systemInstruction": req.SystemInstruction,
		"backstory":         req.Backstory,
		"avatar":            req.Avatar,
		"voiceId":           req.VoiceID,
		"updatedAt":         time.Now(),
	}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var agent models.Agent
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"userId": userID, "agentId": agentID}, update, opts).Decode(&agent)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("agent not found")
	}
	if err != nil {
		return nil, classifyMongo("update agent", err)
	}
	return &agent, nil
}

// Delete removes a custom agent. Built-in personas cannot be deleted.
func (s *AgentService) Delete(ctx context.Context, userID, agentID string) error {
	agent, err := s.Get(ctx, userID, agentID)
	if err != nil {
		return err
	}
	if !agent.IsCustom {
		return fmt.Errorf("built-in personas cannot be deleted")
	}

	if _, err := s.collection.DeleteOne(ctx, bson.M{"userId": userID, "agentId": agentID}); err != nil {
		return classifyMongo("delete agent", err)
	}
	return nil
}
