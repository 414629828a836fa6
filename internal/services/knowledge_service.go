package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"boardroom/internal/database"
	"boardroom/internal/models"
)

// KnowledgeService manages the user's knowledge base. The full list is read
// on every agent invocation, so reads go through a short per-user cache that
// writes invalidate.
type KnowledgeService struct {
	collection *mongo.Collection
	cache      *cache.Cache
}

// NewKnowledgeService creates a new knowledge service
func NewKnowledgeService(db *database.MongoDB) *KnowledgeService {
	return &KnowledgeService{
		collection: db.Collection(database.CollectionKnowledge),
		cache:      cache.New(30*time.Second, time.Minute),
	}
}

// List returns the user's knowledge items, newest first.
func (s *KnowledgeService) List(ctx context.Context, userID string) ([]models.KnowledgeItem, error) {
	if cached, found := s.cache.Get(userID); found {
		return cached.([]models.KnowledgeItem), nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.collection.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, classifyMongo("list knowledge", err)
	}
	defer cursor.Close(ctx)

	items := []models.KnowledgeItem{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, classifyMongo("decode knowledge", err)
	}

	s.cache.Set(userID, items, cache.DefaultExpiration)
	return items, nil
}

// Create adds a knowledge item authored by the user.
func (s *KnowledgeService) Create(ctx context.Context, userID string, req *models.CreateKnowledgeRequest) (*models.KnowledgeItem, error) {
	if req.Title == "" || req.Content == "" {
		return nil, fmt.Errorf("title and content are required")
	}
	category := req.Category
	if category == "" {
		category = models.KnowledgeCategoryNote
	}

	item := &models.KnowledgeItem{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     req.Title,
		Category:  category,
		Content:   req.Content,
		CreatedAt: time.Now(),
	}

	if _, err := s.collection.InsertOne(ctx, item); err != nil {
		return nil, classifyMongo("create knowledge item", err)
	}
	s.cache.Delete(userID)
	return item, nil
}

// AddAgentEntry stores a knowledge entry emitted by an agent, recording the
// agent as the source.
func (s *KnowledgeService) AddAgentEntry(ctx context.Context, userID string, entry *models.KnowledgeEntry, author string) error {
	category := entry.Category
	if category == "" {
		category = models.KnowledgeCategoryNote
	}

	item := &models.KnowledgeItem{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     entry.Title,
		Category:  category,
		Content:   entry.Content,
		Source:    author,
		CreatedAt: time.Now(),
	}

	if _, err := s.collection.InsertOne(ctx, item); err != nil {
		return classifyMongo("store agent knowledge entry", err)
	}
	s.cache.Delete(userID)
	return nil
}

// Delete removes a knowledge item.
func (s *KnowledgeService) Delete(ctx context.Context, userID, itemID string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"userId": userID, "itemId": itemID})
	if err != nil {
		return classifyMongo("delete knowledge item", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("knowledge item not found")
	}
	s.cache.Delete(userID)
	return nil
}
