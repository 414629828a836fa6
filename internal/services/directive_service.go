package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"boardroom/internal/database"
	"boardroom/internal/models"
)

// DirectiveService manages standing directives.
type DirectiveService struct {
	collection *mongo.Collection
}

// NewDirectiveService creates a new directive service
func NewDirectiveService(db *database.MongoDB) *DirectiveService {
	return &DirectiveService{collection: db.Collection(database.CollectionDirectives)}
}

// List returns all of the user's directives, newest first.
func (s *DirectiveService) List(ctx context.Context, userID string) ([]models.Directive, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.collection.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, classifyMongo("list directives", err)
	}
	defer cursor.Close(ctx)

	directives := []models.Directive{}
	if err := cursor.All(ctx, &directives); err != nil {
		return nil, classifyMongo("decode directives", err)
	}
	return directives, nil
}

// ListActive returns the directives currently injected into agent prompts.
func (s *DirectiveService) ListActive(ctx context.Context, userID string) ([]models.Directive, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"userId": userID, "active": true})
	if err != nil {
		return nil, classifyMongo("list active directives", err)
	}
	defer cursor.Close(ctx)

	directives := []models.Directive{}
	if err := cursor.All(ctx, &directives); err != nil {
		return nil, classifyMongo("decode directives", err)
	}
	return directives, nil
}

// Create adds a directive, active by default.
func (s *DirectiveService) Create(ctx context.Context, userID string, req *models.CreateDirectiveRequest) (*models.Directive, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("directive text is required")
	}

	directive := &models.Directive{
		ID:        uuid.New().String(),
		UserID:    userID,
		Text:      req.Text,
		Active:    true,
		CreatedAt: time.Now(),
	}

	if _, err := s.collection.InsertOne(ctx, directive); err != nil {
		return nil, classifyMongo("create directive", err)
	}
	return directive, nil
}

// SetActive flips a directive's active flag.
func (s *DirectiveService) SetActive(ctx context.Context, userID, directiveID string, active bool) error {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"userId": userID, "directiveId": directiveID},
		bson.M{"$set": bson.M{"active": active}},
	)
	if err != nil {
		return classifyMongo("toggle directive", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("directive not found")
	}
	return nil
}

// Delete removes a directive.
func (s *DirectiveService) Delete(ctx context.Context, userID, directiveID string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"userId": userID, "directiveId": directiveID})
	if err != nil {
		return classifyMongo("delete directive", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("directive not found")
	}
	return nil
}
