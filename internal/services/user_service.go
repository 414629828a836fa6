package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"boardroom/internal/database"
	"boardroom/internal/models"
	"boardroom/pkg/auth"
)

// ErrInvalidCredentials is returned on any login failure so callers cannot
// distinguish a missing account from a wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// UserService manages local accounts.
type UserService struct {
	collection *mongo.Collection
	jwtAuth    *auth.LocalJWTAuth
	agents     *AgentService
}

// NewUserService creates a new user service
func NewUserService(db *database.MongoDB, jwtAuth *auth.LocalJWTAuth, agents *AgentService) *UserService {
	return &UserService{
		collection: db.Collection(database.CollectionUsers),
		jwtAuth:    jwtAuth,
		agents:     agents,
	}
}

// Register creates an account and seeds the built-in personas for it.
func (s *UserService) Register(ctx context.Context, req *models.RegisterRequest) (*models.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("a valid email is required")
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}

	if _, err := s.collection.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("an account with this email already exists")
		}
		return nil, classifyMongo("create user", err)
	}

	if err := s.agents.SeedForUser(ctx, user.ID); err != nil {
		// SeedForUser is idempotent and retried on first roster read.
		log.Printf("⚠️ Persona seeding failed for %s: %v", user.ID, err)
	}

	return s.issueToken(user)
}

// Login verifies credentials and returns a signed access token.
func (s *UserService) Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	err := s.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, classifyMongo("find user", err)
	}

	ok, err := auth.VerifyPassword(user.PasswordHash, req.Password)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	return s.issueToken(&user)
}

func (s *UserService) issueToken(user *models.User) (*models.AuthResponse, error) {
	token, err := s.jwtAuth.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &models.AuthResponse{Token: token, User: *user}, nil
}
