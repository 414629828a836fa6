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

// TaskService manages the task board.
type TaskService struct {
	collection *mongo.Collection
}

// NewTaskService creates a new task service
func NewTaskService(db *database.MongoDB) *TaskService {
	return &TaskService{collection: db.Collection(database.CollectionTasks)}
}

// List returns the user's tasks, newest first.
func (s *TaskService) List(ctx context.Context, userID string) ([]models.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.collection.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, classifyMongo("list tasks", err)
	}
	defer cursor.Close(ctx)

	tasks := []models.Task{}
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, classifyMongo("decode tasks", err)
	}
	return tasks, nil
}

// Create adds a task authored by the user.
func (s *TaskService) Create(ctx context.Context, userID string, req *models.CreateTaskRequest) (*models.Task, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	task := &models.Task{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		Assignee:    req.Assignee,
		Status:      models.TaskStatusTodo,
		Priority:    normalizePriority(req.Priority),
		CreatedAt:   time.Now(),
	}
	if req.DueDate != "" {
		if due, err := time.Parse(time.RFC3339, req.DueDate); err == nil {
			task.DueDate = &due
		}
	}

	if _, err := s.collection.InsertOne(ctx, task); err != nil {
		return nil, classifyMongo("create task", err)
	}
	return task, nil
}

// AddAgentTask files a task emitted by an agent, defaulting the assignee to
// the emitting agent.
func (s *TaskService) AddAgentTask(ctx context.Context, userID string, req *models.TaskRequest, author string) error {
	assignee := req.Assignee
	if assignee == "" {
		assignee = author
	}

	task := &models.Task{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		Assignee:    assignee,
		Status:      models.TaskStatusTodo,
		Priority:    normalizePriority(req.Priority),
		CreatedAt:   time.Now(),
	}
	if req.DueDate != "" {
		if due, err := time.Parse(time.RFC3339, req.DueDate); err == nil {
			task.DueDate = &due
		}
	}

	if _, err := s.collection.InsertOne(ctx, task); err != nil {
		return classifyMongo("store agent task", err)
	}
	return nil
}

// UpdateStatus moves a task between board columns.
func (s *TaskService) UpdateStatus(ctx context.Context, userID, taskID, status string) (*models.Task, error) {
	switch status {
	case models.TaskStatusTodo, models.TaskStatusInProgress, models.TaskStatusDone:
	default:
		return nil, fmt.Errorf("invalid task status %q", status)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var task models.Task
	err := s.collection.FindOneAndUpdate(ctx,
		bson.M{"userId": userID, "taskId": taskID},
		bson.M{"$set": bson.M{"status": status}},
		opts,
	).Decode(&task)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("task not found")
	}
	if err != nil {
		return nil, classifyMongo("update task status", err)
	}
	return &task, nil
}

// Delete removes a task.
func (s *TaskService) Delete(ctx context.Context, userID, taskID string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"userId": userID, "taskId": taskID})
	if err != nil {
		return classifyMongo("delete task", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("task not found")
	}
	return nil
}

func normalizePriority(p string) string {
	switch p {
	case models.TaskPriorityLow, models.TaskPriorityMedium, models.TaskPriorityHigh:
		return p
	default:
		return models.TaskPriorityMedium
	}
}
