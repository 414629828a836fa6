package services

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"boardroom/internal/models"
)

// CanvasService holds the shared canvas document per session. The canvas is
// conversation state rather than durable data: it lives in memory and is
// replaced wholesale on each update.
type CanvasService struct {
	mu       sync.RWMutex
	canvases map[string]*models.CanvasDocument // key: userID + "/" + sessionID
	markdown goldmark.Markdown
}

// NewCanvasService creates a new canvas service
func NewCanvasService() *CanvasService {
	return &CanvasService{
		canvases: make(map[string]*models.CanvasDocument),
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

func canvasKey(userID, sessionID string) string {
	return userID + "/" + sessionID
}

// Get returns the session's canvas, or nil if none exists yet.
func (s *CanvasService) Get(userID, sessionID string) *models.CanvasDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if doc, ok := s.canvases[canvasKey(userID, sessionID)]; ok {
		copied := *doc
		return &copied
	}
	return nil
}

// Update replaces the session's canvas with user-authored content.
func (s *CanvasService) Update(userID, sessionID string, req *models.UpdateCanvasRequest) *models.CanvasDocument {
	return s.replace(userID, sessionID, req.Title, req.Content, "You")
}

// ApplyUpdate replaces the session's canvas from an agent's canvas_update
// payload.
func (s *CanvasService) ApplyUpdate(_ context.Context, userID, sessionID string, update *models.CanvasUpdate, author string) error {
	s.replace(userID, sessionID, update.Title, update.Content, author)
	return nil
}

func (s *CanvasService) replace(userID, sessionID, title, content, author string) *models.CanvasDocument {
	doc := &models.CanvasDocument{
		Title:     title,
		Content:   content,
		UpdatedBy: author,
		UpdatedAt: time.Now(),
	}
	s.mu.Lock()
	s.canvases[canvasKey(userID, sessionID)] = doc
	s.mu.Unlock()

	copied := *doc
	return &copied
}

// Clear removes the session's canvas.
func (s *CanvasService) Clear(userID, sessionID string) {
	s.mu.Lock()
	delete(s.canvases, canvasKey(userID, sessionID))
	s.mu.Unlock()
}

// RenderHTML renders the canvas markdown to HTML for preview.
func (s *CanvasService) RenderHTML(userID, sessionID string) (string, error) {
	doc := s.Get(userID, sessionID)
	if doc == nil {
		return "", fmt.Errorf("no canvas for this session")
	}

	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(doc.Content), &buf); err != nil {
		return "", fmt.Errorf("failed to render canvas: %w", err)
	}
	return buf.String(), nil
}
