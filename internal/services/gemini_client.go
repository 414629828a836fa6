package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"google.golang.org/genai"

	"boardroom/internal/models"
	"boardroom/internal/orchestrator"
)

// GeminiClient adapts the Google Gemini API to the orchestrator's generator
// contract. The underlying client is created lazily on the first call.
type GeminiClient struct {
	apiKey  string
	client  *genai.Client
	metrics *Metrics
}

// NewGeminiClient creates a new Gemini client with lazy initialization.
func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{apiKey: apiKey}
}

// SetMetrics attaches the metrics recorder.
func (c *GeminiClient) SetMetrics(m *Metrics) {
	c.metrics = m
}

// IsConfigured returns true if the client has an API key.
func (c *GeminiClient) IsConfigured() bool {
	return c.apiKey != ""
}

func (c *GeminiClient) initializeClientIfNeeded(ctx context.Context) error {
	if c.client != nil {
		return nil
	}
	if c.apiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: c.apiKey})
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}
	c.client = client
	return nil
}

// Generate issues one generation call. Provider failures are returned as
// classified turn errors so the invoker can make retry decisions.
func (c *GeminiClient) Generate(ctx context.Context, req *orchestrator.GenerateRequest) (*orchestrator.GenerateResponse, error) {
	if err := c.initializeClientIfNeeded(ctx); err != nil {
		return nil, orchestrator.ClassifyError(err)
	}

	contents := c.convertHistory(req.History)
	config := c.buildConfig(req)

	start := time.Now()
	result, err := c.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if c.metrics != nil {
		c.metrics.RecordGenerationLatency(time.Since(start).Seconds())
	}
	if err != nil {
		var apiErr *genai.APIError
		if errors.As(err, &apiErr) {
			return nil, orchestrator.ClassifyHTTPStatus(apiErr.Code, apiErr.Message)
		}
		return nil, orchestrator.ClassifyError(err)
	}

	return c.convertResponse(result)
}

// convertHistory maps formatted history turns to Gemini contents, carrying
// attachments as inline data parts.
func (c *GeminiClient) convertHistory(history []orchestrator.HistoryTurn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		parts := []*genai.Part{{Text: turn.Text}}
		for _, att := range turn.Attachments {
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{
					MIMEType: att.MimeType,
					Data:     att.Data,
				},
			})
		}
		contents = append(contents, &genai.Content{Role: turn.Role, Parts: parts})
	}

	// Gemini rejects an empty contents list.
	if len(contents) == 0 {
		contents = append(contents, &genai.Content{
			Role:  "user",
			Parts: []*genai.Part{{Text: ""}},
		})
	}
	return contents
}

func (c *GeminiClient) buildConfig(req *orchestrator.GenerateRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	temp := req.Temperature
	config.Temperature = &temp

	if req.SearchGrounding {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	switch {
	case req.ThinkingBudget == -1:
		// Dynamic thinking: let the model decide
		config.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: false}
	case req.ThinkingBudget > 0:
		budget := req.ThinkingBudget
		config.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget:  &budget,
			IncludeThoughts: false,
		}
	}

	return config
}

// convertResponse flattens the first candidate's text parts and collects any
// web grounding citations.
func (c *GeminiClient) convertResponse(result *genai.GenerateContentResponse) (*orchestrator.GenerateResponse, error) {
	if len(result.Candidates) == 0 {
		return nil, &orchestrator.TurnError{
			Category:  orchestrator.ErrorCategoryPermanent,
			Message:   "provider returned no candidates",
			Retryable: false,
		}
	}

	candidate := result.Candidates[0]
	resp := &orchestrator.GenerateResponse{}

	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Thought {
				continue
			}
			resp.Text += part.Text
		}
	}
	if resp.Text == "" {
		log.Printf("⚠️ [GEMINI] empty candidate text (finish reason: %s)", candidate.FinishReason)
		return nil, &orchestrator.TurnError{
			Category:  orchestrator.ErrorCategoryPermanent,
			Message:   fmt.Sprintf("empty response from provider (finish reason: %s)", candidate.FinishReason),
			Retryable: false,
		}
	}

	if candidate.GroundingMetadata != nil {
		for _, chunk := range candidate.GroundingMetadata.GroundingChunks {
			if chunk.Web == nil {
				continue
			}
			resp.Grounding = append(resp.Grounding, models.GroundingChunk{
				URI:   chunk.Web.URI,
				Title: chunk.Web.Title,
			})
		}
	}

	return resp, nil
}
