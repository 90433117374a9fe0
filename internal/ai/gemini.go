package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// GeminiClassifier uses Google's Gemini API with an inline image part.
type GeminiClassifier struct {
	logger zerolog.Logger
	client *genai.Client
	model  string
}

// NewGeminiClassifier creates a Gemini backend.
func NewGeminiClassifier(ctx context.Context, logger zerolog.Logger, apiKey, model string) (*GeminiClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" || model == "llava" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClassifier{
		logger: logger.With().Str("component", "gemini").Str("model", model).Logger(),
		client: client,
		model:  model,
	}, nil
}

// Classify asks the model about one frame.
func (g *GeminiClassifier) Classify(ctx context.Context, image []byte, instruction string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, http.DetectContentType(image)),
			genai.NewPartFromText(instruction),
		}, genai.RoleUser),
	}

	temperature := float32(0)
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	g.logger.Debug().Dur("elapsed", time.Since(start)).Msg("frame classified")
	return resp.Text(), nil
}

// Available checks that the configured model can be looked up.
func (g *GeminiClassifier) Available(ctx context.Context) bool {
	if _, err := g.client.Models.Get(ctx, g.model, nil); err != nil {
		g.logger.Warn().Err(err).Msg("gemini model unavailable")
		return false
	}
	return true
}

// Close is a no-op; the client holds no resources that need releasing.
func (g *GeminiClassifier) Close() error {
	return nil
}
