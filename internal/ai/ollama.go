package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// OllamaClassifier talks to a local Ollama server running a vision model
// such as llava.
type OllamaClassifier struct {
	logger   zerolog.Logger
	endpoint string
	model    string
	client   *http.Client
}

// NewOllamaClassifier creates an Ollama backend.
func NewOllamaClassifier(logger zerolog.Logger, endpoint, model string, timeout time.Duration) *OllamaClassifier {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "llava"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &OllamaClassifier{
		logger:   logger.With().Str("component", "ollama").Str("model", model).Logger(),
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   &http.Client{Timeout: timeout},
	}
}

// Classify sends the image to /api/generate and returns the model's answer.
func (o *OllamaClassifier) Classify(ctx context.Context, image []byte, instruction string) (string, error) {
	req := ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  instruction,
		Images:  []string{base64.StdEncoding.EncodeToString(image)},
		Stream:  false,
		Options: map[string]any{"temperature": 0},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("ollama: %s", result.Error)
	}

	o.logger.Debug().
		Dur("elapsed", time.Since(start)).
		Int("image_bytes", len(image)).
		Msg("frame classified")

	return result.Response, nil
}

// Available checks that the server answers and has the model pulled.
func (o *OllamaClassifier) Available(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		o.logger.Warn().Err(err).Str("endpoint", o.endpoint).Msg("ollama unreachable")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		o.logger.Warn().Int("status", resp.StatusCode).Msg("ollama tags request failed")
		return false
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}
	for _, m := range tags.Models {
		if sameModel(m.Name, o.model) || sameModel(m.Model, o.model) {
			return true
		}
	}

	o.logger.Warn().Msg("model not pulled on ollama server")
	return false
}

// Close releases idle connections.
func (o *OllamaClassifier) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

// sameModel compares model names, treating a missing tag as ":latest".
func sameModel(a, b string) bool {
	norm := func(s string) string {
		if s != "" && !strings.Contains(s, ":") {
			return s + ":latest"
		}
		return s
	}
	return a != "" && norm(a) == norm(b)
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}
