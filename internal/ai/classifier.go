// Package ai holds the vision model backends that classify video frames.
// Every backend answers free text; turning that text into a rating is the
// moderation package's job.
package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/royen99/clip-manager/internal/config"
)

// ErrUnsupported is returned for instructions a backend cannot answer.
var ErrUnsupported = errors.New("instruction not supported by backend")

// Classifier sends one image plus an instruction to a vision model.
type Classifier interface {
	Classify(ctx context.Context, image []byte, instruction string) (string, error)
	// Available reports whether the backend can serve requests right now.
	Available(ctx context.Context) bool
	Close() error
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.ModerationConfig, logger zerolog.Logger) (Classifier, error) {
	switch cfg.Backend {
	case config.BackendOllama, "":
		return NewOllamaClassifier(logger, cfg.Endpoint, cfg.Model, cfg.RequestTimeout), nil
	case config.BackendGenAI:
		return NewGeminiClassifier(ctx, logger, cfg.APIKey, cfg.Model)
	case config.BackendONNX:
		return NewONNXClassifier(logger, cfg.Model, cfg.ONNX)
	default:
		return nil, fmt.Errorf("unknown moderation backend %q", cfg.Backend)
	}
}
