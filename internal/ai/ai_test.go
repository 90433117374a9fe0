package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/royen99/clip-manager/internal/config"
	"github.com/royen99/clip-manager/internal/moderation"
)

func TestOllamaClassify(t *testing.T) {
	var got ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "RATING: SAFE\nREASON: a cat", "done": true})
	}))
	defer srv.Close()

	o := NewOllamaClassifier(zerolog.Nop(), srv.URL+"/", "llava:13b", time.Second)
	defer o.Close()

	text, err := o.Classify(context.Background(), []byte{1, 2, 3}, "rate it")
	require.NoError(t, err)
	assert.Equal(t, "RATING: SAFE\nREASON: a cat", text)

	assert.Equal(t, "llava:13b", got.Model)
	assert.Equal(t, "rate it", got.Prompt)
	assert.False(t, got.Stream)
	require.Len(t, got.Images, 1)
	raw, err := base64.StdEncoding.DecodeString(got.Images[0])
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, raw)
}

func TestOllamaClassifyErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	o := NewOllamaClassifier(zerolog.Nop(), srv.URL, "llava", time.Second)
	_, err := o.Classify(context.Background(), nil, "x")
	assert.ErrorContains(t, err, "status 404")

	bodyErr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"out of memory"}`))
	}))
	defer bodyErr.Close()

	o = NewOllamaClassifier(zerolog.Nop(), bodyErr.URL, "llava", time.Second)
	_, err = o.Classify(context.Background(), nil, "x")
	assert.ErrorContains(t, err, "out of memory")
}

func TestOllamaAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llava:latest","model":"llava:latest"},{"name":"qwen2.5vl:7b"}]}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	assert.True(t, NewOllamaClassifier(zerolog.Nop(), srv.URL, "llava", 0).Available(ctx))
	assert.True(t, NewOllamaClassifier(zerolog.Nop(), srv.URL, "qwen2.5vl:7b", 0).Available(ctx))
	assert.False(t, NewOllamaClassifier(zerolog.Nop(), srv.URL, "bakllava", 0).Available(ctx))

	srv.Close()
	assert.False(t, NewOllamaClassifier(zerolog.Nop(), srv.URL, "llava", 0).Available(ctx))
}

func TestSameModel(t *testing.T) {
	assert.True(t, sameModel("llava", "llava:latest"))
	assert.True(t, sameModel("llava:7b", "llava:7b"))
	assert.False(t, sameModel("llava:7b", "llava"))
	assert.False(t, sameModel("", ""))
}

func TestRatingTextParses(t *testing.T) {
	tests := []struct {
		probs []float32
		want  moderation.Rating
	}{
		{[]float32{0.05, 0.01, 0.9, 0.02, 0.02}, moderation.Safe},
		{[]float32{0.1, 0.05, 0.5, 0.05, 0.3}, moderation.PG13},
		{[]float32{0.0, 0.1, 0.45, 0.25, 0.2}, moderation.R},
		{[]float32{0.0, 0.0, 0.2, 0.1, 0.7}, moderation.R},
		{[]float32{0.0, 0.05, 0.05, 0.85, 0.05}, moderation.XXX},
		{[]float32{0.1, 0.7, 0.1, 0.05, 0.05}, moderation.XXX},
	}
	for _, tt := range tests {
		text := ratingText(tt.probs)
		fv, ok := moderation.ParseFrame(text)
		require.True(t, ok, text)
		assert.Equal(t, tt.want, fv.Rating, text)
		assert.NotEqual(t, moderation.ReasonUnstated, fv.Reason)
		assert.False(t, moderation.IsIllegal(text))
	}
}

func TestPixelsLayout(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 51, A: 255})
		}
	}
	data := pixels(img)
	require.Len(t, data, 3*onnxInputSize*onnxInputSize)
	assert.InDelta(t, 1.0, data[0], 0.01)
	assert.InDelta(t, 0.0, data[1], 0.01)
	assert.InDelta(t, 0.2, data[2], 0.01)
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	c, err := New(ctx, config.ModerationConfig{Backend: config.BackendOllama, Endpoint: "http://127.0.0.1:1"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &OllamaClassifier{}, c)

	_, err = New(ctx, config.ModerationConfig{Backend: config.BackendGenAI}, zerolog.Nop())
	assert.ErrorContains(t, err, "API key")

	_, err = New(ctx, config.ModerationConfig{Backend: config.BackendONNX, Model: filepath.Join(t.TempDir(), "missing.onnx")}, zerolog.Nop())
	assert.ErrorContains(t, err, "model file not found")

	_, err = New(ctx, config.ModerationConfig{Backend: "telepathy"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestONNXRejectsTagInstruction(t *testing.T) {
	c := &ONNXClassifier{logger: zerolog.Nop()}
	_, err := c.Classify(context.Background(), nil, moderation.DefaultTagInstruction)
	assert.ErrorIs(t, err, ErrUnsupported)
}
