package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/royen99/clip-manager/internal/config"
	"github.com/royen99/clip-manager/internal/logging"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		cfgFile, verbose, logJSON, rawOut = "", false, false, false
	})
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestConfigShowMasksAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("concurrency: 2\nmoderation:\n  backend: genai\n  api_key: secret-key\n"), 0644))
	t.Setenv("GEMINI_API_KEY", "")

	out, err := execute(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "secret-key")

	var shown config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, 2, shown.Concurrency)
	assert.Equal(t, config.BackendGenAI, shown.Moderation.Backend)
	assert.Equal(t, "********", shown.Moderation.APIKey)
}

func TestInvalidConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("moderation:\n  backend: carrier-pigeon\n"), 0644))

	_, err := execute(t, "--config", path, "config", "show")
	assert.ErrorContains(t, err, "carrier-pigeon")
}

func TestArgumentValidation(t *testing.T) {
	_, err := execute(t, "inspect")
	assert.Error(t, err)

	_, err = execute(t, "ingest")
	assert.Error(t, err)
}

func TestNewExtractorKeepsDefaultMarkers(t *testing.T) {
	cfg := &config.Config{}
	raw := []byte(`{"1": {"class_type": "CLIPTextEncode", "inputs": {"text": "blurry, watermark"}},
		"2": {"class_type": "CLIPTextEncode", "inputs": {"text": "a red fox in snow"}}}`)

	p := newExtractor(cfg).ExtractJSON(raw)
	require.NotNil(t, p.Prompt)
	assert.Equal(t, "a red fox in snow", *p.Prompt)
}

func TestServeOpensOnlyTheStore(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "data", "catalog.db")
	cfgYAML := "ffmpeg:\n  binary_path: " + filepath.Join(dir, "no-ffmpeg") + "\n" +
		"  probe_binary_path: " + filepath.Join(dir, "no-ffprobe") + "\n" +
		"store:\n  path: " + dbPath + "\n" +
		"server:\n  addr: 127.0.0.1:0\n" +
		"moderation:\n  enabled: true\n  backend: onnx\n  model: " + filepath.Join(dir, "missing.onnx") + "\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfgYAML), 0644))
	t.Setenv("CLIPMANAGER_STORE_PATH", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := executeContext(t, ctx, "--config", path, "serve")
	require.NoError(t, err)
	assert.FileExists(t, dbPath)
}

func TestClassifierLogsOneComponent(t *testing.T) {
	old := log.Logger
	t.Cleanup(func() {
		log.Logger = old
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})
	var buf bytes.Buffer
	logging.Init(logging.Options{JSON: true, Out: &buf})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := &config.Config{Moderation: config.ModerationConfig{
		Enabled: true, Backend: config.BackendOllama, Endpoint: srv.URL, Model: "llava",
	}}
	c := newClassifier(context.Background(), cfg, logging.WithComponent("app"))
	require.NotNil(t, c)
	defer c.Close()
	assert.False(t, c.Available(context.Background()))

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	assert.Equal(t, 1, strings.Count(line, `"component"`), line)
	assert.Contains(t, line, `"component":"ollama"`)
}
