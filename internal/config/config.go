package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Moderation backends.
const (
	BackendOllama = "ollama"
	BackendGenAI  = "genai"
	BackendONNX   = "onnx"
)

// Config holds all application configuration
type Config struct {
	// Core settings
	WorkDir     string `yaml:"work_dir"`
	TempDir     string `yaml:"temp_dir"`
	Concurrency int    `yaml:"concurrency"`

	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`

	// Workflow extraction settings
	Workflow WorkflowConfig `yaml:"workflow"`

	// Moderation and AI tagging settings
	Moderation ModerationConfig `yaml:"moderation"`

	Store  StoreConfig  `yaml:"store"`
	Server ServerConfig `yaml:"server"`
}

type FFmpegConfig struct {
	BinaryPath      string `yaml:"binary_path"`
	ProbeBinaryPath string `yaml:"probe_binary_path"`
	Threads         int    `yaml:"threads"`
}

type WorkflowConfig struct {
	// NegativeMarkers replace the built-in markers that route encoded text
	// to the negative prompt. Empty keeps the defaults.
	NegativeMarkers []string `yaml:"negative_markers"`
}

type ModerationConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Backend  string `yaml:"backend"`
	Endpoint string `yaml:"endpoint"`
	// Model is a model name for ollama and genai, a file path for onnx.
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`

	Instruction    string `yaml:"instruction"`
	TagInstruction string `yaml:"tag_instruction"`
	AITags         bool   `yaml:"ai_tags"`

	SampleFrames   int           `yaml:"sample_frames"`
	Sampling       string        `yaml:"sampling"`
	SceneThreshold float64       `yaml:"scene_threshold"`
	FrameTimeout   time.Duration `yaml:"frame_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxFrameEdge   uint          `yaml:"max_frame_edge"`

	ONNX ONNXConfig `yaml:"onnx"`
}

type ONNXConfig struct {
	// Library is the onnxruntime shared library; empty uses the platform default.
	Library string `yaml:"library"`
	Input   string `yaml:"input"`
	Output  string `yaml:"output"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads configuration from file or returns defaults, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects settings that cannot work.
func (c *Config) Validate() error {
	switch c.Moderation.Backend {
	case BackendOllama, BackendGenAI, BackendONNX:
	default:
		return fmt.Errorf("unknown moderation backend %q", c.Moderation.Backend)
	}
	switch c.Moderation.Sampling {
	case "uniform", "scenes":
	default:
		return fmt.Errorf("unknown frame sampling %q", c.Moderation.Sampling)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("CLIPMANAGER_MODERATION_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CLIPMANAGER_MODERATION_ENABLED: %w", err)
		}
		c.Moderation.Enabled = b
	}
	if v, ok := lookup("CLIPMANAGER_MODERATION_BACKEND"); ok && v != "" {
		c.Moderation.Backend = strings.ToLower(v)
	}
	if v, ok := lookup("CLIPMANAGER_MODERATION_ENDPOINT"); ok && v != "" {
		c.Moderation.Endpoint = v
	}
	if v, ok := lookup("CLIPMANAGER_MODERATION_MODEL"); ok && v != "" {
		c.Moderation.Model = v
	}
	if v, ok := lookup("GEMINI_API_KEY"); ok && v != "" {
		c.Moderation.APIKey = v
	}
	if v, ok := lookup("CLIPMANAGER_STORE_PATH"); ok && v != "" {
		c.Store.Path = v
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		WorkDir:     "./work",
		TempDir:     "./temp",
		Concurrency: 4,
		FFmpeg: FFmpegConfig{
			BinaryPath:      "ffmpeg",
			ProbeBinaryPath: "ffprobe",
			Threads:         0,
		},
		Moderation: ModerationConfig{
			Enabled:        true,
			Backend:        BackendOllama,
			Endpoint:       "http://localhost:11434",
			Model:          "llava",
			AITags:         true,
			SampleFrames:   5,
			Sampling:       "uniform",
			SceneThreshold: 0.4,
			FrameTimeout:   10 * time.Second,
			RequestTimeout: 60 * time.Second,
			MaxFrameEdge:   768,
			ONNX: ONNXConfig{
				Input:  "input",
				Output: "output",
			},
		},
		Store: StoreConfig{
			Path: "./clipmanager.db",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".clipmanager", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
