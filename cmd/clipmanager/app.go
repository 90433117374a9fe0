package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/royen99/clip-manager/internal/ai"
	"github.com/royen99/clip-manager/internal/config"
	"github.com/royen99/clip-manager/internal/ffmpeg"
	"github.com/royen99/clip-manager/internal/logging"
	"github.com/royen99/clip-manager/internal/moderation"
	"github.com/royen99/clip-manager/internal/pipeline"
	"github.com/royen99/clip-manager/internal/store"
	"github.com/royen99/clip-manager/internal/workflow"
	"github.com/royen99/clip-manager/pkg/util"
)

// app holds the long-lived services shared by the commands
type app struct {
	cfg        *config.Config
	logger     zerolog.Logger
	ffmpeg     *ffmpeg.Executor
	classifier ai.Classifier
	store      *store.SqlStore
}

func newExtractor(cfg *config.Config) *workflow.Extractor {
	var opts []workflow.Option
	if len(cfg.Workflow.NegativeMarkers) > 0 {
		opts = append(opts, workflow.WithNegativeMarkers(cfg.Workflow.NegativeMarkers))
	}
	return workflow.NewExtractor(opts...)
}

func newExecutor(cfg *config.Config) (*ffmpeg.Executor, error) {
	exec, err := ffmpeg.New(log.Logger, ffmpeg.Options{
		FFmpegPath:  cfg.FFmpeg.BinaryPath,
		FFprobePath: cfg.FFmpeg.ProbeBinaryPath,
		Threads:     cfg.FFmpeg.Threads,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
	}
	return exec, nil
}

// newClassifier builds the configured backend. A backend that cannot be
// built is not an error: moderation then runs in its fail-open mode.
// Backend loggers set their own component.
func newClassifier(ctx context.Context, cfg *config.Config, logger zerolog.Logger) ai.Classifier {
	if !cfg.Moderation.Enabled {
		return nil
	}
	classifier, err := ai.New(ctx, cfg.Moderation, log.Logger)
	if err != nil {
		logger.Warn().Err(err).Str("backend", cfg.Moderation.Backend).Msg("classifier backend unusable")
		return nil
	}
	return classifier
}

// newApp wires ffmpeg, the store and the classifier backend for ingestion.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: logging.WithComponent("app")}

	for _, dir := range []string{cfg.WorkDir, cfg.TempDir} {
		if err := util.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	var err error
	if a.ffmpeg, err = newExecutor(cfg); err != nil {
		return nil, err
	}
	if a.store, err = store.Open(cfg.Store.Path); err != nil {
		return nil, err
	}
	a.classifier = newClassifier(ctx, cfg, a.logger)
	return a, nil
}

func (a *app) capabilities(ctx context.Context) moderation.Capabilities {
	caps := moderation.Capabilities{Enabled: a.cfg.Moderation.Enabled}
	if a.classifier != nil {
		caps.BackendAvailable = a.classifier.Available(ctx)
	}
	a.logger.Info().
		Bool("enabled", caps.Enabled).
		Bool("available", caps.BackendAvailable).
		Str("backend", a.cfg.Moderation.Backend).
		Msg("moderation capabilities")
	return caps
}

func (a *app) pipeline(ctx context.Context) *pipeline.Pipeline {
	mcfg := a.cfg.Moderation
	modCfg := moderation.Config{
		Instruction:    mcfg.Instruction,
		TagInstruction: mcfg.TagInstruction,
		SampleFrames:   mcfg.SampleFrames,
		Sampling:       mcfg.Sampling,
		SceneThreshold: mcfg.SceneThreshold,
		FrameTimeout:   mcfg.FrameTimeout,
		MaxFrameEdge:   mcfg.MaxFrameEdge,
		TempDir:        a.cfg.TempDir,
	}

	var classifier moderation.Classifier
	if a.classifier != nil {
		classifier = a.classifier
	}
	mod := moderation.New(log.Logger, modCfg, a.capabilities(ctx), classifier, a.ffmpeg, a.ffmpeg)

	return pipeline.New(log.Logger, pipeline.Config{
		Concurrency:  a.cfg.Concurrency,
		ThumbnailDir: filepath.Join(a.cfg.WorkDir, "thumbnails"),
		AITags:       mcfg.AITags,
	}, a.ffmpeg, a.ffmpeg, newExtractor(a.cfg), mod, a.store)
}

func (a *app) Close() {
	if a.classifier != nil {
		if err := a.classifier.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close classifier")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close store")
		}
	}
}
