// Package pipeline turns video files into stored metadata records.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/royen99/clip-manager/internal/moderation"
	"github.com/royen99/clip-manager/internal/store"
	"github.com/royen99/clip-manager/internal/tagging"
	"github.com/royen99/clip-manager/internal/workflow"
	"github.com/royen99/clip-manager/pkg/util"
)

// ErrRejected is returned for videos the moderator flagged as potentially
// illegal. Such videos are never stored.
var ErrRejected = errors.New("video rejected by moderation")

// Pipeline orchestrates the ingest of single videos and batches
type Pipeline struct {
	logger    zerolog.Logger
	cfg       Config
	prober    Prober
	thumbs    Thumbnailer
	extractor *workflow.Extractor
	moderator Moderator
	store     Store
}

// New creates a new pipeline instance. thumbs may be nil.
func New(logger zerolog.Logger, cfg Config, prober Prober, thumbs Thumbnailer, extractor *workflow.Extractor, mod Moderator, st Store) *Pipeline {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.ThumbnailEdge <= 0 {
		cfg.ThumbnailEdge = 320
	}
	if extractor == nil {
		extractor = workflow.NewExtractor()
	}
	return &Pipeline{
		logger:    logger.With().Str("component", "pipeline").Logger(),
		cfg:       cfg,
		prober:    prober,
		thumbs:    thumbs,
		extractor: extractor,
		moderator: mod,
		store:     st,
	}
}

// Ingest probes, moderates, tags and stores one video.
func (p *Pipeline) Ingest(ctx context.Context, path string) (*store.Video, error) {
	if path == "" {
		return nil, fmt.Errorf("input path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	info, err := p.prober.ProbeVideo(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("failed to probe video: %w", err)
	}

	log := p.logger.With().Str("video", abs).Logger()
	log.Debug().
		Dur("duration", info.Duration).
		Int("width", info.Width).
		Int("height", info.Height).
		Str("container", info.Container).
		Msg("video metadata extracted")

	v := &store.Video{
		Filename:   filepath.Base(abs),
		Path:       abs,
		Duration:   info.Duration,
		Width:      info.Width,
		Height:     info.Height,
		FPS:        info.FPS,
		Bitrate:    info.Bitrate,
		VideoCodec: info.VideoCodec,
		Container:  info.Container,
	}

	if raw, ok := workflow.FromContainerTags(info.Tags); ok {
		params := p.extractor.ExtractJSON(raw)
		v.Workflow = raw
		v.Parameters = &params
		log.Debug().Bool("empty", params.IsEmpty()).Msg("embedded workflow found")
	}

	v.Verdict = p.moderator.Moderate(ctx, abs, info.Duration)
	if v.Verdict.Rating == moderation.Rejected {
		log.Warn().Str("reason", v.Verdict.Reason).Msg("video rejected, not storing")
		return nil, fmt.Errorf("%s: %w", v.Filename, ErrRejected)
	}

	var aiTags []tagging.Tag
	if p.cfg.AITags {
		aiTags = tagging.FromAI(p.moderator.DescribeTags(ctx, abs, info.Duration))
	}
	v.Tags = tagging.Aggregate(
		tagging.FromFilename(abs),
		tagging.FromMetrics(tagging.Metrics{
			Duration:  info.Duration,
			Width:     info.Width,
			Height:    info.Height,
			Container: info.Container,
		}),
		aiTags,
	)

	v.Thumbnail = p.thumbnail(ctx, log, abs, info.Duration)

	if err := p.store.Save(ctx, v); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", v.Filename, err)
	}

	log.Info().
		Str("id", v.ID).
		Stringer("rating", v.Verdict.Rating).
		Bool("workflow", v.HasWorkflow).
		Int("tags", len(v.Tags)).
		Msg("video ingested")
	return v, nil
}

// thumbnail renders a preview named after the video path so that re-ingesting
// a file overwrites its old preview. Failures leave the video without one.
func (p *Pipeline) thumbnail(ctx context.Context, log zerolog.Logger, path string, duration time.Duration) string {
	if p.thumbs == nil || p.cfg.ThumbnailDir == "" {
		return ""
	}
	if err := util.EnsureDir(p.cfg.ThumbnailDir); err != nil {
		log.Warn().Err(err).Msg("failed to create thumbnail directory")
		return ""
	}
	name := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+path)).String() + ".jpg"
	out := filepath.Join(p.cfg.ThumbnailDir, name)
	if err := p.thumbs.GenerateThumbnail(ctx, path, out, duration/2, p.cfg.ThumbnailEdge); err != nil {
		log.Warn().Err(err).Msg("thumbnail generation failed")
		return ""
	}
	return out
}

// IngestAll ingests paths with at most Concurrency videos in flight and
// returns one result per path, in input order. A failing video does not
// stop the others.
func (p *Pipeline) IngestAll(ctx context.Context, paths []string) []Result {
	results := make([]Result, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, path := range paths {
		g.Go(func() error {
			results[i].Path = path
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Video, results[i].Err = p.Ingest(gctx, path)
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	p.logger.Info().
		Int("videos", len(paths)).
		Int("failed", failed).
		Msg("batch ingest complete")
	return results
}
