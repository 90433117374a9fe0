package pipeline

import (
	"context"
	"time"

	"github.com/royen99/clip-manager/internal/ffmpeg"
	"github.com/royen99/clip-manager/internal/moderation"
	"github.com/royen99/clip-manager/internal/store"
)

// Prober reads technical metadata and container tags of a video file
type Prober interface {
	ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
}

// Thumbnailer writes a preview image of a video
type Thumbnailer interface {
	GenerateThumbnail(ctx context.Context, input, output string, timestamp time.Duration, maxEdge int) error
}

// Moderator rates a video and describes it for tagging
type Moderator interface {
	Moderate(ctx context.Context, path string, duration time.Duration) moderation.Verdict
	DescribeTags(ctx context.Context, path string, duration time.Duration) string
}

// Store persists ingested videos
type Store interface {
	Save(ctx context.Context, v *store.Video) error
}

// Config holds pipeline-specific configuration
type Config struct {
	// Concurrency bounds how many videos IngestAll processes at once.
	Concurrency int
	// ThumbnailDir receives one preview image per video. Empty disables thumbnails.
	ThumbnailDir  string
	ThumbnailEdge int
	// AITags asks the classifier for descriptive tags after moderation.
	AITags bool
}

// Result is the outcome of ingesting one path
type Result struct {
	Path  string
	Video *store.Video
	Err   error
}
