package moderation

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
	"github.com/royen99/clip-manager/pkg/util"
)

// Default instructions sent along with each frame.
const (
	DefaultInstruction = "You are a content moderator. Rate this video frame. " +
		"Reply with exactly two lines:\n" +
		"RATING: one of SAFE, PG-13, R, XXX\n" +
		"REASON: a short description of who and what is visible and why it got this rating."
	DefaultTagInstruction = "List up to 15 short descriptive tags for this image " +
		"(subjects, setting, style, mood) as a comma-separated list. Reply with the tags only."
)

// Classifier sends one image with an instruction to a vision model and
// returns its free-form answer.
type Classifier interface {
	Classify(ctx context.Context, image []byte, instruction string) (string, error)
}

// FrameExtractor writes a single still frame of a video to output.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, input string, at time.Duration, output string) error
}

// SceneDetector returns scene-change timestamps of a video.
type SceneDetector interface {
	DetectScenes(ctx context.Context, input string, threshold float64) ([]time.Duration, error)
}

// Sampling strategies.
const (
	SamplingUniform = "uniform"
	SamplingScenes  = "scenes"
)

// Config tunes a Moderator.
type Config struct {
	Instruction    string
	TagInstruction string
	SampleFrames   int
	Sampling       string
	SceneThreshold float64
	FrameTimeout   time.Duration
	// MaxFrameEdge bounds the longest side of frames sent to the classifier.
	MaxFrameEdge uint
	TempDir      string
}

func (c Config) withDefaults() Config {
	if c.Instruction == "" {
		c.Instruction = DefaultInstruction
	}
	if c.TagInstruction == "" {
		c.TagInstruction = DefaultTagInstruction
	}
	if c.SampleFrames <= 0 {
		c.SampleFrames = 5
	}
	if c.Sampling == "" {
		c.Sampling = SamplingUniform
	}
	if c.SceneThreshold <= 0 {
		c.SceneThreshold = 0.4
	}
	if c.FrameTimeout <= 0 {
		c.FrameTimeout = 10 * time.Second
	}
	if c.MaxFrameEdge == 0 {
		c.MaxFrameEdge = 768
	}
	return c
}

// Capabilities is decided once when the service starts.
type Capabilities struct {
	Enabled          bool
	BackendAvailable bool
}

// Moderator inspects sampled frames of one video at a time, in sequence,
// so that a rejection stops further classification calls.
type Moderator struct {
	logger     zerolog.Logger
	cfg        Config
	caps       Capabilities
	classifier Classifier
	frames     FrameExtractor
	scenes     SceneDetector
}

// New creates a Moderator. scenes may be nil.
func New(logger zerolog.Logger, cfg Config, caps Capabilities, classifier Classifier, frames FrameExtractor, scenes SceneDetector) *Moderator {
	return &Moderator{
		logger:     logger.With().Str("component", "moderation").Logger(),
		cfg:        cfg.withDefaults(),
		caps:       caps,
		classifier: classifier,
		frames:     frames,
		scenes:     scenes,
	}
}

// Capabilities returns what the Moderator was built with.
func (m *Moderator) Capabilities() Capabilities {
	return m.caps
}

func (m *Moderator) ready() (string, bool) {
	switch {
	case !m.caps.Enabled:
		return ReasonDisabled, false
	case !m.caps.BackendAvailable || m.classifier == nil || m.frames == nil:
		return ReasonUnavailable, false
	}
	return "", true
}

// Moderate rates a video. It never fails: when moderation is off, the
// backend is unavailable or the run breaks, the verdict is SAFE with an
// explanatory reason and Evaluated=false. Frame files live in a per-run
// temporary directory that is removed on return.
func (m *Moderator) Moderate(ctx context.Context, videoPath string, duration time.Duration) Verdict {
	if reason, ok := m.ready(); !ok {
		m.logger.Debug().Str("video", videoPath).Str("reason", reason).Msg("moderation skipped")
		return failOpen(reason)
	}

	dir, err := os.MkdirTemp(m.cfg.TempDir, "frames-*")
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to create frame directory")
		return failOpen(ReasonFailed)
	}
	defer util.RemoveAllQuiet(dir)

	times := m.sampleTimes(ctx, videoPath, duration)
	m.logger.Info().
		Str("video", videoPath).
		Int("frames", len(times)).
		Str("sampling", m.cfg.Sampling).
		Msg("moderating video")

	var agg Aggregator
	for i, at := range times {
		framePath := filepath.Join(dir, fmt.Sprintf("frame_%03d.jpg", i))

		img, err := m.loadFrame(ctx, videoPath, at, framePath)
		if err != nil {
			m.logger.Warn().Err(err).Dur("at", at).Msg("frame retrieval failed, defaulting to safe")
			return failOpen(ReasonFailed)
		}

		text, err := m.classifier.Classify(ctx, img, m.cfg.Instruction)
		if err != nil {
			m.logger.Warn().Err(err).Dur("at", at).Msg("frame classification failed")
			text = ""
		}
		util.CleanupFiles(framePath)

		m.logger.Debug().Dur("at", at).Str("response", text).Msg("frame classified")
		if agg.Observe(text) {
			m.logger.Warn().Str("video", videoPath).Dur("at", at).Msg("hard rejection")
			break
		}
	}

	v := agg.Verdict()
	m.logger.Info().
		Str("video", videoPath).
		Stringer("rating", v.Rating).
		Str("reason", v.Reason).
		Int("inspected", v.FramesInspected).
		Msg("moderation complete")
	return v
}

// DescribeTags asks the classifier for free-text tags of the middle frame.
// Failures yield an empty string.
func (m *Moderator) DescribeTags(ctx context.Context, videoPath string, duration time.Duration) string {
	if _, ok := m.ready(); !ok {
		return ""
	}

	dir, err := os.MkdirTemp(m.cfg.TempDir, "tags-*")
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to create frame directory")
		return ""
	}
	defer util.RemoveAllQuiet(dir)

	img, err := m.loadFrame(ctx, videoPath, duration/2, filepath.Join(dir, "middle.jpg"))
	if err != nil {
		m.logger.Warn().Err(err).Msg("tag frame retrieval failed")
		return ""
	}
	text, err := m.classifier.Classify(ctx, img, m.cfg.TagInstruction)
	if err != nil {
		m.logger.Warn().Err(err).Msg("tag classification failed")
		return ""
	}
	return text
}

func (m *Moderator) sampleTimes(ctx context.Context, videoPath string, duration time.Duration) []time.Duration {
	if m.cfg.Sampling != SamplingScenes || m.scenes == nil {
		return UniformTimes(duration, m.cfg.SampleFrames)
	}
	scenes, err := m.scenes.DetectScenes(ctx, videoPath, m.cfg.SceneThreshold)
	if err != nil {
		m.logger.Warn().Err(err).Msg("scene detection failed, sampling uniformly")
		return UniformTimes(duration, m.cfg.SampleFrames)
	}
	return SceneTimes(duration, m.cfg.SampleFrames, scenes)
}

// loadFrame extracts a frame, waits until the file is a decodable image and
// returns it downscaled as JPEG. The extractor exiting does not guarantee
// the file is visible yet, hence the wait.
func (m *Moderator) loadFrame(ctx context.Context, videoPath string, at time.Duration, framePath string) ([]byte, error) {
	if err := m.frames.ExtractFrame(ctx, videoPath, at, framePath); err != nil {
		return nil, fmt.Errorf("extract frame: %w", err)
	}
	if err := util.WaitReadable(ctx, framePath, m.cfg.FrameTimeout, isDecodableImage); err != nil {
		return nil, fmt.Errorf("wait for frame: %w", err)
	}
	data, err := os.ReadFile(framePath)
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return downscale(data, m.cfg.MaxFrameEdge)
}

func isDecodableImage(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	_, _, err = image.DecodeConfig(f)
	return err == nil
}

// downscale shrinks images whose longest side exceeds maxEdge. Smaller
// images are returned unchanged.
func downscale(data []byte, maxEdge uint) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	b := img.Bounds()
	if uint(b.Dx()) <= maxEdge && uint(b.Dy()) <= maxEdge {
		return data, nil
	}

	small := resize.Thumbnail(maxEdge, maxEdge, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, small, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
