package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/royen99/clip-manager/internal/ffmpeg"
	"github.com/royen99/clip-manager/internal/moderation"
	"github.com/royen99/clip-manager/internal/store"
	"github.com/royen99/clip-manager/internal/tagging"
)

const graph = `{"3": {"class_type": "KSampler", "inputs": {"seed": 42, "steps": 20, "cfg": 7, "sampler_name": "euler", "scheduler": "normal"}}}`

type fakeProber struct {
	tags map[string]string
	err  error
}

func (f *fakeProber) ProbeVideo(_ context.Context, path string) (*ffmpeg.VideoInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ffmpeg.VideoInfo{
		FilePath:   path,
		Duration:   6 * time.Second,
		Width:      1920,
		Height:     1080,
		FPS:        16,
		VideoCodec: "h264",
		Container:  "mp4",
		Tags:       f.tags,
	}, nil
}

type fakeModerator struct {
	tagText   string
	delay     time.Duration
	inFlight  atomic.Int32
	maxSeen   atomic.Int32
	described atomic.Int32
}

func (f *fakeModerator) Moderate(_ context.Context, path string, _ time.Duration) moderation.Verdict {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxSeen.Load()
		if n <= prev || f.maxSeen.CompareAndSwap(prev, n) {
			break
		}
	}
	time.Sleep(f.delay)

	if strings.Contains(filepath.Base(path), "bad") {
		return moderation.Verdict{Rating: moderation.Rejected, Reason: moderation.ReasonIllegal}
	}
	return moderation.Verdict{Rating: moderation.PG13, Reason: "swimwear", IsLegal: true, Evaluated: true, FramesInspected: 5}
}

func (f *fakeModerator) DescribeTags(context.Context, string, time.Duration) string {
	f.described.Add(1)
	return f.tagText
}

type fakeThumbs struct {
	mu    sync.Mutex
	calls []time.Duration
	err   error
}

func (f *fakeThumbs) GenerateThumbnail(_ context.Context, _, output string, at time.Duration, _ int) error {
	f.mu.Lock()
	f.calls = append(f.calls, at)
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(output, []byte("jpeg"), 0644)
}

func newTestPipeline(t *testing.T, cfg Config, prober Prober, mod Moderator, thumbs Thumbnailer) (*Pipeline, *store.SqlStore) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "clips.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(zerolog.Nop(), cfg, prober, thumbs, nil, mod, st), st
}

func TestIngestStoresEverything(t *testing.T) {
	prober := &fakeProber{tags: map[string]string{"prompt": graph, "encoder": "Lavf61"}}
	mod := &fakeModerator{tagText: "Beach, a dog\nsunny day"}
	thumbs := &fakeThumbs{}
	p, st := newTestPipeline(t, Config{AITags: true, ThumbnailDir: filepath.Join(t.TempDir(), "thumbs")}, prober, mod, thumbs)

	ctx := context.Background()
	v, err := p.Ingest(ctx, "/clips/beach_sunset_01.mp4")
	require.NoError(t, err)
	require.NotEmpty(t, v.ID)

	assert.Equal(t, "beach_sunset_01.mp4", v.Filename)
	assert.True(t, v.HasWorkflow)
	require.NotNil(t, v.Parameters)
	require.NotNil(t, v.Parameters.Steps)
	assert.Equal(t, 20, *v.Parameters.Steps)
	assert.Equal(t, uint64(42), *v.Parameters.Seed)
	assert.Equal(t, moderation.PG13, v.Verdict.Rating)

	byName := make(map[string]tagging.Tag)
	for _, tag := range v.Tags {
		byName[tag.Name] = tag
	}
	assert.Equal(t, tagging.SourceAI, byName["beach"].Source)
	assert.Equal(t, tagging.SourceFilename, byName["sunset"].Source)
	assert.Equal(t, tagging.SourceAuto, byName["hd"].Source)
	assert.Contains(t, byName, "medium")
	assert.Contains(t, byName, "landscape")
	assert.Contains(t, byName, "mp4")
	assert.Contains(t, byName, "dog")

	require.NotEmpty(t, v.Thumbnail)
	assert.FileExists(t, v.Thumbnail)
	assert.Equal(t, []time.Duration{3 * time.Second}, thumbs.calls)

	raw, err := st.Workflow(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, graph, string(raw))

	got, err := st.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.Tags, got.Tags)
}

func TestIngestWithoutWorkflow(t *testing.T) {
	mod := &fakeModerator{}
	p, st := newTestPipeline(t, Config{}, &fakeProber{}, mod, nil)

	ctx := context.Background()
	v, err := p.Ingest(ctx, "/clips/plain.mp4")
	require.NoError(t, err)
	assert.False(t, v.HasWorkflow)
	assert.Nil(t, v.Parameters)
	assert.Empty(t, v.Thumbnail)
	assert.Zero(t, mod.described.Load(), "AI tags disabled")

	_, err = st.Workflow(ctx, v.ID)
	assert.ErrorIs(t, err, store.ErrNoWorkflow)
}

func TestIngestRejectedIsNotStored(t *testing.T) {
	mod := &fakeModerator{tagText: "anything"}
	p, st := newTestPipeline(t, Config{AITags: true}, &fakeProber{}, mod, nil)

	ctx := context.Background()
	v, err := p.Ingest(ctx, "/clips/bad.mp4")
	assert.Nil(t, v)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Zero(t, mod.described.Load())

	all, err := st.List(ctx, store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestIngestProbeFailure(t *testing.T) {
	p, _ := newTestPipeline(t, Config{}, &fakeProber{err: errors.New("moov atom not found")}, &fakeModerator{}, nil)

	_, err := p.Ingest(context.Background(), "/clips/broken.mp4")
	assert.ErrorContains(t, err, "moov atom not found")

	_, err = p.Ingest(context.Background(), "")
	assert.Error(t, err)
}

func TestIngestThumbnailFailureStillStores(t *testing.T) {
	thumbs := &fakeThumbs{err: errors.New("ffmpeg exploded")}
	p, _ := newTestPipeline(t, Config{ThumbnailDir: t.TempDir()}, &fakeProber{}, &fakeModerator{}, thumbs)

	v, err := p.Ingest(context.Background(), "/clips/x.mp4")
	require.NoError(t, err)
	assert.Empty(t, v.Thumbnail)
}

func TestIngestAllBoundsConcurrency(t *testing.T) {
	mod := &fakeModerator{delay: 30 * time.Millisecond}
	p, st := newTestPipeline(t, Config{Concurrency: 3}, &fakeProber{}, mod, nil)

	paths := make([]string, 10)
	for i := range paths {
		paths[i] = fmt.Sprintf("/clips/clip_%02d.mp4", i)
	}
	paths[4] = "/clips/bad_one.mp4"

	results := p.IngestAll(context.Background(), paths)
	require.Len(t, results, len(paths))
	for i, r := range results {
		assert.Equal(t, paths[i], r.Path)
		if i == 4 {
			assert.ErrorIs(t, r.Err, ErrRejected)
			assert.Nil(t, r.Video)
			continue
		}
		assert.NoError(t, r.Err)
		assert.NotNil(t, r.Video)
	}

	assert.LessOrEqual(t, mod.maxSeen.Load(), int32(3))
	assert.Greater(t, mod.maxSeen.Load(), int32(1))

	all, err := st.List(context.Background(), store.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 9)
}

func TestIngestAllCancelled(t *testing.T) {
	p, _ := newTestPipeline(t, Config{Concurrency: 2}, &fakeProber{}, &fakeModerator{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := p.IngestAll(ctx, []string{"/clips/a.mp4", "/clips/b.mp4"})
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}
