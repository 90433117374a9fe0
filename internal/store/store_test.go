package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/royen99/clip-manager/internal/moderation"
	"github.com/royen99/clip-manager/internal/tagging"
	"github.com/royen99/clip-manager/internal/workflow"
)

func openTestStore(t *testing.T) (*SqlStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "clips.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

// rawGraph has odd spacing, key order and escapes that a re-encode would lose.
const rawGraph = "{ \"9\":{\"class_type\":\"KSampler\",  \"inputs\":{\"seed\":1e3,\"steps\":20}},\n" +
	"\t\"1\": {\"class_type\": \"CLIPTextEncode\", \"inputs\": {\"text\": \"caf\\u00e9 · night\"}} }"

func sampleVideo() *Video {
	return &Video{
		Filename:   "night_city.mp4",
		Path:       "/clips/night_city.mp4",
		Duration:   5250 * time.Millisecond,
		Width:      832,
		Height:     480,
		FPS:        16,
		Bitrate:    1_500_000,
		VideoCodec: "h264",
		Container:  "mp4",
		Workflow:   []byte(rawGraph),
		Parameters: func() *workflow.Parameters {
			p := workflow.ExtractJSON([]byte(rawGraph))
			return &p
		}(),
		Verdict: moderation.Verdict{
			Rating: moderation.PG13, Reason: "neon signs", IsLegal: true,
			Evaluated: true, FramesInspected: 5,
		},
		Tags: []tagging.Tag{
			{Name: "city", Confidence: 0.8, Source: tagging.SourceAI},
			{Name: "night", Confidence: 0.6, Source: tagging.SourceFilename},
		},
		Thumbnail: "/thumbs/x.jpg",
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	v := sampleVideo()
	require.NoError(t, s.Save(ctx, v))
	require.NotEmpty(t, v.ID)
	assert.True(t, v.HasWorkflow)

	got, err := s.Get(ctx, v.ID)
	require.NoError(t, err)

	want := *v
	want.Workflow = nil
	if diff := cmp.Diff(&want, got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWorkflowIsByteIdentical(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	v := sampleVideo()
	require.NoError(t, s.Save(ctx, v))

	raw, err := s.Workflow(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, rawGraph, string(raw))
}

func TestWorkflowMissing(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	v := sampleVideo()
	v.Workflow = nil
	v.Parameters = nil
	require.NoError(t, s.Save(ctx, v))

	_, err := s.Workflow(ctx, v.ID)
	assert.ErrorIs(t, err, ErrNoWorkflow)

	got, err := s.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, got.HasWorkflow)
	assert.Nil(t, got.Parameters)

	_, err = s.Workflow(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSameFileKeepsID(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	first := sampleVideo()
	require.NoError(t, s.Save(ctx, first))

	again := sampleVideo()
	again.Tags = []tagging.Tag{{Name: "rain", Confidence: 1, Source: tagging.SourceAuto}}
	require.NoError(t, s.Save(ctx, again))
	assert.Equal(t, first.ID, again.ID)

	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []tagging.Tag{{Name: "rain", Confidence: 1, Source: tagging.SourceAuto}}, got.Tags)

	all, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListFilters(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ratings := []moderation.Rating{moderation.Safe, moderation.R, moderation.XXX}
	for i, r := range ratings {
		v := sampleVideo()
		v.Path = fmt.Sprintf("/clips/%d.mp4", i)
		v.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		v.Verdict.Rating = r
		if i == 2 {
			v.Tags = []tagging.Tag{{Name: "beach", Confidence: 0.8, Source: tagging.SourceAI}}
		}
		require.NoError(t, s.Save(ctx, v))
	}

	all, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "/clips/2.mp4", all[0].Path, "newest first")

	page, err := s.List(ctx, ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "/clips/1.mp4", page[0].Path)

	tagged, err := s.List(ctx, ListOptions{Tag: "Beach"})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, "/clips/2.mp4", tagged[0].Path)
	assert.Len(t, tagged[0].Tags, 1)

	maxR := moderation.R
	rated, err := s.List(ctx, ListOptions{MaxRating: &maxR})
	require.NoError(t, err)
	assert.Len(t, rated, 2)
}

func TestDelete(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	v := sampleVideo()
	require.NoError(t, s.Save(ctx, v))
	require.NoError(t, s.Delete(ctx, v.ID))

	_, err := s.Get(ctx, v.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, v.ID), ErrNotFound)

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM video_tags").Scan(&n))
	assert.Zero(t, n)
}

func TestReopenKeepsData(t *testing.T) {
	s, path := openTestStore(t)
	ctx := context.Background()

	v := sampleVideo()
	require.NoError(t, s.Save(ctx, v))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.Filename, got.Filename)
}

func TestUnknownSchemaVersion(t *testing.T) {
	s, path := openTestStore(t)
	_, err := s.db.Exec("UPDATE schema_version SET version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	assert.ErrorContains(t, err, "unknown schema version 99")
}

func TestConcurrentSaves(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := sampleVideo()
			v.Path = fmt.Sprintf("/clips/c%d.mp4", i)
			errs[i] = s.Save(ctx, v)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}

	all, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 8)
}
