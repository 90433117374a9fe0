package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/royen99/clip-manager/pkg/util"
)

// DetectScenes finds scene changes in video using ffmpeg scene detection
func (e *Executor) DetectScenes(ctx context.Context, input string, threshold float64) ([]time.Duration, error) {
	e.logger.Debug().
		Str("input", input).
		Float64("threshold", threshold).
		Msg("detecting scene changes")

	var stderrBuf bytes.Buffer
	var mu sync.Mutex

	opts := RunOptions{
		Args: []string{
			"-i", input,
			"-an",
			"-vf", NewFilterBuilder().SceneSelect(threshold).Custom("showinfo").Build(),
			"-f", "null",
			"-",
		},
		// showinfo reports at info level
		LogLevel: "info",
		LogHandler: func(line string) {
			if !strings.Contains(line, "pts_time:") {
				return
			}
			mu.Lock()
			stderrBuf.WriteString(line + "\n")
			mu.Unlock()
		},
	}

	err := e.Run(ctx, opts)

	mu.Lock()
	output := stderrBuf.String()
	mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !strings.Contains(err.Error(), "Conversion failed") &&
			!strings.Contains(err.Error(), "Invalid return value") &&
			!strings.Contains(err.Error(), "Output file is empty") {
			return nil, fmt.Errorf("scene detection failed: %w", err)
		}
	}

	scenes := parseSceneOutput(output)
	e.logger.Debug().Int("scenes", len(scenes)).Msg("scene detection complete")
	return scenes, nil
}

// parseSceneOutput extracts scene change timestamps from ffmpeg output
func parseSceneOutput(output string) []time.Duration {
	var scenes []time.Duration

	for _, line := range strings.Split(output, "\n") {
		_, rest, ok := strings.Cut(line, "pts_time:")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		if seconds, err := strconv.ParseFloat(fields[0], 64); err == nil {
			scenes = append(scenes, time.Duration(seconds*float64(time.Second)))
		}
	}

	return scenes
}

// ExtractFrame writes the single frame at timestamp to output. The image
// format follows the output extension.
func (e *Executor) ExtractFrame(ctx context.Context, input string, timestamp time.Duration, output string) error {
	if input == "" {
		return fmt.Errorf("input path is required")
	}
	if output == "" {
		return fmt.Errorf("output path is required")
	}

	args := []string{
		"-ss", util.FormatDuration(timestamp),
		"-i", input,
		"-an",
		"-frames:v", "1",
		"-q:v", "2",
		output,
	}

	err := e.Run(ctx, RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("frame extraction")
		},
	})
	if err != nil {
		return fmt.Errorf("extract frame at %s: %w", util.FormatDuration(timestamp), err)
	}

	if !util.NonEmptyFile(output) {
		return fmt.Errorf("extract frame at %s: %w", util.FormatDuration(timestamp), ErrNoOutput)
	}
	return nil
}

// GenerateThumbnail creates a thumbnail image at a specific timestamp,
// scaled to fit within maxEdge pixels (0 keeps the source size).
func (e *Executor) GenerateThumbnail(ctx context.Context, input, output string, timestamp time.Duration, maxEdge int) error {
	if input == "" {
		return fmt.Errorf("input path is required")
	}
	if output == "" {
		return fmt.Errorf("output path is required")
	}

	e.logger.Debug().
		Str("input", input).
		Str("output", output).
		Dur("timestamp", timestamp).
		Msg("generating thumbnail")

	args := []string{
		"-ss", util.FormatDuration(timestamp),
		"-i", input,
		"-an",
		"-frames:v", "1",
	}
	if vf := NewFilterBuilder().FitWithin(maxEdge).Build(); vf != "" {
		args = append(args, "-vf", vf)
	}
	args = append(args,
		"-q:v", "2", // high quality JPEG
		output,
	)

	opts := RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("thumbnail generation")
		},
	}

	if err := e.Run(ctx, opts); err != nil {
		return err
	}
	if !util.NonEmptyFile(output) {
		return ErrNoOutput
	}
	return nil
}
