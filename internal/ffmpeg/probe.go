package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/royen99/clip-manager/pkg/util"
)

// ProbeVideo extracts metadata from a video file
func (e *Executor) ProbeVideo(ctx context.Context, filePath string) (*VideoInfo, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path is required")
	}

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	}

	cmd := exec.CommandContext(ctx, e.ffprobePath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	info, err := parseProbe(filePath, output)
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("file", filePath).
		Int("width", info.Width).
		Int("height", info.Height).
		Dur("duration", info.Duration).
		Int("tags", len(info.Tags)).
		Msg("probed video")

	return info, nil
}

func parseProbe(filePath string, output []byte) (*VideoInfo, error) {
	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &VideoInfo{
		FilePath:   filePath,
		FormatName: probe.Format.FormatName,
		Container:  containerName(filePath, probe.Format.FormatName),
		Tags:       probe.Format.Tags,
	}
	if info.Tags == nil {
		info.Tags = map[string]string{}
	}

	if d, ok := util.ParseSeconds(probe.Format.Duration); ok {
		info.Duration = d
	}

	if br, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
		info.Bitrate = br
	}

	hasVideo := false
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			// cover art shows up as a video stream; keep the first real one
			if hasVideo || stream.Disposition.AttachedPic == 1 {
				continue
			}
			hasVideo = true
			info.Width = stream.Width
			info.Height = stream.Height
			info.VideoCodec = stream.CodecName

			// Calculate FPS from r_frame_rate (e.g., "30/1")
			if stream.RFrameRate != "" {
				info.FPS = util.ParseFrameRate(stream.RFrameRate)
			}
			if info.Duration == 0 {
				if d, ok := util.ParseSeconds(stream.Duration); ok {
					info.Duration = d
				}
			}
		case "audio":
			info.HasAudio = true
			info.AudioCodec = stream.CodecName
		}
	}

	if !hasVideo {
		return nil, fmt.Errorf("no video stream in %s", filePath)
	}
	return info, nil
}

// containerName picks the short container name. ffprobe reports a family
// such as "mov,mp4,m4a,3gp,3g2,mj2"; the file extension chooses within it.
func containerName(filePath, formatName string) string {
	names := strings.Split(formatName, ",")
	ext := util.GetExtension(filePath)
	for _, n := range names {
		if n == ext {
			return n
		}
	}
	if ext == "mkv" && strings.Contains(formatName, "matroska") {
		return "mkv"
	}
	if len(names) > 0 && names[0] != "" {
		return names[0]
	}
	return ext
}

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		FormatName string            `json:"format_name"`
		Duration   string            `json:"duration"`
		BitRate    string            `json:"bit_rate"`
		Tags       map[string]string `json:"tags"`
	} `json:"format"`
	Streams []struct {
		CodecType   string `json:"codec_type"`
		CodecName   string `json:"codec_name"`
		Width       int    `json:"width"`
		Height      int    `json:"height"`
		RFrameRate  string `json:"r_frame_rate"`
		Duration    string `json:"duration"`
		Disposition struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
	} `json:"streams"`
}
