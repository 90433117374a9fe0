package ffmpeg

import "time"

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath   string
	Duration   time.Duration
	Width      int
	Height     int
	FPS        float64
	Bitrate    int64
	VideoCodec string
	HasAudio   bool
	AudioCodec string
	// Container is the short container name, e.g. "mp4" or "webm".
	Container string
	// FormatName is ffprobe's raw format_name list.
	FormatName string
	// Tags are the container-level metadata tags. ComfyUI video nodes
	// store the workflow here.
	Tags map[string]string
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	Time    string
	Speed   string
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler func(*Progress)
	LogHandler      func(line string)
	// LogLevel is passed to -loglevel; empty means "error".
	LogLevel string
}

// ProgressFunc is a callback for progress updates during ffmpeg operations.
type ProgressFunc func(*Progress)
