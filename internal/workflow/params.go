package workflow

// LoraEntry is an applied lora and its strength.
type LoraEntry struct {
	Name     string  `json:"name"`
	Strength float64 `json:"strength"`
}

// Parameters is the flat record recovered from a graph. A nil member means
// the graph did not provide it.
type Parameters struct {
	Prompt         *string     `json:"prompt"`
	NegativePrompt *string     `json:"negative_prompt"`
	Model          *string     `json:"model"`
	Loras          []LoraEntry `json:"loras"`
	Steps          *int        `json:"steps"`
	CFG            *float64    `json:"cfg"`
	Seed           *uint64     `json:"seed"`
	Sampler        *string     `json:"sampler"`
	Scheduler      *string     `json:"scheduler"`
	Resolution     *string     `json:"resolution"`
	FrameRate      *float64    `json:"frame_rate"`
	NumFrames      *int        `json:"num_frames"`
	VAEModel       *string     `json:"vae_model"`
	CLIPModel      *string     `json:"clip_model"`
	AspectRatio    *string     `json:"aspect_ratio"`
}

// IsEmpty reports whether nothing was extracted.
func (p Parameters) IsEmpty() bool {
	return p.Prompt == nil && p.NegativePrompt == nil && p.Model == nil &&
		len(p.Loras) == 0 && p.Steps == nil && p.CFG == nil && p.Seed == nil &&
		p.Sampler == nil && p.Scheduler == nil && p.Resolution == nil &&
		p.FrameRate == nil && p.NumFrames == nil && p.VAEModel == nil &&
		p.CLIPModel == nil && p.AspectRatio == nil
}

func ptr[T any](v T) *T { return &v }
