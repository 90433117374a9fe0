package workflow

import (
	"fmt"
	"strings"
)

// handler applies one node to the running extraction.
type handler func(r *run, n Node)

// handlers is the dispatch table. Kinds not listed here are ignored.
var handlers = map[string]handler{
	"CLIPTextEncode":     handleTextEncode,
	"WanVideoTextEncode": handleWanTextEncode,

	"ImpactWildcardProcessor": handleWildcard,

	"WanVideoModelLoader":    handlePrimaryModel,
	"UnetLoaderGGUF":         handleQuantizedUnet,
	"CheckpointLoaderSimple": checkpointHandler("ckpt_name"),
	"UNETLoader":             checkpointHandler("unet_name"),

	"WanVideoLoraSelect":        handleLoraSelect,
	"WanVideoLoraSelectByName":  handleLoraSelect,
	"LoraLoader":                handleLoraLoader,
	"LoraLoaderModelOnly":       handleLoraLoader,
	"Lora Loader (LoraManager)": handleMultiLora,

	"KSampler":         handleSampler,
	"KSamplerAdvanced": handleSampler,
	"WanVideoSampler":  handleSampler,

	"VAELoader":                 vaeHandler("vae_name"),
	"WanVideoVAELoader":         vaeHandler("model_name"),
	"CLIPLoader":                clipHandler("clip_name"),
	"LoadWanVideoT5TextEncoder": clipHandler("model_name"),

	"VHS_VideoCombine": handleVideoCombine,

	"WanVideoEmptyEmbeds":     embedsHandler("num_frames"),
	"EmptyHunyuanLatentVideo": embedsHandler("length"),

	"AspectRatioSelector": handleAspectRatio,
	"ResolutionMaster":    handleAspectRatio,
}

func handleTextEncode(r *run, n Node) {
	if text, ok := r.str(n, "text"); ok {
		r.applyEncodedText(text)
	}
}

// handleWanTextEncode reads a node that carries both prompts explicitly.
func handleWanTextEncode(r *run, n Node) {
	if pos, ok := r.str(n, "positive_prompt"); ok && r.params.Prompt == nil {
		r.params.Prompt = ptr(pos)
	}
	if neg, ok := r.str(n, "negative_prompt"); ok {
		r.params.NegativePrompt = ptr(neg)
	}
}

// handleWildcard overrides any earlier prompt.
func handleWildcard(r *run, n Node) {
	if text, ok := r.str(n, "populated_text"); ok {
		r.params.Prompt = ptr(text)
	}
}

func handlePrimaryModel(r *run, n Node) {
	name, ok := r.str(n, "model")
	if !ok {
		return
	}
	if r.params.Model == nil || strings.Contains(strings.ToUpper(name), "HIGH") {
		r.params.Model = ptr(name)
	}
}

// handleQuantizedUnet joins paired high/low noise models.
func handleQuantizedUnet(r *run, n Node) {
	name, ok := r.str(n, "unet_name")
	if !ok {
		return
	}
	switch {
	case r.params.Model == nil:
		r.params.Model = ptr(name)
	case !strings.Contains(*r.params.Model, name):
		r.params.Model = ptr(*r.params.Model + " + " + name)
	}
}

func checkpointHandler(field string) handler {
	return func(r *run, n Node) {
		if r.params.Model != nil {
			return
		}
		if name, ok := r.str(n, field); ok {
			r.params.Model = ptr(name)
		}
	}
}

func handleLoraSelect(r *run, n Node) {
	name, ok := r.str(n, "lora")
	if !ok || name == "none" {
		return
	}
	strength, ok := r.firstNum(n, "strength", "lora_strength", "strength_model")
	if !ok {
		strength = 1.0
	}
	r.addLora(name, strength)
}

func handleLoraLoader(r *run, n Node) {
	name, ok := r.str(n, "lora_name")
	if !ok {
		return
	}
	strength, ok := r.firstNum(n, "strength_model", "strength_clip")
	if !ok {
		strength = 1.0
	}
	r.addLora(name, strength)
}

func handleMultiLora(r *run, n Node) {
	records, ok := n.Field("loras").LoraRecords()
	if !ok {
		return
	}
	for _, rec := range records {
		if !rec.Active || rec.Name == "" {
			continue
		}
		r.addLora(rec.Name, rec.Strength)
	}
}

func handleSampler(r *run, n Node) {
	if steps, ok := r.integer(n, "steps"); ok {
		r.params.Steps = ptr(int(steps))
	}
	if cfg, ok := r.num(n, "cfg"); ok {
		r.params.CFG = ptr(cfg)
	}
	if seed, ok := r.unsigned(n, "seed"); ok {
		r.params.Seed = ptr(seed)
	} else if seed, ok := r.unsigned(n, "noise_seed"); ok {
		r.params.Seed = ptr(seed)
	}
	if sampler, ok := r.str(n, "sampler_name"); ok {
		r.params.Sampler = ptr(sampler)
	}
	if scheduler, ok := r.str(n, "scheduler"); ok {
		r.params.Scheduler = ptr(scheduler)
	}
}

func vaeHandler(field string) handler {
	return func(r *run, n Node) {
		if name, ok := r.str(n, field); ok {
			r.params.VAEModel = ptr(name)
		}
	}
}

func clipHandler(field string) handler {
	return func(r *run, n Node) {
		if name, ok := r.str(n, field); ok {
			r.params.CLIPModel = ptr(name)
		}
	}
}

func handleVideoCombine(r *run, n Node) {
	if fps, ok := r.num(n, "frame_rate"); ok {
		r.params.FrameRate = ptr(fps)
	}
}

func embedsHandler(framesField string) handler {
	return func(r *run, n Node) {
		if frames, ok := r.integer(n, framesField); ok {
			r.params.NumFrames = ptr(int(frames))
		}
		w, wok := r.integer(n, "width")
		h, hok := r.integer(n, "height")
		if wok && hok {
			r.params.Resolution = ptr(fmt.Sprintf("%dx%d", w, h))
		}
	}
}

func handleAspectRatio(r *run, n Node) {
	if ratio, ok := r.str(n, "aspect_ratio"); ok {
		r.params.AspectRatio = ptr(ratio)
	}
}
