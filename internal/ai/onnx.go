package ai

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"
	"sync"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
	"github.com/royen99/clip-manager/internal/config"
	ort "github.com/yalue/onnxruntime_go"
)

// nsfwClasses is the output order of the five-class NSFW image model.
var nsfwClasses = []string{"drawings", "hentai", "neutral", "porn", "sexy"}

const onnxInputSize = 224

// ONNXClassifier runs a local five-class NSFW image model and phrases its
// result in the RATING/REASON form the moderation package parses. It cannot
// describe images, so tag instructions get ErrUnsupported.
type ONNXClassifier struct {
	logger    zerolog.Logger
	modelPath string
	session   *ort.DynamicAdvancedSession

	// sessions are not safe for concurrent Run calls
	mu sync.Mutex
}

// NewONNXClassifier loads the model at modelPath.
func NewONNXClassifier(logger zerolog.Logger, modelPath string, cfg config.ONNXConfig) (*ONNXClassifier, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	if cfg.Library != "" {
		ort.SetSharedLibraryPath(cfg.Library)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	inputNames := []string{cfg.Input}
	outputNames := []string{cfg.Output}

	sess, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create NSFW session: %w", err)
	}

	logger.Info().
		Str("model", modelPath).
		Strs("inputs", inputNames).
		Strs("outputs", outputNames).
		Msg("NSFW model loaded")

	return &ONNXClassifier{
		logger:    logger.With().Str("component", "onnx").Logger(),
		modelPath: modelPath,
		session:   sess,
	}, nil
}

// Classify rates one frame. Only rating instructions are supported.
func (c *ONNXClassifier) Classify(ctx context.Context, img []byte, instruction string) (string, error) {
	if !strings.Contains(strings.ToUpper(instruction), "RATING") {
		return "", ErrUnsupported
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return "", fmt.Errorf("failed to decode frame: %w", err)
	}

	input, err := ort.NewTensor(ort.NewShape(1, onnxInputSize, onnxInputSize, 3), pixels(decoded))
	if err != nil {
		return "", fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(nsfwClasses))))
	if err != nil {
		return "", fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	c.mu.Lock()
	err = c.session.Run([]ort.Value{input}, []ort.Value{output})
	c.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("NSFW inference failed: %w", err)
	}

	probs := output.GetData()
	if len(probs) < len(nsfwClasses) {
		return "", fmt.Errorf("unexpected output tensor of %d values", len(probs))
	}

	text := ratingText(probs)
	c.logger.Debug().Floats32("probs", probs).Str("answer", text).Msg("frame classified")
	return text, nil
}

// Available reports whether the session loaded.
func (c *ONNXClassifier) Available(context.Context) bool {
	return c.session != nil
}

// Close releases the session and the ONNX environment.
func (c *ONNXClassifier) Close() error {
	c.logger.Info().Msg("closing NSFW model session")
	if c.session != nil {
		if err := c.session.Destroy(); err != nil {
			return err
		}
	}
	return ort.DestroyEnvironment()
}

// pixels resizes img to the model input and lays it out as NHWC float32
// scaled to [0,1].
func pixels(img image.Image) []float32 {
	resized := resize.Resize(onnxInputSize, onnxInputSize, img, resize.Bilinear)
	bounds := resized.Bounds()

	data := make([]float32, 0, 3*onnxInputSize*onnxInputSize)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			data = append(data,
				float32(r>>8)/255.0,
				float32(g>>8)/255.0,
				float32(b>>8)/255.0,
			)
		}
	}
	return data
}

// ratingText maps class probabilities to a two-line rating answer.
func ratingText(probs []float32) string {
	drawings, hentai, porn, sexy := probs[0], probs[1], probs[3], probs[4]

	var rating string
	switch {
	case porn >= 0.6 || hentai >= 0.6:
		rating = "XXX"
	case porn+hentai >= 0.3 || sexy >= 0.6:
		rating = "R"
	case sexy >= 0.3:
		rating = "PG-13"
	default:
		rating = "SAFE"
	}

	top := 0
	for i := range nsfwClasses {
		if probs[i] > probs[top] {
			top = i
		}
	}
	reason := fmt.Sprintf("classifier: %s %.2f (porn %.2f, hentai %.2f, sexy %.2f, drawings %.2f)",
		nsfwClasses[top], probs[top], porn, hentai, sexy, drawings)

	return "RATING: " + rating + "\nREASON: " + reason
}
