// Package mock provides deterministic MediaGenerator implementations for
// local runs and tests.
package mock

import (
	"bytes"
	"context"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"

	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

// Generator satisfies models.MediaGenerator. GenerateFunc overrides the
// default behavior when set.
type Generator struct {
	Name_        string
	GenerateFunc func(ctx context.Context, req models.MediaRequest) (models.MediaResult, error)

	calls atomic.Int64
}

func (g *Generator) Name() string { return g.Name_ }

// Calls reports how many times Generate ran.
func (g *Generator) Calls() int {
	return int(g.calls.Load())
}

func (g *Generator) Generate(ctx context.Context, req models.MediaRequest) (models.MediaResult, error) {
	g.calls.Add(1)
	if g.GenerateFunc != nil {
		return g.GenerateFunc(ctx, req)
	}
	return models.MediaResult{}, nil
}

// NewGenerator returns a Generator that renders a small solid PNG whose
// colour is derived from the prompt, so equal prompts yield equal bytes.
// Video requests return a fixed placeholder payload.
func NewGenerator() *Generator {
	return &Generator{
		Name_: "mock",
		GenerateFunc: func(_ context.Context, req models.MediaRequest) (models.MediaResult, error) {
			if req.MediaType == models.MediaTypeVideo {
				return models.MediaResult{Data: []byte("mock-video:" + req.Prompt), MIMEType: "video/mp4"}, nil
			}
			data, err := SolidPNG(req.Prompt, 64, 64)
			if err != nil {
				return models.MediaResult{}, err
			}
			return models.MediaResult{Data: data, MIMEType: "image/png"}, nil
		},
	}
}

// NewFailingGenerator returns a Generator that always returns err.
func NewFailingGenerator(err error) *Generator {
	return &Generator{
		Name_: "mock-failing",
		GenerateFunc: func(_ context.Context, _ models.MediaRequest) (models.MediaResult, error) {
			return models.MediaResult{}, err
		},
	}
}

// NewTimeoutGenerator returns a Generator that blocks until ctx is done.
func NewTimeoutGenerator() *Generator {
	return &Generator{
		Name_: "mock-timeout",
		GenerateFunc: func(ctx context.Context, _ models.MediaRequest) (models.MediaResult, error) {
			<-ctx.Done()
			return models.MediaResult{}, models.ErrGenerationTimeout
		},
	}
}

// SolidPNG encodes a w x h PNG filled with a colour hashed from seed.
func SolidPNG(seed string, w, h int) ([]byte, error) {
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(seed))
	sum := hash.Sum32()
	fill := color.RGBA{R: uint8(sum), G: uint8(sum >> 8), B: uint8(sum >> 16), A: 255}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var _ models.MediaGenerator = (*Generator)(nil)
