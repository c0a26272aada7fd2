package models

import (
	"context"
	"errors"
)

// Errors every MediaGenerator maps its backend failures onto.
var (
	ErrProviderUnavailable = errors.New("media provider unavailable")
	ErrGenerationTimeout   = errors.New("media generation timed out")
	ErrInvalidResponse     = errors.New("media provider returned invalid response")
	ErrUnsupportedMedia    = errors.New("media type not supported by provider")
	ErrContentBlocked      = errors.New("media provider blocked the request")
)

// MediaGenerator is the contract every generation backend implements.
// Never call a specific backend directly; inject this interface.
type MediaGenerator interface {
	// Generate renders one artifact from a prompt and an optional reference image.
	Generate(ctx context.Context, req MediaRequest) (MediaResult, error)
	// Name returns the backend identifier (e.g., "gemini", "openai").
	Name() string
}

// MediaRequest is the input to a generation call. A nil Reference selects
// text-only generation.
type MediaRequest struct {
	Prompt    string
	MediaType MediaType
	Reference *ReferenceImage
}

type ReferenceImage struct {
	Data     []byte
	MIMEType string
}

// MediaResult is the rendered output. Width and Height may be zero when the
// backend does not report them.
type MediaResult struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}
