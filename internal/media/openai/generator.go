// Package openai renders images with the OpenAI Images API.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/kiranshivaraju/catalogstudio/internal/artifacts"
	"github.com/kiranshivaraju/catalogstudio/internal/config"
	"github.com/kiranshivaraju/catalogstudio/internal/logger"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

// Generator implements models.MediaGenerator using OpenAI image models.
// Video is not offered by this backend.
type Generator struct {
	client openai.Client
	model  openai.ImageModel
	log    *logger.Logger
}

func NewGenerator(cfg config.OpenAIConfig, log *logger.Logger, opts ...option.RequestOption) *Generator {
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	model := cfg.ImageModel
	if model == "" {
		model = string(openai.ImageModelGPTImage1)
	}
	return &Generator{
		client: openai.NewClient(opts...),
		model:  openai.ImageModel(model),
		log:    log.With("provider", "openai"),
	}
}

func (g *Generator) Name() string { return "openai" }

func (g *Generator) Generate(ctx context.Context, req models.MediaRequest) (models.MediaResult, error) {
	if req.MediaType != models.MediaTypeImage && req.MediaType != "" {
		return models.MediaResult{}, fmt.Errorf("%w: openai cannot render %s", models.ErrUnsupportedMedia, req.MediaType)
	}

	var (
		resp *openai.ImagesResponse
		err  error
	)
	if req.Reference != nil && len(req.Reference.Data) > 0 {
		g.log.Debug("editing image", "model", g.model)
		name := "reference." + artifacts.ExtensionFor(req.Reference.MIMEType)
		resp, err = g.client.Images.Edit(ctx, openai.ImageEditParams{
			Image: openai.ImageEditParamsImageUnion{
				OfFile: openai.File(bytes.NewReader(req.Reference.Data), name, req.Reference.MIMEType),
			},
			Prompt:       req.Prompt,
			Model:        g.model,
			N:            openai.Int(1),
			OutputFormat: openai.ImageEditParamsOutputFormatPNG,
		})
	} else {
		g.log.Debug("generating image", "model", g.model)
		resp, err = g.client.Images.Generate(ctx, openai.ImageGenerateParams{
			Prompt:       req.Prompt,
			Model:        g.model,
			N:            openai.Int(1),
			OutputFormat: openai.ImageGenerateParamsOutputFormatPNG,
		})
	}
	if err != nil {
		return models.MediaResult{}, classifyError(ctx, err)
	}
	return imageFromResponse(resp)
}

func imageFromResponse(resp *openai.ImagesResponse) (models.MediaResult, error) {
	if resp == nil || len(resp.Data) == 0 {
		return models.MediaResult{}, fmt.Errorf("%w: no image data", models.ErrInvalidResponse)
	}
	encoded := resp.Data[0].B64JSON
	if encoded == "" {
		return models.MediaResult{}, fmt.Errorf("%w: image returned without b64_json", models.ErrInvalidResponse)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return models.MediaResult{}, fmt.Errorf("%w: decode b64_json: %v", models.ErrInvalidResponse, err)
	}
	return models.MediaResult{Data: data, MIMEType: http.DetectContentType(data)}, nil
}

func classifyError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrGenerationTimeout, err)
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusBadRequest && apiErr.Code == "moderation_blocked":
			return fmt.Errorf("%w: %s", models.ErrContentBlocked, apiErr.Message)
		case apiErr.StatusCode == http.StatusTooManyRequests, apiErr.StatusCode >= 500,
			apiErr.StatusCode == http.StatusUnauthorized, apiErr.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: openai %d", models.ErrProviderUnavailable, apiErr.StatusCode)
		default:
			return fmt.Errorf("%w: openai %d %s", models.ErrInvalidResponse, apiErr.StatusCode, apiErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
}

var _ models.MediaGenerator = (*Generator)(nil)
