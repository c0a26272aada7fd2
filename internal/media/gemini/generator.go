// Package gemini renders images and videos with the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/kiranshivaraju/catalogstudio/internal/config"
	"github.com/kiranshivaraju/catalogstudio/internal/logger"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

// Generator implements models.MediaGenerator on top of google.golang.org/genai.
type Generator struct {
	client *genai.Client
	cfg    config.GeminiConfig
	log    *logger.Logger
}

func NewGenerator(ctx context.Context, cfg config.GeminiConfig, log *logger.Logger) (*Generator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	return &Generator{client: client, cfg: cfg, log: log.With("provider", "gemini")}, nil
}

func (g *Generator) Name() string { return "gemini" }

func (g *Generator) Generate(ctx context.Context, req models.MediaRequest) (models.MediaResult, error) {
	switch req.MediaType {
	case models.MediaTypeVideo:
		return g.generateVideo(ctx, req)
	case models.MediaTypeImage, "":
		return g.generateImage(ctx, req)
	default:
		return models.MediaResult{}, fmt.Errorf("%w: %s", models.ErrUnsupportedMedia, req.MediaType)
	}
}

func (g *Generator) generateImage(ctx context.Context, req models.MediaRequest) (models.MediaResult, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if req.Reference != nil && len(req.Reference.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Reference.Data, req.Reference.MIMEType))
	}

	g.log.Debug("generating image", "model", g.cfg.ImageModel, "with_reference", len(parts) > 1)

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.ImageModel,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{ResponseModalities: []string{"IMAGE", "TEXT"}},
	)
	if err != nil {
		return models.MediaResult{}, classifyError(ctx, err)
	}
	return imageFromResponse(resp)
}

// imageFromResponse pulls the first inline image out of a GenerateContent
// response.
func imageFromResponse(resp *genai.GenerateContentResponse) (models.MediaResult, error) {
	if resp == nil {
		return models.MediaResult{}, fmt.Errorf("%w: empty response", models.ErrInvalidResponse)
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		return models.MediaResult{}, fmt.Errorf("%w: prompt blocked (%s)", models.ErrContentBlocked, fb.BlockReason)
	}

	var finish genai.FinishReason
	for _, candidate := range resp.Candidates {
		if candidate == nil {
			continue
		}
		if candidate.FinishReason != "" {
			finish = candidate.FinishReason
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mimeType := part.InlineData.MIMEType
				if mimeType == "" {
					mimeType = http.DetectContentType(part.InlineData.Data)
				}
				return models.MediaResult{Data: part.InlineData.Data, MIMEType: mimeType}, nil
			}
		}
	}

	switch finish {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonImageSafety:
		return models.MediaResult{}, fmt.Errorf("%w: finish reason %s", models.ErrContentBlocked, finish)
	}
	return models.MediaResult{}, fmt.Errorf("%w: no image in response", models.ErrInvalidResponse)
}

func (g *Generator) generateVideo(ctx context.Context, req models.MediaRequest) (models.MediaResult, error) {
	var image *genai.Image
	if req.Reference != nil && len(req.Reference.Data) > 0 {
		image = &genai.Image{ImageBytes: req.Reference.Data, MIMEType: req.Reference.MIMEType}
	}

	g.log.Debug("generating video", "model", g.cfg.VideoModel, "with_reference", image != nil)

	op, err := g.client.Models.GenerateVideos(ctx, g.cfg.VideoModel, req.Prompt, image,
		&genai.GenerateVideosConfig{NumberOfVideos: 1})
	if err != nil {
		return models.MediaResult{}, classifyError(ctx, err)
	}

	for !op.Done {
		select {
		case <-ctx.Done():
			return models.MediaResult{}, classifyError(ctx, ctx.Err())
		case <-time.After(g.cfg.PollInterval):
		}
		op, err = g.client.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return models.MediaResult{}, classifyError(ctx, err)
		}
	}

	video, err := videoFromOperation(op)
	if err != nil {
		return models.MediaResult{}, err
	}
	if len(video.Video.VideoBytes) == 0 {
		if _, err := g.client.Files.Download(ctx, genai.NewDownloadURIFromGeneratedVideo(video), nil); err != nil {
			return models.MediaResult{}, classifyError(ctx, err)
		}
	}
	if len(video.Video.VideoBytes) == 0 {
		return models.MediaResult{}, fmt.Errorf("%w: video download returned no bytes", models.ErrInvalidResponse)
	}

	mimeType := video.Video.MIMEType
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	return models.MediaResult{Data: video.Video.VideoBytes, MIMEType: mimeType}, nil
}

// videoFromOperation validates a finished operation and returns its first video.
func videoFromOperation(op *genai.GenerateVideosOperation) (*genai.GeneratedVideo, error) {
	if op.Error != nil {
		return nil, fmt.Errorf("%w: operation failed: %v", models.ErrInvalidResponse, op.Error["message"])
	}
	resp := op.Response
	if resp == nil {
		return nil, fmt.Errorf("%w: operation finished without a response", models.ErrInvalidResponse)
	}
	if len(resp.GeneratedVideos) == 0 {
		if resp.RAIMediaFilteredCount > 0 {
			return nil, fmt.Errorf("%w: %s", models.ErrContentBlocked, strings.Join(resp.RAIMediaFilteredReasons, "; "))
		}
		return nil, fmt.Errorf("%w: no video in response", models.ErrInvalidResponse)
	}
	video := resp.GeneratedVideos[0]
	if video == nil || video.Video == nil {
		return nil, fmt.Errorf("%w: empty video entry", models.ErrInvalidResponse)
	}
	return video, nil
}

// classifyError maps client errors onto the generator sentinel errors.
func classifyError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrGenerationTimeout, err)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests, apiErr.Code >= 500,
			apiErr.Code == http.StatusUnauthorized, apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: gemini %d %s", models.ErrProviderUnavailable, apiErr.Code, apiErr.Message)
		default:
			return fmt.Errorf("%w: gemini %d %s", models.ErrInvalidResponse, apiErr.Code, apiErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
}

var _ models.MediaGenerator = (*Generator)(nil)
