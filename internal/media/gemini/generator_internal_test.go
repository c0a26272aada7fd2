package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/kiranshivaraju/catalogstudio/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestImageFromResponse_FirstInlineImage(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{
				genai.NewPartFromText("here you go"),
				genai.NewPartFromBytes([]byte("img-bytes"), "image/png"),
			}}},
		},
	}

	res, err := imageFromResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, []byte("img-bytes"), res.Data)
	assert.Equal(t, "image/png", res.MIMEType)
}

func TestImageFromResponse_PromptBlocked(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
	}
	_, err := imageFromResponse(resp)
	assert.ErrorIs(t, err, models.ErrContentBlocked)
}

func TestImageFromResponse_SafetyFinish(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonImageSafety}},
	}
	_, err := imageFromResponse(resp)
	assert.ErrorIs(t, err, models.ErrContentBlocked)
}

func TestImageFromResponse_TextOnly(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText("no image, sorry")}}},
		},
	}
	_, err := imageFromResponse(resp)
	assert.ErrorIs(t, err, models.ErrInvalidResponse)

	_, err = imageFromResponse(nil)
	assert.ErrorIs(t, err, models.ErrInvalidResponse)
}

func TestVideoFromOperation(t *testing.T) {
	_, err := videoFromOperation(&genai.GenerateVideosOperation{Done: true, Error: map[string]any{"message": "quota"}})
	assert.ErrorIs(t, err, models.ErrInvalidResponse)

	_, err = videoFromOperation(&genai.GenerateVideosOperation{Done: true, Response: &genai.GenerateVideosResponse{
		RAIMediaFilteredCount:   1,
		RAIMediaFilteredReasons: []string{"celebrity likeness"},
	}})
	assert.ErrorIs(t, err, models.ErrContentBlocked)

	v, err := videoFromOperation(&genai.GenerateVideosOperation{Done: true, Response: &genai.GenerateVideosResponse{
		GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{VideoBytes: []byte("mp4"), MIMEType: "video/mp4"}}},
	}})
	require.NoError(t, err)
	assert.Equal(t, []byte("mp4"), v.Video.VideoBytes)
}

func TestClassifyError(t *testing.T) {
	ctx := context.Background()

	assert.ErrorIs(t, classifyError(ctx, context.DeadlineExceeded), models.ErrGenerationTimeout)
	assert.ErrorIs(t, classifyError(ctx, genai.APIError{Code: 429, Message: "slow down"}), models.ErrProviderUnavailable)
	assert.ErrorIs(t, classifyError(ctx, genai.APIError{Code: 503}), models.ErrProviderUnavailable)
	assert.ErrorIs(t, classifyError(ctx, genai.APIError{Code: 400, Message: "bad"}), models.ErrInvalidResponse)
	assert.ErrorIs(t, classifyError(ctx, errors.New("dial tcp: refused")), models.ErrProviderUnavailable)

	expired, cancel := context.WithTimeout(ctx, 0)
	defer cancel()
	<-expired.Done()
	assert.ErrorIs(t, classifyError(expired, errors.New("transport closed")), models.ErrGenerationTimeout)
}
