package openai_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kiranshivaraju/catalogstudio/internal/config"
	"github.com/kiranshivaraju/catalogstudio/internal/logger"
	"github.com/kiranshivaraju/catalogstudio/internal/media/openai"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newTestGenerator(t *testing.T, handler http.HandlerFunc) *openai.Generator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return openai.NewGenerator(
		config.OpenAIConfig{APIKey: "sk-test", ImageModel: "gpt-image-1"},
		logger.Nop(),
		option.WithBaseURL(srv.URL+"/v1/"),
		option.WithMaxRetries(0),
	)
}

func imagesResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"created": 1700000000, "data": [{"b64_json": "` +
		base64.StdEncoding.EncodeToString(pngBytes) + `"}]}`))
}

func TestGenerate_TextOnlyUsesGenerations(t *testing.T) {
	var path string
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		imagesResponse(w)
	})

	res, err := g.Generate(context.Background(), models.MediaRequest{Prompt: "a mug", MediaType: models.MediaTypeImage})
	require.NoError(t, err)
	assert.Equal(t, "/v1/images/generations", path)
	assert.Equal(t, pngBytes, res.Data)
	assert.Equal(t, "image/png", res.MIMEType)
}

func TestGenerate_WithReferenceUsesEdits(t *testing.T) {
	var path, contentType string
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		contentType = r.Header.Get("Content-Type")
		imagesResponse(w)
	})

	_, err := g.Generate(context.Background(), models.MediaRequest{
		Prompt:    "same mug, on a beach",
		MediaType: models.MediaTypeImage,
		Reference: &models.ReferenceImage{Data: pngBytes, MIMEType: "image/png"},
	})
	require.NoError(t, err)
	assert.Equal(t, "/v1/images/edits", path)
	assert.True(t, strings.HasPrefix(contentType, "multipart/form-data"))
}

func TestGenerate_ServerErrorIsUnavailable(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
	})

	_, err := g.Generate(context.Background(), models.MediaRequest{Prompt: "a mug"})
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}

func TestGenerate_EmptyDataIsInvalid(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created": 1700000000, "data": []}`))
	})

	_, err := g.Generate(context.Background(), models.MediaRequest{Prompt: "a mug"})
	assert.ErrorIs(t, err, models.ErrInvalidResponse)
}

func TestGenerate_VideoUnsupported(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := g.Generate(context.Background(), models.MediaRequest{Prompt: "spin", MediaType: models.MediaTypeVideo})
	assert.ErrorIs(t, err, models.ErrUnsupportedMedia)
	assert.Equal(t, "openai", g.Name())
}
