// Package media selects and builds the generation backend.
package media

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/catalogstudio/internal/config"
	"github.com/kiranshivaraju/catalogstudio/internal/logger"
	"github.com/kiranshivaraju/catalogstudio/internal/media/gemini"
	"github.com/kiranshivaraju/catalogstudio/internal/media/mock"
	"github.com/kiranshivaraju/catalogstudio/internal/media/openai"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

// NewGenerator constructs the backend named by cfg.Provider.
// Called once at startup.
func NewGenerator(ctx context.Context, cfg config.MediaConfig, log *logger.Logger) (models.MediaGenerator, error) {
	switch cfg.Provider {
	case "gemini":
		return gemini.NewGenerator(ctx, cfg.Gemini, log)
	case "openai":
		return openai.NewGenerator(cfg.OpenAI, log), nil
	case "mock":
		return mock.NewGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown media provider %q: must be one of gemini, openai, mock", cfg.Provider)
	}
}
