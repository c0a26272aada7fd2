package media

import "github.com/kiranshivaraju/catalogstudio/pkg/models"

var (
	ErrProviderUnavailable = models.ErrProviderUnavailable
	ErrGenerationTimeout   = models.ErrGenerationTimeout
	ErrInvalidResponse     = models.ErrInvalidResponse
	ErrUnsupportedMedia    = models.ErrUnsupportedMedia
	ErrContentBlocked      = models.ErrContentBlocked
)
