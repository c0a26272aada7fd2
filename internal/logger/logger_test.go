package logger_test

import (
	"testing"

	"github.com/kiranshivaraju/catalogstudio/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Modes(t *testing.T) {
	for _, mode := range []string{"development", "production", "PROD"} {
		l, err := logger.New(mode)
		require.NoError(t, err, mode)
		require.NotNil(t, l.SugaredLogger)
	}
}

func TestWith_CarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := logger.FromCore(core).With("job_id", "j-1")

	l.Info("unit finished", "product_id", "p-1")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "unit finished", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "j-1", fields["job_id"])
	assert.Equal(t, "p-1", fields["product_id"])
}

func TestNop_DiscardsOutput(t *testing.T) {
	l := logger.Nop()
	l.Error("ignored", "k", "v")
	l.Sync()
}
