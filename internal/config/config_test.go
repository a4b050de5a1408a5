package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 6, cfg.Compression.Level)
	assert.Equal(t, "pigz", cfg.Compression.Binary)
	assert.Equal(t, 8080, cfg.Web.Port)
}

func TestValidateRejectsBadLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compression.Level = 0
	assert.Error(t, cfg.Validate())

	cfg.Compression.Level = 10
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Web.Port = -1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "loud"
	assert.Error(t, cfg.Validate())
}

func TestValidateFillsEmptyBinary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compression.Binary = ""
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "pigz", cfg.Compression.Binary)
}

func TestValidLevel(t *testing.T) {
	assert.False(t, ValidLevel(0))
	assert.True(t, ValidLevel(1))
	assert.True(t, ValidLevel(9))
	assert.False(t, ValidLevel(10))
}
