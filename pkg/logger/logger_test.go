package logger

import (
	"exam_coach_backend/internal/config"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestResolveLevel(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Mode = "debug"
	assert.Equal(t, zap.DebugLevel, ResolveLevel(cfg))

	cfg.Server.Mode = "release"
	assert.Equal(t, zap.InfoLevel, ResolveLevel(cfg))

	cfg.Log.Level = "warn"
	assert.Equal(t, zap.WarnLevel, ResolveLevel(cfg))

	cfg.Log.Level = "loud"
	assert.Equal(t, zap.InfoLevel, ResolveLevel(cfg))
}
