package logging

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_RespectsLevel(t *testing.T) {
	log := New(Config{Level: zerolog.WarnLevel, Format: "json"})
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("PREFSTORE_LOG_LEVEL", "debug")
	t.Setenv("PREFSTORE_LOG_FORMAT", "json")

	log := NewFromEnv()
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())
}

func TestNewFromEnv_IgnoresUnknownValues(t *testing.T) {
	t.Setenv("PREFSTORE_LOG_LEVEL", "shouting")

	log := NewFromEnv()
	assert.Equal(t, DefaultConfig().Level, log.GetLevel())
}

func TestNop_IsDisabled(t *testing.T) {
	assert.Equal(t, zerolog.Disabled, Nop().GetLevel())
}

func TestWithComponent(t *testing.T) {
	base := New(Config{Level: zerolog.InfoLevel, Format: "json"})
	ctx := WithContext(context.Background(), base)

	child := FromContext(WithComponent(ctx, "prefstore"))
	assert.Equal(t, zerolog.InfoLevel, child.GetLevel())
}
