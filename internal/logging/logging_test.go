package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))

	ctx = WithRequestID(ctx, "req_123")
	assert.Equal(t, "req_123", RequestID(ctx))
}

func TestSessionIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, SessionID(ctx))

	ctx = WithSessionID(ctx, "sess_abc")
	assert.Equal(t, "sess_abc", SessionID(ctx))
}

func TestLoggerFromContext(t *testing.T) {
	logger := New("debug", "json")
	ctx := WithLogger(context.Background(), logger)

	assert.Equal(t, logger, FromContext(ctx))
	assert.NotNil(t, L(WithRequestID(ctx, "req_1")))
}

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		assert.NotNil(t, New(level, "text"))
	}
}
