package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextLogger_AddsRequestAndPeerFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cl := NewContextLogger(zap.New(core))

	ctx := WithPeerID(WithRequestID(context.Background(), "req-1"), "peer-9")
	cl.LogRequest(ctx, "GET", "/api/players", 200, 12)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "peer-9", fields["peer_id"])
		assert.Equal(t, int64(200), fields["status_code"])
	}
}

func TestContextLogger_NoFieldsWithoutContextValues(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cl := NewContextLogger(zap.New(core))

	cl.LogRequest(context.Background(), "POST", "/api/bans", 400, 3)

	fields := logs.All()[0].ContextMap()
	_, hasRequest := fields["request_id"]
	assert.False(t, hasRequest)
	assert.Equal(t, "", RequestIDFrom(context.Background()))
}

func TestNew_FallsBackToInfoOnUnknownLevel(t *testing.T) {
	l := New("loud")
	assert.True(t, l.Core().Enabled(zap.InfoLevel))
	assert.False(t, l.Core().Enabled(zap.DebugLevel))
}
