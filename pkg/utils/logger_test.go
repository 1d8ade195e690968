package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestToZapFields(t *testing.T) {
	fields := ToZapFields("request_id", int64(7), 42, "ignored", "error", errors.New("boom"), "dangling")

	assert.Len(t, fields, 2)
	assert.Equal(t, "request_id", fields[0].Key)
	assert.Equal(t, "error", fields[1].Key)
}

func TestFieldLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := NewFieldLogger(zap.New(core))

	logger.Info("Request approved", "request_id", int64(3))
	logger.Error("Approval failed", "error", errors.New("conflict"))

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, "Request approved", entries[0].Message)
	assert.Equal(t, int64(3), entries[0].ContextMap()["request_id"])
	assert.Equal(t, "conflict", entries[1].ContextMap()["error"])
}
