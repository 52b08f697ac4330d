package logging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/smartfit/internal/config"
)

func TestNewLoggerWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "smartfit.log")
	logger, err := NewLogger(config.LogConfig{
		Level:    "debug",
		File:     path,
		MaxAge:   time.Hour,
		Rotation: time.Hour,
	})
	require.NoError(t, err)

	logger.Info("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"timestamp"`)
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(config.LogConfig{Level: "chatty"})
	require.Error(t, err)
}

func TestOperationErrorUnwraps(t *testing.T) {
	base := errors.New("boom")
	err := NewOperationError("repository.save", "req-1", base)

	assert.ErrorIs(t, err, base)
	assert.Equal(t, "repository.save (request_id=req-1): boom", err.Error())
	assert.Nil(t, NewOperationError("noop", "", nil))
}

func TestUserOperationErrorIncludesUser(t *testing.T) {
	err := NewUserOperationError("repository.delete", "", "user-9", errors.New("gone"))
	assert.Equal(t, "repository.delete (user_id=user-9): gone", err.Error())

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "user-9", opErr.UserID)
}

func TestRequestIDRoundTripsThroughContext(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))

	ctx := ContextWithRequestID(context.Background(), "req-42")
	assert.Equal(t, "req-42", RequestIDFromContext(ctx))
}
