package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/pkg/observability"
)

func TestFileLogger_WritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: dir})
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	require.NoError(t, logger.LogEvent(ctx, &Event{
		EventType:    EventTypeStageCreate,
		Status:       EventStatusSuccess,
		SessionID:    "s1",
		Category:     "users",
		ResourceName: "jdoe",
	}))
	require.NoError(t, logger.LogEvent(ctx, &Event{
		EventType: EventTypeReviewCommit,
		Status:    EventStatusSuccess,
		SessionID: "s1",
	}))

	file, err := os.Open(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		events = append(events, event)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 2)
	assert.Equal(t, EventTypeStageCreate, events[0].EventType)
	assert.Equal(t, "jdoe", events[0].ResourceName)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, EventTypeReviewCommit, events[1].EventType)
}

func TestFileLogger_FillsContextFields(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: dir})
	require.NoError(t, err)
	defer logger.Close()

	ctx := observability.WithSessionID(context.Background(), "ctx-session")
	ctx = observability.WithRequestID(ctx, "ctx-request")
	require.NoError(t, logger.LogEvent(ctx, &Event{EventType: EventTypePendingRead, Status: EventStatusSuccess}))

	data, err := os.ReadFile(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "ctx-session", event.SessionID)
	assert.Equal(t, "ctx-request", event.RequestID)
}

func TestFileLogger_NilEventIsNoOp(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: dir})
	require.NoError(t, err)
	defer logger.Close()

	require.NoError(t, logger.LogEvent(context.Background(), nil))

	data, err := os.ReadFile(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestFileLogger_RotatesWhenFull(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: dir, MaxSize: 64, MaxFiles: 5})
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, logger.LogEvent(ctx, &Event{
			EventType: EventTypeStageUpdate,
			Status:    EventStatusSuccess,
			SessionID: "rotation-session",
			Category:  "devices",
		}))
	}

	rotated, err := filepath.Glob(filepath.Join(dir, "audit-*.log"))
	require.NoError(t, err)
	assert.NotEmpty(t, rotated)

	_, err = os.Stat(filepath.Join(dir, "audit.log"))
	assert.NoError(t, err)
}

func TestNopLogger(t *testing.T) {
	var logger Logger = NopLogger{}
	assert.NoError(t, logger.LogEvent(context.Background(), &Event{}))
	assert.NoError(t, logger.Close())
}
