package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerWritesFields(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	logger := NewLoggerWithCore(core)

	logger.Info("order created", map[string]interface{}{"orderId": "o-1"})
	logger.Warn("request failed", map[string]interface{}{"error": errors.New("boom")})
	logger.Debugf("attempt %d", 2)

	entries := observed.TakeAll()
	require.Len(t, entries, 3)

	assert.Equal(t, "order created", entries[0].Message)
	assert.Equal(t, "o-1", entries[0].ContextMap()["orderId"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])

	assert.Equal(t, "attempt 2", entries[2].Message)
}

func TestLoggerWith(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := NewLoggerWithCore(core).With(map[string]interface{}{"component": "store"})

	logger.Debug("hidden", nil)
	logger.Error("visible", nil)

	entries := observed.TakeAll()
	require.Len(t, entries, 1)
	assert.Equal(t, "store", entries[0].ContextMap()["component"])
}

func TestLogLevelMapping(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, LogLevel("debug").zapLevel())
	assert.Equal(t, zapcore.WarnLevel, WARN.zapLevel())
	assert.Equal(t, zapcore.ErrorLevel, ERROR.zapLevel())
	assert.Equal(t, zapcore.InfoLevel, LogLevel("verbose").zapLevel())
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		logger, err := NewLogger(INFO, env)
		require.NoError(t, err, env)
		assert.NotNil(t, logger.Zap())
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordAPICall("POST /orders", true, 10*time.Millisecond)
	m.RecordAPICall("POST /orders", false, 30*time.Millisecond)
	m.RecordAPICall("GET /orders", true, 5*time.Millisecond)
	m.RecordOutcome("Completed")
	m.RecordOutcome("Completed")
	m.RecordOutcome("Failed")
	m.RecordErrorKind("not_found")

	snap := m.GetSnapshot()
	assert.Equal(t, []string{"GET /orders", "POST /orders"}, snap.Endpoints())

	post := snap.APICalls["POST /orders"]
	assert.Equal(t, 2, post.TotalCalls)
	assert.Equal(t, 1, post.SuccessfulCalls)
	assert.Equal(t, 1, post.FailedCalls)
	assert.Equal(t, 20*time.Millisecond, post.AvgDuration)
	assert.Equal(t, 10*time.Millisecond, post.MinDuration)
	assert.Equal(t, 30*time.Millisecond, post.MaxDuration)

	assert.Equal(t, 2, snap.Outcomes["Completed"])
	assert.Equal(t, 1, snap.Outcomes["Failed"])
	assert.Equal(t, 1, snap.ErrorKinds["not_found"])

	// snapshot is a copy
	snap.Outcomes["Completed"] = 99
	assert.Equal(t, 2, m.GetSnapshot().Outcomes["Completed"])
}

func TestJournalRoundTrip(t *testing.T) {
	dir := t.TempDir()

	j, err := NewJournal(dir)
	require.NoError(t, err)

	require.NoError(t, j.Record(JournalEntry{IdempotencyKey: "k1", Outcome: "Completed", OrderID: "o-1"}))
	require.NoError(t, j.Record(JournalEntry{IdempotencyKey: "k2", Outcome: "InProgress", SagaExecutionID: "s-2"}))
	require.NoError(t, j.Record(JournalEntry{IdempotencyKey: "k3", Outcome: "Failed", OrderID: "o-3"}))
	require.NoError(t, j.Record(JournalEntry{IdempotencyKey: "k1", Outcome: "Completed", OrderID: "o-1"}))
	require.NoError(t, j.Close())

	latest, err := LatestJournal(dir)
	require.NoError(t, err)
	assert.Equal(t, j.Path(), latest)
	assert.Contains(t, filepath.Base(latest), j.Timestamp())

	entries, err := ReadJournal(latest)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.False(t, entries[0].Time.IsZero())
	assert.Equal(t, "s-2", entries[1].SagaExecutionID)

	assert.Equal(t, []string{"o-1", "o-3"}, JournalOrderIDs(entries))
}

func TestReadJournalErrors(t *testing.T) {
	_, err := ReadJournal(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"outcome\":\"Completed\"}\n\nnot json\n"), 0644))
	_, err = ReadJournal(path)
	assert.ErrorContains(t, err, "journal line 3")

	_, err = LatestJournal(t.TempDir())
	assert.Error(t, err)
}
