package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDatabase(t *testing.T) *Database {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSessionSaveAndLoad(t *testing.T) {
	db := testDatabase(t)

	require.NoError(t, db.SaveSession("user_example_com", []byte(`[{"name":"sid"}]`)))

	blob, found, err := db.LoadSession("user_example_com")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `[{"name":"sid"}]`, string(blob))
}

func TestSessionOverwrite(t *testing.T) {
	db := testDatabase(t)

	require.NoError(t, db.SaveSession("u", []byte("old")))
	require.NoError(t, db.SaveSession("u", []byte("new")))

	blob, found, err := db.LoadSession("u")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "new", string(blob), "latest artifact wins, one row per identity")
}

func TestLoadSessionAbsent(t *testing.T) {
	db := testDatabase(t)

	blob, found, err := db.LoadSession("nobody")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, blob)
}

func TestAppendAttemptsPreservesOrder(t *testing.T) {
	db := testDatabase(t)

	runID := "run-1"
	for _, profileID := range []string{"alpha", "beta", "gamma"} {
		attempt := &Attempt{
			RunID:         runID,
			ProfileID:     profileID,
			URL:           "https://example.com/" + profileID,
			Success:       profileID != "beta",
			MessageButton: "Yes",
			MessageSent:   "Yes",
			Timestamp:     time.Now(),
		}
		require.NoError(t, db.AppendAttempt(attempt))
		assert.NotZero(t, attempt.ID)
	}

	attempts, err := db.GetAttemptsByRun(runID)
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, "alpha", attempts[0].ProfileID)
	assert.Equal(t, "beta", attempts[1].ProfileID)
	assert.Equal(t, "gamma", attempts[2].ProfileID)
	assert.False(t, attempts[1].Success)
}

func TestGetAttemptsByRunScopedToRun(t *testing.T) {
	db := testDatabase(t)

	for _, runID := range []string{"run-a", "run-b"} {
		require.NoError(t, db.AppendAttempt(&Attempt{
			RunID:         runID,
			ProfileID:     "p",
			URL:           "https://example.com/p",
			MessageButton: "No",
			MessageSent:   "No",
			Timestamp:     time.Now(),
		}))
	}

	attempts, err := db.GetAttemptsByRun("run-a")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, "run-a", attempts[0].RunID)
}

func TestAttemptErrorRoundTrip(t *testing.T) {
	db := testDatabase(t)

	require.NoError(t, db.AppendAttempt(&Attempt{
		RunID:         "run-1",
		ProfileID:     "p",
		URL:           "https://example.com/p",
		MessageButton: "No",
		MessageSent:   "No",
		Error:         "Profile unavailable or no messaging option found",
		Timestamp:     time.Now(),
	}))

	attempts, err := db.GetAttemptsByRun("run-1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, "Profile unavailable or no messaging option found", attempts[0].Error)
}

func TestCountSentOn(t *testing.T) {
	db := testDatabase(t)
	now := time.Now()

	for i := 0; i < 3; i++ {
		sent := "Yes"
		if i == 2 {
			sent = "No"
		}
		require.NoError(t, db.AppendAttempt(&Attempt{
			RunID:         "run-1",
			ProfileID:     "p",
			URL:           "https://example.com/p",
			MessageButton: "Yes",
			MessageSent:   sent,
			Timestamp:     now,
		}))
	}

	count, err := db.CountSentOn(now)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestGetDailyStats(t *testing.T) {
	db := testDatabase(t)
	now := time.Now()

	require.NoError(t, db.AppendAttempt(&Attempt{
		RunID: "r", ProfileID: "a", URL: "https://example.com/a",
		Success: true, MessageButton: "Yes", MessageSent: "Yes", Timestamp: now,
	}))
	require.NoError(t, db.AppendAttempt(&Attempt{
		RunID: "r", ProfileID: "b", URL: "https://example.com/b",
		Success: false, MessageButton: "No", MessageSent: "No", Timestamp: now,
	}))

	stats, err := db.GetDailyStats(now)
	require.NoError(t, err)
	assert.Equal(t, 2, stats["attempts_total"])
	assert.Equal(t, 1, stats["attempts_succeeded"])
	assert.Equal(t, 1, stats["messages_sent"])
}
