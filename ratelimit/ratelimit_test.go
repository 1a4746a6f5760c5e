package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestFirstWaitReturnsImmediately(t *testing.T) {
	pacer := NewPacer(Config{PauseMin: time.Minute, PauseMax: 2 * time.Minute, DailyMessages: 10}, testLogger())

	start := time.Now()
	require.NoError(t, pacer.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestSubsequentWaitsPauseWithinRange(t *testing.T) {
	pacer := NewPacer(Config{PauseMin: 20 * time.Millisecond, PauseMax: 60 * time.Millisecond, DailyMessages: 10}, testLogger())

	require.NoError(t, pacer.Wait(context.Background()))

	start := time.Now()
	require.NoError(t, pacer.Wait(context.Background()))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
}

func TestWaitCancellable(t *testing.T) {
	pacer := NewPacer(Config{PauseMin: time.Minute, PauseMax: 2 * time.Minute, DailyMessages: 10}, testLogger())

	require.NoError(t, pacer.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pacer.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDailyCapEnforced(t *testing.T) {
	pacer := NewPacer(Config{DailyMessages: 2}, testLogger())

	require.NoError(t, pacer.PermitSend())
	pacer.RecordSend()
	require.NoError(t, pacer.PermitSend())
	pacer.RecordSend()

	err := pacer.PermitSend()
	require.Error(t, err)

	var limitErr *DailyLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 2, limitErr.Limit)
}

func TestSeedCountsAgainstCap(t *testing.T) {
	pacer := NewPacer(Config{DailyMessages: 5}, testLogger())
	pacer.Seed(5)

	err := pacer.PermitSend()
	require.Error(t, err)
}

func TestSampleDegenerateRange(t *testing.T) {
	pacer := NewPacer(Config{PauseMin: 3 * time.Second, PauseMax: 3 * time.Second}, testLogger())
	assert.Equal(t, 3*time.Second, pacer.sample())
}
