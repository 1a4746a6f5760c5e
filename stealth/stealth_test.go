package stealth

import (
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profile-messenger/config"
)

func testSimulator() *Simulator {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewSimulator(config.TimingConfig{
		TypeDelayMin: 80 * time.Millisecond,
		TypeDelayMax: 250 * time.Millisecond,
	}, logger)
}

func TestPathPointsEndAtExactTarget(t *testing.T) {
	sim := testSimulator()
	start := Point{X: 0, Y: 0}
	end := Point{X: 400, Y: 300}

	for i := 0; i < 50; i++ {
		points := sim.pathPoints(start, end, 12)
		require.Len(t, points, 12)

		final := points[len(points)-1]
		assert.Equal(t, end.X, final.X)
		assert.Equal(t, end.Y, final.Y)
	}
}

func TestPathPointsJitterBounded(t *testing.T) {
	sim := testSimulator()
	start := Point{X: 100, Y: 100}
	end := Point{X: 500, Y: 400}
	steps := 20

	points := sim.pathPoints(start, end, steps)
	for i, p := range points {
		t1 := float64(i+1) / float64(steps)
		idealX := start.X + (end.X-start.X)*t1
		idealY := start.Y + (end.Y-start.Y)*t1

		assert.LessOrEqual(t, math.Abs(p.X-idealX), 3.0)
		assert.LessOrEqual(t, math.Abs(p.Y-idealY), 3.0)
	}
}

func TestPathPointsMonotonicProgress(t *testing.T) {
	sim := testSimulator()
	points := sim.pathPoints(Point{X: 0, Y: 0}, Point{X: 1000, Y: 0}, 10)

	// Jitter is small relative to the 100px stride, so X stays ordered.
	for i := 1; i < len(points); i++ {
		assert.Greater(t, points[i].X, points[i-1].X)
	}
}

func TestSampleWithinRange(t *testing.T) {
	sim := testSimulator()

	for i := 0; i < 200; i++ {
		d := sim.sample(80*time.Millisecond, 250*time.Millisecond)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.Less(t, d, 250*time.Millisecond)
	}
}

func TestSampleDegenerateRange(t *testing.T) {
	sim := testSimulator()
	assert.Equal(t, time.Second, sim.sample(time.Second, time.Second))
	assert.Equal(t, time.Second, sim.sample(time.Second, time.Millisecond))
}
