package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config defines pacing behavior between profiles and the daily send cap.
type Config struct {
	PauseMin      time.Duration
	PauseMax      time.Duration
	DailyMessages int
}

// DailyLimitError is returned when the daily send cap is reached.
type DailyLimitError struct {
	Limit int
}

func (e *DailyLimitError) Error() string {
	return fmt.Sprintf("daily message limit reached: %d", e.Limit)
}

// Pacer applies randomized inter-profile delays, skipped before the first
// profile, to reduce burst-pattern detectability. It also enforces the
// daily message cap.
type Pacer struct {
	config Config
	logger *logrus.Logger
	rng    *rand.Rand

	mu        sync.Mutex
	paced     bool
	sentToday int
	resetAt   time.Time
}

// NewPacer creates a new pacer
func NewPacer(config Config, logger *logrus.Logger) *Pacer {
	return &Pacer{
		config:  config,
		logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		resetAt: nextMidnight(),
	}
}

// Seed primes today's send count from persisted history.
func (p *Pacer) Seed(sentToday int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sentToday = sentToday
}

// Wait pauses a randomized duration inside the configured range. The first
// call in a run returns immediately.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	if !p.paced {
		p.paced = true
		p.mu.Unlock()
		return nil
	}
	delay := p.sample()
	p.mu.Unlock()

	p.logger.WithField("delay", delay).Info("Pacing before next profile")

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PermitSend reports whether another message may be sent today.
func (p *Pacer) PermitSend() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.maybeReset()
	if p.sentToday >= p.config.DailyMessages {
		return &DailyLimitError{Limit: p.config.DailyMessages}
	}
	return nil
}

// RecordSend counts one sent message against today's cap.
func (p *Pacer) RecordSend() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.maybeReset()
	p.sentToday++
}

func (p *Pacer) maybeReset() {
	if time.Now().After(p.resetAt) {
		p.sentToday = 0
		p.resetAt = nextMidnight()
		p.logger.Debug("Daily send counter reset")
	}
}

func (p *Pacer) sample() time.Duration {
	min, max := p.config.PauseMin, p.config.PauseMax
	if max <= min {
		return min
	}
	return min + time.Duration(p.rng.Int63n(int64(max-min)))
}

func nextMidnight() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
}
