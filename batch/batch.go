// Package batch sequences a run's profiles through navigation, login,
// and message delivery, emitting exactly one outcome record per profile.
package batch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"profile-messenger/config"
	"profile-messenger/message"
	"profile-messenger/storage"
)

// Presence values recorded on outcome records.
const (
	PresenceYes = "Yes"
	PresenceNo  = "No"
)

// Navigator loads a profile page with bounded retries.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// Authenticator detects and satisfies a login requirement.
type Authenticator interface {
	EnsureAuthenticated(ctx context.Context) error
}

// Deliverer runs the message delivery pipeline on the current page.
type Deliverer interface {
	Deliver(ctx context.Context, text string) (*message.Report, error)
}

// SessionRestorer opportunistically installs a persisted session before
// navigation. Failures are non-fatal; processing proceeds without session
// state.
type SessionRestorer interface {
	Restore() error
}

// Pacer spaces profiles apart and enforces the daily send cap.
type Pacer interface {
	Wait(ctx context.Context) error
	PermitSend() error
	RecordSend()
}

// Sink receives one outcome record per profile, in input order.
type Sink interface {
	AppendAttempt(attempt *storage.Attempt) error
}

// Summary is the run's final status: a plain count of successes and
// failures, never a partial state.
type Summary struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
}

// Orchestrator processes profiles strictly sequentially. Concurrent
// navigation from one identity is both a detection signal and a race on
// shared cookie state, so there is no parallel path.
type Orchestrator struct {
	nav      Navigator
	auth     Authenticator
	delivery Deliverer
	sessions SessionRestorer
	pacer    Pacer
	sink     Sink
	logger   *logrus.Logger
}

// NewOrchestrator creates a batch orchestrator
func NewOrchestrator(nav Navigator, auth Authenticator, delivery Deliverer, sessions SessionRestorer, pacer Pacer, sink Sink, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		nav:      nav,
		auth:     auth,
		delivery: delivery,
		sessions: sessions,
		pacer:    pacer,
		sink:     sink,
		logger:   logger,
	}
}

// Run processes every profile in input order. Any terminal-for-profile
// error is captured into that profile's outcome; it never aborts the
// batch. Exactly one outcome is emitted per profile.
func (o *Orchestrator) Run(ctx context.Context, profiles []config.Profile, text string) (*Summary, error) {
	summary := &Summary{
		RunID: uuid.NewString(),
		Total: len(profiles),
	}

	o.logger.WithFields(logrus.Fields{
		"run_id":   summary.RunID,
		"profiles": len(profiles),
	}).Info("Starting batch run")

	for _, profile := range profiles {
		if err := o.pacer.Wait(ctx); err != nil {
			return summary, err
		}

		outcome := o.processProfile(ctx, summary.RunID, profile, text)

		if outcome.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}

		if err := o.sink.AppendAttempt(outcome); err != nil {
			o.logger.WithError(err).WithField("profile_id", profile.ID).Error("Failed to record outcome")
		}
	}

	o.logger.WithFields(logrus.Fields{
		"run_id":    summary.RunID,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	}).Info("Batch run completed")

	return summary, nil
}

// processProfile runs one profile through the full workflow and converts
// any raised error into a failed outcome.
func (o *Orchestrator) processProfile(ctx context.Context, runID string, profile config.Profile, text string) *storage.Attempt {
	start := time.Now()
	outcome := &storage.Attempt{
		RunID:         runID,
		ProfileID:     profile.ID,
		URL:           profile.URL,
		MessageButton: PresenceNo,
		MessageSent:   PresenceNo,
		Timestamp:     start,
	}

	log := o.logger.WithField("profile_id", profile.ID)
	log.Info("Processing profile")

	report, err := o.attempt(ctx, profile, text)
	outcome.DurationMs = time.Since(start).Milliseconds()

	if report != nil {
		if report.ButtonPresent {
			outcome.MessageButton = PresenceYes
		}
		if report.Sent {
			outcome.MessageSent = PresenceYes
		}
	}

	if err != nil {
		outcome.Error = err.Error()
		log.WithError(err).Warn("Profile attempt failed")
		return outcome
	}

	outcome.Success = outcome.MessageSent == PresenceYes
	log.WithField("duration_ms", outcome.DurationMs).Info("Profile attempt succeeded")
	return outcome
}

func (o *Orchestrator) attempt(ctx context.Context, profile config.Profile, text string) (*message.Report, error) {
	if err := o.pacer.PermitSend(); err != nil {
		return nil, err
	}

	if err := o.sessions.Restore(); err != nil {
		// Non-fatal: proceed without session state.
		o.logger.WithError(err).Warn("Failed to restore session")
	}

	if err := o.nav.Navigate(ctx, profile.URL); err != nil {
		return nil, err
	}

	if err := o.auth.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}

	report, err := o.delivery.Deliver(ctx, text)
	if err != nil {
		return report, err
	}

	if report.Sent {
		o.pacer.RecordSend()
	}

	return report, nil
}
