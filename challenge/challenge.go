// Package challenge resolves anti-bot verification steps interposed by the
// target before an action may proceed. Strategies are ordered and
// short-circuiting; the chain yields a single boolean outcome.
package challenge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-rod/rod"
	"github.com/sirupsen/logrus"

	"profile-messenger/config"
	"profile-messenger/stealth"
)

// UnresolvedError is terminal for the profile being processed.
type UnresolvedError struct{}

func (e *UnresolvedError) Error() string { return "challenge unresolved" }

// Strategy is one attempt at resolving a challenge.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context) (bool, error)
}

// Chain tries strategies in order until one resolves the challenge.
type Chain struct {
	strategies []Strategy
	logger     *logrus.Logger
}

// NewChain assembles the strategy order for a run: the automated
// checkbox/audio attempt always runs first; the bounded manual-solve window
// is appended only for interactive runs. Non-interactive runs never wait
// indefinitely.
func NewChain(page *rod.Page, sim *stealth.Simulator, transcriber Transcriber, timing config.TimingConfig, interactive bool, logger *logrus.Logger) *Chain {
	strategies := []Strategy{
		&audioStrategy{page: page, sim: sim, transcriber: transcriber, logger: logger},
	}
	if interactive {
		strategies = append(strategies, &manualStrategy{
			page:   page,
			poll:   timing.ChallengePoll,
			window: timing.ChallengeWindow,
			logger: logger,
		})
	}

	return &Chain{strategies: strategies, logger: logger}
}

// NewChainFromStrategies builds a chain over an explicit strategy order.
func NewChainFromStrategies(logger *logrus.Logger, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, logger: logger}
}

// Resolve runs the strategies in order, short-circuiting on the first
// success. Strategy errors are logged and treated as that strategy failing.
func (c *Chain) Resolve(ctx context.Context) bool {
	for _, strategy := range c.strategies {
		if err := ctx.Err(); err != nil {
			return false
		}

		c.logger.WithField("strategy", strategy.Name()).Info("Attempting challenge resolution")

		resolved, err := strategy.Attempt(ctx)
		if err != nil {
			c.logger.WithError(err).WithField("strategy", strategy.Name()).Warn("Challenge strategy failed")
			continue
		}
		if resolved {
			c.logger.WithField("strategy", strategy.Name()).Info("Challenge resolved")
			return true
		}
	}

	return false
}

// Frame selectors for the embedded challenge widget.
var (
	anchorFrameSelectors = []string{
		"iframe[src*='recaptcha/api2/anchor']",
		"iframe[src*='recaptcha']",
		"iframe[title*='reCAPTCHA']",
	}
	secondaryFrameSelector = "iframe[src*='recaptcha/api2/bframe']"
)

// Present reports whether the page currently shows challenge markers:
// an embedded challenge frame, or verification-related markup.
func Present(page *rod.Page) bool {
	for _, sel := range anchorFrameSelectors {
		if has, el, err := page.Has(sel); err == nil && has {
			if visible, err := el.Visible(); err == nil && visible {
				return true
			}
		}
	}

	if has, _, err := page.Has("[id*='captcha'], [class*='captcha']"); err == nil && has {
		return true
	}

	return false
}

// audioStrategy activates the challenge's acknowledgment control and, when
// a secondary puzzle still appears, attempts the audio channel: fetch the
// audio resource, transcribe it, inject the answer, verify.
type audioStrategy struct {
	page        *rod.Page
	sim         *stealth.Simulator
	transcriber Transcriber
	logger      *logrus.Logger
}

func (s *audioStrategy) Name() string { return "checkbox-audio" }

func (s *audioStrategy) Attempt(ctx context.Context) (bool, error) {
	frame, err := s.challengeFrame(anchorFrameSelectors)
	if err != nil {
		return false, fmt.Errorf("challenge frame not found: %w", err)
	}

	// Initial acknowledgment control. If ticking it satisfies the target
	// (no secondary puzzle appears), the challenge is resolved without
	// touching the audio channel.
	if checkbox, err := frame.Timeout(5 * time.Second).Element("#recaptcha-anchor, .recaptcha-checkbox"); err == nil {
		if err := s.sim.Click(frame, checkbox); err != nil {
			s.logger.WithError(err).Debug("Acknowledgment click failed")
		}
		time.Sleep(2 * time.Second)

		if !s.secondaryPresent() {
			return true, nil
		}
	}

	puzzle, err := s.challengeFrame([]string{secondaryFrameSelector})
	if err != nil {
		return false, fmt.Errorf("secondary challenge frame not found: %w", err)
	}

	audioButton, err := puzzle.Timeout(5 * time.Second).Element("#recaptcha-audio-button")
	if err != nil {
		return false, fmt.Errorf("audio control not found: %w", err)
	}
	if err := s.sim.Click(puzzle, audioButton); err != nil {
		return false, fmt.Errorf("failed to activate audio channel: %w", err)
	}

	source, err := puzzle.Timeout(5 * time.Second).Element("#audio-source")
	if err != nil {
		return false, fmt.Errorf("audio resource not found: %w", err)
	}
	src, err := source.Attribute("src")
	if err != nil || src == nil || *src == "" {
		return false, fmt.Errorf("audio resource has no address")
	}

	audio, err := fetchAudio(ctx, *src)
	if err != nil {
		return false, fmt.Errorf("failed to fetch audio resource: %w", err)
	}

	answer, err := s.transcriber.Transcribe(ctx, audio)
	if err != nil {
		return false, fmt.Errorf("transcription failed: %w", err)
	}

	response, err := puzzle.Timeout(5 * time.Second).Element("#audio-response")
	if err != nil {
		return false, fmt.Errorf("response field not found: %w", err)
	}
	if err := s.sim.TypeDefault(puzzle, response, answer); err != nil {
		return false, fmt.Errorf("failed to enter answer: %w", err)
	}

	verify, err := puzzle.Timeout(5 * time.Second).Element("#recaptcha-verify-button")
	if err != nil {
		return false, fmt.Errorf("verify control not found: %w", err)
	}
	if err := s.sim.Click(puzzle, verify); err != nil {
		return false, fmt.Errorf("failed to activate verification: %w", err)
	}

	time.Sleep(2 * time.Second)

	// Success is assumed when the challenge did not reappear.
	return !Present(s.page), nil
}

func (s *audioStrategy) challengeFrame(selectors []string) (*rod.Page, error) {
	var lastErr error
	for _, sel := range selectors {
		el, err := s.page.Timeout(5 * time.Second).Element(sel)
		if err != nil {
			lastErr = err
			continue
		}
		frame, err := el.Frame()
		if err != nil {
			lastErr = err
			continue
		}
		return frame, nil
	}
	return nil, lastErr
}

func (s *audioStrategy) secondaryPresent() bool {
	has, el, err := s.page.Has(secondaryFrameSelector)
	if err != nil || !has {
		return false
	}
	visible, err := el.Visible()
	return err == nil && visible
}

// manualStrategy polls for the challenge marker to disappear, signaling an
// out-of-band human resolution. It only runs in interactive mode.
type manualStrategy struct {
	page   *rod.Page
	poll   time.Duration
	window time.Duration
	logger *logrus.Logger
}

func (s *manualStrategy) Name() string { return "manual-solve" }

func (s *manualStrategy) Attempt(ctx context.Context) (bool, error) {
	s.logger.WithField("window", s.window).Info("Waiting for manual challenge resolution")

	deadline := time.Now().Add(s.window)
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
			if !Present(s.page) {
				return true, nil
			}
		}
	}

	return false, nil
}

func fetchAudio(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
