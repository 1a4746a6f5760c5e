package message

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"

	"profile-messenger/race"
	"profile-messenger/stealth"
)

// UnavailableError means the profile exposes no messaging capability.
// This is a content-shape condition, never retried.
type UnavailableError struct{}

func (e *UnavailableError) Error() string {
	return "Profile unavailable or no messaging option found"
}

// ComposerNotFoundError means the chat surface opened but no known
// composer variant matched. Terminal for the profile.
type ComposerNotFoundError struct{}

func (e *ComposerNotFoundError) Error() string {
	return "message composer not found"
}

// Confirmation distinguishes a positively confirmed send from the
// optimistic key-press fallback, which assumes the message left without
// DOM evidence. The default outcome policy treats both as sent; the
// distinction stays visible here.
type Confirmation string

const (
	ConfirmationConfirmed Confirmation = "confirmed"
	ConfirmationAssumed   Confirmation = "assumed"
)

// Report is the delivery pipeline's result for one profile.
type Report struct {
	ButtonPresent bool
	Sent          bool
	Confirmation  Confirmation
}

// Finder answers selector presence probes. The live page satisfies it.
type Finder interface {
	Has(selector string) bool
}

// Ordered fallback selector chains; first match wins. The lists tolerate
// markup drift across page variants.
var (
	entrySelectors = []string{
		"a[href*='/messages/']",
		"button[aria-label*='Message']",
		"[data-testid*='message_button']",
		"a[aria-label*='Message']",
	}
	richComposerSelectors = []string{
		"[contenteditable='true'][role='textbox']",
		"[contenteditable='true'][data-testid*='composer']",
		".msg-form__contenteditable",
	}
	plainComposerSelectors = []string{
		"textarea[name='message']",
		"textarea[aria-label*='essage']",
		"textarea[placeholder*='essage']",
		"[data-test-id='message-input']",
	}
	sendSelectors = []string{
		"button[aria-label*='Send']",
		"[data-testid*='send']",
		".msg-form__send-button",
		"button[type='submit']",
	}
	unavailableMarkers = []string{
		"this content isn't available",
		"this page isn't available",
		"page not found",
		"profile unavailable",
	}
)

// Pipeline performs composer discovery and message delivery on one page.
type Pipeline struct {
	page   *rod.Page
	sim    *stealth.Simulator
	logger *logrus.Logger

	composerWait    time.Duration
	postSendSettle  time.Duration
	skipUnavailable bool
}

// NewPipeline creates a message delivery pipeline
func NewPipeline(page *rod.Page, sim *stealth.Simulator, composerWait, postSendSettle time.Duration, skipUnavailable bool, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		page:            page,
		sim:             sim,
		logger:          logger,
		composerWait:    composerWait,
		postSendSettle:  postSendSettle,
		skipUnavailable: skipUnavailable,
	}
}

// Deliver locates the chat-entry affordance, opens the composer, injects
// the message text, and activates a send affordance, falling back to a
// carriage return. The report always states whether a message button was
// present and whether the send was confirmed or assumed.
func (p *Pipeline) Deliver(ctx context.Context, text string) (*Report, error) {
	report := &Report{Confirmation: Confirmation("")}

	if p.skipUnavailable && p.pageUnavailable() {
		p.logger.Info("Page reports profile unavailable, skipping affordance search")
		return report, &UnavailableError{}
	}

	entrySel, found := FirstMatch(&pageFinder{page: p.page}, entrySelectors)
	if !found {
		return report, &UnavailableError{}
	}
	report.ButtonPresent = true

	entry, err := p.page.Timeout(5 * time.Second).Element(entrySel)
	if err != nil {
		return report, &UnavailableError{}
	}
	if err := p.sim.Click(p.page, entry); err != nil {
		return report, fmt.Errorf("failed to activate message button: %w", err)
	}

	// The target renders the composer via several mechanisms; wait for the
	// first of them, or give up at the ceiling and probe anyway.
	p.awaitComposerSurface(ctx)

	composer, rich, err := p.findComposer()
	if err != nil {
		return report, err
	}

	if err := p.inject(composer, rich, text); err != nil {
		return report, fmt.Errorf("failed to enter message text: %w", err)
	}

	confirmation, err := p.send(composer)
	if err != nil {
		return report, err
	}
	report.Sent = true
	report.Confirmation = confirmation

	// Let any asynchronous send confirmation complete before the next
	// profile is processed.
	time.Sleep(p.postSendSettle)

	return report, nil
}

// awaitComposerSurface races the composer variants against navigation
// completion, bounded by the composer ceiling.
func (p *Pipeline) awaitComposerSurface(ctx context.Context) {
	winner, err := race.First(ctx, p.composerWait,
		race.Signal{Name: "rich-composer", Wait: p.selectorAppears(richComposerSelectors)},
		race.Signal{Name: "plain-composer", Wait: p.selectorAppears(plainComposerSelectors)},
		race.Signal{
			Name: "navigation",
			Wait: func(ctx context.Context) error {
				wait := p.page.Context(ctx).WaitNavigation(proto.PageLifecycleEventNameLoad)
				wait()
				return ctx.Err()
			},
		},
	)
	if err != nil {
		p.logger.WithError(err).Debug("Composer wait released by ceiling")
		return
	}
	p.logger.WithField("signal", winner).Debug("Composer wait released")
}

// selectorAppears polls for any of the selectors to appear.
func (p *Pipeline) selectorAppears(selectors []string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			if _, found := FirstMatch(&pageFinder{page: p.page}, selectors); found {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}

// findComposer resolves the composer by a prioritized selector list,
// rich-text variants first.
func (p *Pipeline) findComposer() (*rod.Element, bool, error) {
	finder := &pageFinder{page: p.page}

	if sel, found := FirstMatch(finder, richComposerSelectors); found {
		el, err := p.page.Timeout(3 * time.Second).Element(sel)
		if err == nil {
			return el, true, nil
		}
	}
	if sel, found := FirstMatch(finder, plainComposerSelectors); found {
		el, err := p.page.Timeout(3 * time.Second).Element(sel)
		if err == nil {
			return el, false, nil
		}
	}

	return nil, false, &ComposerNotFoundError{}
}

// inject clears existing content and enters the message text. Rich-text
// regions take native assignment to avoid per-character cadence cost on
// long text; plain composers get humanized typing.
func (p *Pipeline) inject(composer *rod.Element, rich bool, text string) error {
	if rich {
		if err := p.sim.Click(p.page, composer); err != nil {
			return err
		}
		_, err := composer.Eval(`(text) => {
			this.focus();
			document.execCommand('selectAll', false, null);
			document.execCommand('delete', false, null);
			document.execCommand('insertText', false, text);
		}`, text)
		return err
	}

	return p.sim.TypeDefault(p.page, composer, text)
}

// send activates a send affordance, or falls back to a carriage return.
// The fallback is optimistic: delivery is assumed without positive
// confirmation, a documented limitation of the reference behavior.
func (p *Pipeline) send(composer *rod.Element) (Confirmation, error) {
	if sel, found := FirstMatch(&pageFinder{page: p.page}, sendSelectors); found {
		button, err := p.page.Timeout(3 * time.Second).Element(sel)
		if err == nil {
			if err := p.sim.Click(p.page, button); err != nil {
				return "", fmt.Errorf("failed to activate send: %w", err)
			}
			p.logger.Debug("Send affordance activated")
			return ConfirmationConfirmed, nil
		}
	}

	if err := p.page.Keyboard.Press(input.Enter); err != nil {
		return "", fmt.Errorf("failed to press enter: %w", err)
	}
	p.logger.Warn("No send affordance found, assuming delivery after key press")
	return ConfirmationAssumed, nil
}

func (p *Pipeline) pageUnavailable() bool {
	result, err := p.page.Eval(`() => document.body.innerText.toLowerCase()`)
	if err != nil {
		return false
	}
	body := result.Value.Str()
	for _, marker := range unavailableMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

// FirstMatch walks an ordered selector chain and returns the first
// selector the finder reports present.
func FirstMatch(f Finder, selectors []string) (string, bool) {
	for _, sel := range selectors {
		if f.Has(sel) {
			return sel, true
		}
	}
	return "", false
}

// pageFinder probes the live page.
type pageFinder struct {
	page *rod.Page
}

func (f *pageFinder) Has(selector string) bool {
	has, _, err := f.page.Has(selector)
	return err == nil && has
}
