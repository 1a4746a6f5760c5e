package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"

	"profile-messenger/challenge"
	"profile-messenger/race"
	"profile-messenger/session"
	"profile-messenger/stealth"
)

// State of the login machine for one profile's processing. It is never
// persisted beyond the session artifact side effect.
type State string

const (
	StateUnknown          State = "unknown"
	StateLoginNotRequired State = "login_not_required"
	StateLoginRequired    State = "login_required"
	StateAuthenticating   State = "authenticating"
	StateAuthenticated    State = "authenticated"
	StateAuthFailed       State = "auth_failed"
)

// LoginFailedError is terminal for the profile. There is no retry edge
// out of a failed authentication.
type LoginFailedError struct {
	Reason string
}

func (e *LoginFailedError) Error() string {
	return fmt.Sprintf("login failed: %s", e.Reason)
}

// ChallengeResolver runs the challenge resolution chain.
type ChallengeResolver interface {
	Resolve(ctx context.Context) bool
}

// Prober answers structural questions about the current page.
type Prober interface {
	Has(selector string) bool
	HasText(fragment string) bool
}

// Ordered fallback selector chains; first match wins.
var (
	identitySelectors = []string{
		"input[name='email']",
		"input[type='email']",
		"input#email",
		"input[name='session_key']",
		"input[name='username']",
		"input[autocomplete='username']",
	}
	secretSelectors = []string{
		"input[type='password']",
		"input[name='pass']",
		"input[name='session_password']",
	}
	submitSelectors = []string{
		"button[type='submit']",
		"input[type='submit']",
		"button[name='login']",
		"button[data-testid='royal_login_button']",
	}
	errorSelectors = []string{
		"[role='alert']",
		".alert-error",
		".login__form-error",
		".form-error",
		"[data-test-id='error']",
		"#error_box",
	}
	loginPathMarkers = []string{"/login", "/signin", "login.php", "/checkpoint", "/authwall"}
	loginTextMarkers = []string{"log in", "sign in"}
)

// Manager is the login state machine for one browser context.
type Manager struct {
	page     *rod.Page
	sim      *stealth.Simulator
	sessions *session.Adapter
	chain    ChallengeResolver
	logger   *logrus.Logger

	identity string
	secret   string
	grace    time.Duration

	state State

	// Overridable in tests.
	prober           Prober
	url              func() string
	submit           func(ctx context.Context) error
	settle           func(ctx context.Context)
	challengePresent func() bool
	errorText        func() string
	persist          func() error
}

// NewManager creates a login manager
func NewManager(page *rod.Page, sim *stealth.Simulator, sessions *session.Adapter, chain ChallengeResolver, identity, secret string, grace time.Duration, logger *logrus.Logger) *Manager {
	m := &Manager{
		page:     page,
		sim:      sim,
		sessions: sessions,
		chain:    chain,
		logger:   logger,
		identity: identity,
		secret:   secret,
		grace:    grace,
		state:    StateUnknown,
	}
	m.prober = &pageProber{page: page}
	m.url = m.currentURL
	m.submit = m.submitCredentials
	m.settle = m.awaitSettled
	m.challengePresent = func() bool { return challenge.Present(page) }
	m.errorText = m.visibleError
	m.persist = m.persistSession
	return m
}

// State returns the machine's current state.
func (m *Manager) State() State {
	return m.state
}

// LoginRequired classifies the current page. URL shape alone is enough;
// the structural path requires an identity field AND a secret field AND
// (a submit affordance OR login-indicating text) jointly, to avoid false
// positives from unrelated forms.
func (m *Manager) LoginRequired() bool {
	return Classify(m.url(), m.prober)
}

// Classify implements login detection over a URL and a page prober.
func Classify(url string, p Prober) bool {
	if ClassifyURL(url) {
		return true
	}
	return DetectLoginForm(p)
}

// ClassifyURL reports whether the URL matches a known login path shape.
func ClassifyURL(url string) bool {
	lowered := strings.ToLower(url)
	for _, marker := range loginPathMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// DetectLoginForm is the structural detection path.
func DetectLoginForm(p Prober) bool {
	if !hasAny(p, identitySelectors) {
		return false
	}
	if !hasAny(p, secretSelectors) {
		return false
	}
	if hasAny(p, submitSelectors) {
		return true
	}
	for _, marker := range loginTextMarkers {
		if p.HasText(marker) {
			return true
		}
	}
	return false
}

func hasAny(p Prober, selectors []string) bool {
	for _, sel := range selectors {
		if p.Has(sel) {
			return true
		}
	}
	return false
}

// EnsureAuthenticated runs Detection and, when login is required, drives
// the full authentication sequence: credential submission, challenge
// resolution, and outcome verification. On success the session artifact is
// persisted. A failure is terminal for the current profile.
func (m *Manager) EnsureAuthenticated(ctx context.Context) error {
	m.state = StateUnknown

	if !m.LoginRequired() {
		m.state = StateLoginNotRequired
		m.logger.Debug("Login not required")
		return nil
	}
	m.state = StateLoginRequired
	m.logger.Info("Login required, authenticating")

	m.state = StateAuthenticating
	if err := m.submit(ctx); err != nil {
		m.state = StateAuthFailed
		return err
	}

	// The target sometimes finishes login via in-place DOM mutation rather
	// than a navigation, so the navigation wait races a grace delay.
	m.settle(ctx)

	if m.challengePresent() {
		m.logger.Warn("Anti-bot challenge detected after submit")
		if !m.chain.Resolve(ctx) {
			m.state = StateAuthFailed
			return &challenge.UnresolvedError{}
		}
		m.settle(ctx)
	}

	if m.LoginRequired() {
		m.state = StateAuthFailed
		return &LoginFailedError{Reason: m.errorText()}
	}

	m.state = StateAuthenticated
	m.logger.Info("Authentication successful")

	if err := m.persist(); err != nil {
		m.logger.WithError(err).Warn("Failed to persist session")
	}

	return nil
}

// submitCredentials fills and submits the login form with humanized input.
func (m *Manager) submitCredentials(ctx context.Context) error {
	identityField, err := m.firstElement(identitySelectors)
	if err != nil {
		return &LoginFailedError{Reason: "identity field not found"}
	}
	if err := m.sim.Click(m.page, identityField); err != nil {
		return &LoginFailedError{Reason: fmt.Sprintf("identity field not interactable: %v", err)}
	}
	if err := m.sim.TypeDefault(m.page, identityField, m.identity); err != nil {
		return &LoginFailedError{Reason: fmt.Sprintf("failed to enter identity: %v", err)}
	}

	secretField, err := m.firstElement(secretSelectors)
	if err != nil {
		return &LoginFailedError{Reason: "secret field not found"}
	}
	if err := m.sim.Click(m.page, secretField); err != nil {
		return &LoginFailedError{Reason: fmt.Sprintf("secret field not interactable: %v", err)}
	}
	if err := m.sim.TypeDefault(m.page, secretField, m.secret); err != nil {
		return &LoginFailedError{Reason: fmt.Sprintf("failed to enter secret: %v", err)}
	}

	if submit, err := m.firstElement(submitSelectors); err == nil {
		if err := m.sim.Click(m.page, submit); err != nil {
			return &LoginFailedError{Reason: fmt.Sprintf("failed to activate submit: %v", err)}
		}
		return nil
	}

	// No submit affordance on this page variant; a carriage return on the
	// secret field submits the form.
	if err := m.page.Keyboard.Press(input.Enter); err != nil {
		return &LoginFailedError{Reason: fmt.Sprintf("failed to submit form: %v", err)}
	}
	return nil
}

// awaitSettled races navigation completion against the grace delay,
// releasing on whichever resolves first.
func (m *Manager) awaitSettled(ctx context.Context) {
	winner, err := race.First(ctx, m.grace+2*time.Second,
		race.Signal{
			Name: "navigation",
			Wait: func(ctx context.Context) error {
				wait := m.page.Context(ctx).WaitNavigation(proto.PageLifecycleEventNameLoad)
				wait()
				return ctx.Err()
			},
		},
		race.Sleep("grace", m.grace),
	)
	if err != nil {
		m.logger.WithError(err).Debug("Post-submit wait released by ceiling")
		return
	}
	m.logger.WithField("signal", winner).Debug("Post-submit wait released")
}

// visibleError extracts a login error message from alert-role or
// error-marked elements, falling back to a generic reason.
func (m *Manager) visibleError() string {
	for _, sel := range errorSelectors {
		el, err := m.page.Timeout(2 * time.Second).Element(sel)
		if err != nil {
			continue
		}
		text, err := el.Text()
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
	}
	return "unable to verify authentication"
}

func (m *Manager) persistSession() error {
	url := m.currentURL()
	if url == "" {
		return fmt.Errorf("no page URL to capture cookies for")
	}

	cookies, err := m.sessions.Capture(m.page, url)
	if err != nil {
		return err
	}
	return m.sessions.Save(m.identity, cookies)
}

func (m *Manager) firstElement(selectors []string) (*rod.Element, error) {
	var lastErr error
	for _, sel := range selectors {
		el, err := m.page.Timeout(3 * time.Second).Element(sel)
		if err != nil {
			lastErr = err
			continue
		}
		if visible, err := el.Visible(); err != nil || !visible {
			continue
		}
		return el, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no visible element for any selector")
	}
	return nil, lastErr
}

func (m *Manager) currentURL() string {
	info, err := m.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// pageProber answers structural probes against the live page.
type pageProber struct {
	page *rod.Page
}

func (p *pageProber) Has(selector string) bool {
	has, _, err := p.page.Has(selector)
	return err == nil && has
}

func (p *pageProber) HasText(fragment string) bool {
	result, err := p.page.Eval(`(fragment) => document.body.innerText.toLowerCase().includes(fragment)`, strings.ToLower(fragment))
	if err != nil {
		return false
	}
	return result.Value.Bool()
}
