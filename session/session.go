package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// Store is the persistent key-value surface holding cookie artifacts.
// *storage.Database satisfies it.
type Store interface {
	SaveSession(identity string, cookies []byte) error
	LoadSession(identity string) ([]byte, bool, error)
}

// Cookie is one persisted cookie record.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"http_only"`
}

// ApplyError reports a cookie set the browser context rejected. It is
// non-fatal: the caller proceeds without session state.
type ApplyError struct {
	Identity string
	Err      error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("failed to apply session for %s: %v", e.Identity, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Adapter maps an account identity to a serialized cookie set in the
// persistent store and installs it into the browser context.
type Adapter struct {
	store  Store
	logger *logrus.Logger
}

// NewAdapter creates a session store adapter
func NewAdapter(store Store, logger *logrus.Logger) *Adapter {
	return &Adapter{
		store:  store,
		logger: logger,
	}
}

// Save serializes the cookie set under the identity's normalized key,
// replacing any prior value.
func (a *Adapter) Save(identity string, cookies []Cookie) error {
	data, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("failed to serialize cookies: %w", err)
	}

	if err := a.store.SaveSession(NormalizeKey(identity), data); err != nil {
		return err
	}

	a.logger.WithFields(logrus.Fields{
		"identity":      identity,
		"cookies_count": len(cookies),
	}).Info("Session saved")
	return nil
}

// Load returns the most recent stored cookie set, or found=false when no
// artifact exists. A missing artifact never raises; it is expected on a
// first run.
func (a *Adapter) Load(identity string) ([]Cookie, bool, error) {
	data, found, err := a.store.LoadSession(NormalizeKey(identity))
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, false, fmt.Errorf("failed to deserialize cookies: %w", err)
	}

	return cookies, true, nil
}

// Apply installs a cookie set into the controlled browser context.
func (a *Adapter) Apply(page *rod.Page, identity string, cookies []Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  proto.TimeSinceEpoch(c.Expires),
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}

	if err := page.SetCookies(params); err != nil {
		return &ApplyError{Identity: identity, Err: err}
	}

	a.logger.WithFields(logrus.Fields{
		"identity":      identity,
		"cookies_count": len(cookies),
	}).Debug("Session applied")
	return nil
}

// Capture reads the browser context's current cookie set for the given URLs.
func (a *Adapter) Capture(page *rod.Page, urls ...string) ([]Cookie, error) {
	raw, err := page.Cookies(urls)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}

	return cookies, nil
}

// NormalizeKey derives a deterministic store key from an account identity.
// Non-alphanumeric characters collapse to underscores.
func NormalizeKey(identity string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(identity) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
