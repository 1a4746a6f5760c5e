package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"

	"profile-messenger/config"
)

// Manager owns the controlled browser. A run uses a single browser context;
// launch failure is fatal to the whole run.
type Manager struct {
	cfg     config.BrowserConfig
	logger  *logrus.Logger
	browser *rod.Browser
}

// NewManager creates a browser manager
func NewManager(cfg config.BrowserConfig, logger *logrus.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger,
	}
}

// Launch starts the browser with automation indicators suppressed and
// connects the control channel.
func (m *Manager) Launch() error {
	m.logger.WithField("headless", m.cfg.Headless).Info("Launching browser")

	l := launcher.New().
		Leakless(false).
		Headless(m.cfg.Headless).
		Set("user-agent", m.cfg.UserAgent).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-background-timer-throttling", "true").
		Set("disable-backgrounding-occluded-windows", "true").
		Set("disable-renderer-backgrounding", "true").
		Set("no-first-run", "true").
		Set("no-default-browser-check", "true").
		Set("disable-default-apps", "true").
		Set("disable-popup-blocking", "true").
		Set("disable-sync", "true").
		Set("disable-extensions", "true").
		Set("disable-dev-shm-usage", "true")

	// Unique profile dir per launch so concurrent runs never share state.
	timestamp := time.Now().Format("20060102-150405")
	userDataDir := filepath.Join(m.cfg.DataDir, fmt.Sprintf("browser-data-%s", timestamp))
	if err := os.MkdirAll(userDataDir, 0755); err != nil {
		return fmt.Errorf("failed to create user data directory: %w", err)
	}
	l = l.Set("user-data-dir", userDataDir)

	url, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	m.browser = rod.New().ControlURL(url)
	if err := m.browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	m.logger.Info("Browser initialized successfully")
	return nil
}

// NewPage opens a page with the configured viewport and the webdriver
// indicator masked.
func (m *Manager) NewPage() (*rod.Page, error) {
	if m.browser == nil {
		return nil, fmt.Errorf("browser not launched")
	}

	page, err := m.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if m.cfg.ViewportWidth > 0 && m.cfg.ViewportHeight > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:  m.cfg.ViewportWidth,
			Height: m.cfg.ViewportHeight,
		}); err != nil {
			m.logger.WithError(err).Warn("Failed to set viewport")
		}
	}

	script := `
		Object.defineProperty(navigator, 'webdriver', {
			get: () => undefined,
		});
		window.chrome = { runtime: {} };
	`
	if _, err := page.Eval(script); err != nil {
		m.logger.WithError(err).Warn("Failed to mask automation indicators")
	}

	return page, nil
}

// Close shuts the browser down
func (m *Manager) Close() error {
	if m.browser != nil {
		return m.browser.Close()
	}
	return nil
}
