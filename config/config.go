package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Account   AccountConfig   `yaml:"account" mapstructure:"account"`
	Run       RunConfig       `yaml:"run" mapstructure:"run"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Timing    TimingConfig    `yaml:"timing" mapstructure:"timing"`
	Nav       NavConfig       `yaml:"navigation" mapstructure:"navigation"`
	Limits    LimitsConfig    `yaml:"limits" mapstructure:"limits"`
	Challenge ChallengeConfig `yaml:"challenge" mapstructure:"challenge"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// AccountConfig holds the credentials used for authentication
type AccountConfig struct {
	Identity string `yaml:"identity" mapstructure:"identity"`
	Secret   string `yaml:"secret" mapstructure:"secret"`
}

// Profile is a single messaging target
type Profile struct {
	ID  string `yaml:"id" mapstructure:"id" json:"id"`
	URL string `yaml:"url" mapstructure:"url" json:"url"`
}

// RunConfig describes one batch messaging run
type RunConfig struct {
	Profiles []Profile `yaml:"profiles" mapstructure:"profiles"`
	Message  string    `yaml:"message" mapstructure:"message"`
	// Interactive allows a bounded manual-solve window for challenges.
	Interactive bool `yaml:"interactive" mapstructure:"interactive"`
	// SkipUnavailable short-circuits delivery when the page reports the
	// profile as unavailable, instead of still probing for a message button.
	SkipUnavailable bool `yaml:"skip_unavailable" mapstructure:"skip_unavailable"`
}

// BrowserConfig contains browser automation settings
type BrowserConfig struct {
	Headless       bool   `yaml:"headless" mapstructure:"headless"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	ViewportWidth  int    `yaml:"viewport_width" mapstructure:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height" mapstructure:"viewport_height"`
	DataDir        string `yaml:"data_dir" mapstructure:"data_dir"`
}

// TimingConfig holds all humanization timing ranges
type TimingConfig struct {
	TypeDelayMin    time.Duration `yaml:"type_delay_min" mapstructure:"type_delay_min"`
	TypeDelayMax    time.Duration `yaml:"type_delay_max" mapstructure:"type_delay_max"`
	PointerStepMin  time.Duration `yaml:"pointer_step_min" mapstructure:"pointer_step_min"`
	PointerStepMax  time.Duration `yaml:"pointer_step_max" mapstructure:"pointer_step_max"`
	ScrollStepMin   time.Duration `yaml:"scroll_step_min" mapstructure:"scroll_step_min"`
	ScrollStepMax   time.Duration `yaml:"scroll_step_max" mapstructure:"scroll_step_max"`
	ProfilePauseMin time.Duration `yaml:"profile_pause_min" mapstructure:"profile_pause_min"`
	ProfilePauseMax time.Duration `yaml:"profile_pause_max" mapstructure:"profile_pause_max"`
	PostSendSettle  time.Duration `yaml:"post_send_settle" mapstructure:"post_send_settle"`
	ComposerWait    time.Duration `yaml:"composer_wait" mapstructure:"composer_wait"`
	LoginGrace      time.Duration `yaml:"login_grace" mapstructure:"login_grace"`
	ChallengePoll   time.Duration `yaml:"challenge_poll" mapstructure:"challenge_poll"`
	ChallengeWindow time.Duration `yaml:"challenge_window" mapstructure:"challenge_window"`
}

// NavConfig controls the bounded-retry page loader
type NavConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	BackoffMin  time.Duration `yaml:"backoff_min" mapstructure:"backoff_min"`
	BackoffMax  time.Duration `yaml:"backoff_max" mapstructure:"backoff_max"`
}

// LimitsConfig contains rate limiting settings
type LimitsConfig struct {
	DailyMessages int `yaml:"daily_messages" mapstructure:"daily_messages"`
}

// ChallengeConfig configures the anti-bot challenge resolution chain
type ChallengeConfig struct {
	// TranscriberKey enables the speech-to-text backend for the audio
	// challenge. Empty means the automated audio strategy declines.
	TranscriberKey string `yaml:"transcriber_key" mapstructure:"transcriber_key"`
}

// StorageConfig contains database settings
type StorageConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	Output string `yaml:"output" mapstructure:"output"`
}

// ValidationError reports bad or missing input. It is fatal and raised
// before any browser work starts.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	setDefaults()

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("MESSENGER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			if err := createDefaultConfig(configPath); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validation runs after the caller applies flag overrides.
	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("browser.headless", true)
	viper.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	viper.SetDefault("browser.viewport_width", 1366)
	viper.SetDefault("browser.viewport_height", 768)
	viper.SetDefault("browser.data_dir", "./sessions")

	viper.SetDefault("timing.type_delay_min", "80ms")
	viper.SetDefault("timing.type_delay_max", "250ms")
	viper.SetDefault("timing.pointer_step_min", "5ms")
	viper.SetDefault("timing.pointer_step_max", "30ms")
	viper.SetDefault("timing.scroll_step_min", "100ms")
	viper.SetDefault("timing.scroll_step_max", "350ms")
	viper.SetDefault("timing.profile_pause_min", "3s")
	viper.SetDefault("timing.profile_pause_max", "10s")
	viper.SetDefault("timing.post_send_settle", "3s")
	viper.SetDefault("timing.composer_wait", "10s")
	viper.SetDefault("timing.login_grace", "8s")
	viper.SetDefault("timing.challenge_poll", "2s")
	viper.SetDefault("timing.challenge_window", "3m")

	viper.SetDefault("navigation.max_attempts", 3)
	viper.SetDefault("navigation.timeout", "45s")
	viper.SetDefault("navigation.backoff_min", "2s")
	viper.SetDefault("navigation.backoff_max", "4s")

	viper.SetDefault("run.interactive", false)
	viper.SetDefault("run.skip_unavailable", false)

	viper.SetDefault("limits.daily_messages", 100)

	viper.SetDefault("storage.path", "./data/messenger.db")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// createDefaultConfig creates a default configuration file
func createDefaultConfig(configPath string) error {
	config := Config{
		Browser: BrowserConfig{
			Headless:       true,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			ViewportWidth:  1366,
			ViewportHeight: 768,
			DataDir:        "./sessions",
		},
		Storage: StorageConfig{Path: "./data/messenger.db"},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}

	data, err := yaml.Marshal(&config)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}

// overrideFromEnv overrides credentials with environment variables
func overrideFromEnv() {
	if identity := os.Getenv("MESSENGER_IDENTITY"); identity != "" {
		viper.Set("account.identity", identity)
	}
	if secret := os.Getenv("MESSENGER_SECRET"); secret != "" {
		viper.Set("account.secret", secret)
	}
}

// Validate checks that every required field is present and well-formed.
// It fails fast, before any browser is launched.
func Validate(config *Config) error {
	if config.Account.Identity == "" {
		return &ValidationError{Field: "account.identity", Reason: "is required"}
	}
	if config.Account.Secret == "" {
		return &ValidationError{Field: "account.secret", Reason: "is required"}
	}
	if len(config.Run.Profiles) == 0 {
		return &ValidationError{Field: "run.profiles", Reason: "at least one profile is required"}
	}
	for i, p := range config.Run.Profiles {
		if p.ID == "" {
			return &ValidationError{Field: fmt.Sprintf("run.profiles[%d].id", i), Reason: "is required"}
		}
		if p.URL == "" {
			return &ValidationError{Field: fmt.Sprintf("run.profiles[%d].url", i), Reason: "is required"}
		}
		if !strings.HasPrefix(p.URL, "http://") && !strings.HasPrefix(p.URL, "https://") {
			return &ValidationError{Field: fmt.Sprintf("run.profiles[%d].url", i), Reason: "must be an absolute http(s) URL"}
		}
	}
	if config.Run.Message == "" {
		return &ValidationError{Field: "run.message", Reason: "is required"}
	}
	if config.Nav.MaxAttempts <= 0 {
		return &ValidationError{Field: "navigation.max_attempts", Reason: "must be positive"}
	}
	if config.Limits.DailyMessages <= 0 {
		return &ValidationError{Field: "limits.daily_messages", Reason: "must be positive"}
	}
	return nil
}
