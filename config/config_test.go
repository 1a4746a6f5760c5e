package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Account: AccountConfig{Identity: "a@x.com", Secret: "s"},
		Run: RunConfig{
			Profiles: []Profile{{ID: "p1", URL: "https://example.com/profile/p1"}},
			Message:  "hi",
		},
		Nav:    NavConfig{MaxAttempts: 3},
		Limits: LimitsConfig{DailyMessages: 100},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidateRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "missing identity",
			mutate: func(c *Config) { c.Account.Identity = "" },
			field:  "account.identity",
		},
		{
			name:   "missing secret",
			mutate: func(c *Config) { c.Account.Secret = "" },
			field:  "account.secret",
		},
		{
			name:   "no profiles",
			mutate: func(c *Config) { c.Run.Profiles = nil },
			field:  "run.profiles",
		},
		{
			name:   "profile without id",
			mutate: func(c *Config) { c.Run.Profiles[0].ID = "" },
			field:  "run.profiles[0].id",
		},
		{
			name:   "profile without url",
			mutate: func(c *Config) { c.Run.Profiles[0].URL = "" },
			field:  "run.profiles[0].url",
		},
		{
			name:   "relative profile url",
			mutate: func(c *Config) { c.Run.Profiles[0].URL = "example.com/p1" },
			field:  "run.profiles[0].url",
		},
		{
			name:   "missing message",
			mutate: func(c *Config) { c.Run.Message = "" },
			field:  "run.message",
		},
		{
			name:   "zero nav attempts",
			mutate: func(c *Config) { c.Nav.MaxAttempts = 0 },
			field:  "navigation.max_attempts",
		},
		{
			name:   "zero daily limit",
			mutate: func(c *Config) { c.Limits.DailyMessages = 0 },
			field:  "limits.daily_messages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Field: "run.message", Reason: "is required"}
	assert.Equal(t, "invalid configuration: run.message: is required", err.Error())
}
