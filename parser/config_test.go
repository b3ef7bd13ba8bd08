package parser

import (
	"net/url"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		valid bool
	}{
		{"default", func(*Config) {}, true},
		{"zero token budget", func(c *Config) { c.TokenBudget = 0 }, false},
		{"negative yields", func(c *Config) { c.NumYieldsWithDefaultBudget = -1 }, false},
		{"timed without durations", func(c *Config) {
			c.Budget = TimedBudget
			c.DefaultTimedBudget = 0
		}, false},
		{"timed long below default", func(c *Config) {
			c.Budget = TimedBudget
			c.LongTimedBudget = c.DefaultTimedBudget / 2
		}, false},
		{"timed", func(c *Config) { c.Budget = TimedBudget }, true},
		{"bad preload mode", func(c *Config) { c.PreloadProcessing = 9 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.edit(&cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, ErrInvalidConfig, errors.Cause(err))
		})
	}
}

func TestDefaultBudgetFor(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		in  string
		exp int
	}{
		{"https://example.com/", defaultMaxTokenizationBudget},
		{"file:///tmp/a.html", infiniteTokenizationBudget},
		{"chrome-extension://abc/page.html", infiniteTokenizationBudget},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			u, err := url.Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.exp, cfg.defaultBudgetFor(u))
		})
	}
	assert.Equal(t, defaultMaxTokenizationBudget, cfg.defaultBudgetFor(nil))
}

func TestParseBudgetKind(t *testing.T) {
	k, err := ParseBudgetKind("timed")
	require.NoError(t, err)
	assert.Equal(t, TimedBudget, k)

	_, err = ParseBudgetKind("bytes")
	assert.Equal(t, ErrInvalidConfig, errors.Cause(err))
}
