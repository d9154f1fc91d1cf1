package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := Config{
		Sources:    []string{"hca"},
		Strategies: []string{"direct"},
		YearStart:  2020,
		YearEnd:    2024,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no sources", func(c *Config) { c.Sources = nil }},
		{"no strategies", func(c *Config) { c.Strategies = nil }},
		{"zero year start", func(c *Config) { c.YearStart = 0 }},
		{"inverted range", func(c *Config) { c.YearEnd = 2019 }},
		{"negative delay", func(c *Config) { c.RequestDelay = -time.Second }},
		{"negative threshold", func(c *Config) { c.FailureThreshold = -1 }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestConfigNormalizeFillsDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Sources:    []string{"hca"},
		Strategies: []string{"direct"},
		YearStart:  2024,
		YearEnd:    2024,
	}.normalize()

	require.Equal(t, time.Second, cfg.RequestDelay)
	require.Equal(t, 3, cfg.FailureThreshold)
	require.Equal(t, 10, cfg.CheckpointEvery)
	require.Equal(t, 30*time.Second, cfg.RetryDelayCap)
}

func TestConfigRetryDelayTriplesAndCaps(t *testing.T) {
	t.Parallel()

	cfg := Config{RequestDelay: 2 * time.Second, RetryDelayCap: 30 * time.Second}
	require.Equal(t, 6*time.Second, cfg.retryDelay())

	cfg.RequestDelay = 20 * time.Second
	require.Equal(t, 30*time.Second, cfg.retryDelay())
}

func TestConfigYears(t *testing.T) {
	t.Parallel()

	cfg := Config{YearStart: 2022, YearEnd: 2024}
	require.Equal(t, []int{2022, 2023, 2024}, cfg.years())

	single := Config{YearStart: 2024, YearEnd: 2024}
	require.Equal(t, []int{2024}, single.years())
}
