package pipeline

import (
	"fmt"
	"time"
)

// Defaults applied by Config.normalize.
const (
	defaultRequestDelay     = time.Second
	defaultFailureThreshold = 3
	defaultCheckpointEvery  = 10
	defaultRetryDelayCap    = 30 * time.Second
	retryDelayFactor        = 3
)

// Config is the immutable-once-built description of one run. Build it from
// caller input, validate it, and hand it to Start; the orchestrator never
// mutates it mid-run.
type Config struct {
	// Sources lists the logical sources (court indexes) to crawl.
	Sources []string
	// YearStart and YearEnd bound the inclusive year range.
	YearStart int
	YearEnd   int
	// RequestDelay is the minimum pause enforced between remote requests.
	RequestDelay time.Duration
	// Strategies is the ordered rotation of listing strategies per source.
	Strategies []string
	// AutoRotate enables rotation once FailureThreshold consecutive
	// failures accumulate for a source.
	AutoRotate       bool
	FailureThreshold int
	// Phase toggles.
	FixYears    bool
	Deduplicate bool
	Download    bool
	// DownloadBatchSize caps targets per run; zero means no cap.
	DownloadBatchSize int
	// DownloadSourceFilter restricts download targets to one source code.
	DownloadSourceFilter string
	// CheckpointEvery saves the dataset after this many successful downloads.
	CheckpointEvery int
	// RetryDelayCap bounds the slowed-down delay used by the retry pass.
	RetryDelayCap time.Duration
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	if len(c.Strategies) == 0 {
		return fmt.Errorf("at least one strategy is required")
	}
	if c.YearStart <= 0 || c.YearEnd <= 0 {
		return fmt.Errorf("year range must be positive")
	}
	if c.YearEnd < c.YearStart {
		return fmt.Errorf("year_end %d precedes year_start %d", c.YearEnd, c.YearStart)
	}
	if c.RequestDelay < 0 {
		return fmt.Errorf("request delay must be >= 0")
	}
	if c.FailureThreshold < 0 {
		return fmt.Errorf("failure threshold must be >= 0")
	}
	return nil
}

// normalize fills zero-valued knobs with defaults. Called once at Start;
// the caller's copy is never touched.
func (c Config) normalize() Config {
	if c.RequestDelay == 0 {
		c.RequestDelay = defaultRequestDelay
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = defaultCheckpointEvery
	}
	if c.RetryDelayCap <= 0 {
		c.RetryDelayCap = defaultRetryDelayCap
	}
	c.Sources = append([]string(nil), c.Sources...)
	c.Strategies = append([]string(nil), c.Strategies...)
	return c
}

// retryDelay is the slowed inter-request delay used by the download retry
// pass: the configured delay tripled, capped at RetryDelayCap.
func (c Config) retryDelay() time.Duration {
	d := c.RequestDelay * retryDelayFactor
	if d > c.RetryDelayCap {
		d = c.RetryDelayCap
	}
	return d
}

// years enumerates the configured inclusive range in ascending order.
func (c Config) years() []int {
	out := make([]int, 0, c.YearEnd-c.YearStart+1)
	for y := c.YearStart; y <= c.YearEnd; y++ {
		out = append(out, y)
	}
	return out
}
