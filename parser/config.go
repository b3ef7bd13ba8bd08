package parser

import (
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxTokenizationBudget = 250
	infiniteTokenizationBudget   = 10000000
	numYieldsWithDefaultBudget   = 2

	defaultTimedBudget = 10 * time.Millisecond
	longTimedBudget    = 500 * time.Millisecond
)

type SyncPolicy uint

const (
	AllowDeferredParsing SyncPolicy = iota
	ForceSynchronousParsing
)

func (s SyncPolicy) String() string {
	if s == ForceSynchronousParsing {
		return "synchronous"
	}
	return "deferred"
}

type PrefetchPolicy uint

const (
	AllowPrefetching PrefetchPolicy = iota
	DisallowPrefetching
)

type ContentPolicy uint

const (
	AllowScriptingContent ContentPolicy = iota
	DisallowScriptingAndPluginContent
)

// BudgetKind selects the single metric a parser uses to decide when a pump
// has done enough work.
type BudgetKind uint

const (
	TokenBudget BudgetKind = iota
	TimedBudget
)

func (b BudgetKind) String() string {
	if b == TimedBudget {
		return "timed"
	}
	return "tokens"
}

// ParseBudgetKind maps a flag value onto a BudgetKind.
func ParseBudgetKind(s string) (BudgetKind, error) {
	switch s {
	case "tokens", "":
		return TokenBudget, nil
	case "timed":
		return TimedBudget, nil
	}
	return TokenBudget, errors.Wrapf(ErrInvalidConfig, "unknown budget kind %q", s)
}

// PreloadProcessingMode controls when background preload results are drained
// by the pump loop.
type PreloadProcessingMode uint

const (
	PreloadProcessingNone PreloadProcessingMode = iota
	PreloadProcessingImmediate
	PreloadProcessingYield
)

// Config is fixed for the lifetime of a parser.
type Config struct {
	SyncPolicy       SyncPolicy
	PrefetchPolicy   PrefetchPolicy
	ContentPolicy    ContentPolicy
	ScriptingEnabled bool

	Budget                     BudgetKind
	TokenBudget                int
	NumYieldsWithDefaultBudget int
	DefaultTimedBudget         time.Duration
	LongTimedBudget            time.Duration
	Now                        func() time.Time

	PreloadScanningEnabled      bool
	ThreadedPreloadScanner      bool
	BackgroundScanMainFrameOnly bool
	PreloadProcessing           PreloadProcessingMode
	BackgroundTokenizer         bool

	// ProcessDataImmediately pumps appended data synchronously instead of
	// posting a task, for the first chunk and for the chunks after it.
	ProcessFirstChunkImmediately       bool
	ProcessSubsequentChunksImmediately bool

	DebugChecks bool
	Logger      logrus.FieldLogger
}

// DefaultConfig returns a deferred, token-budgeted configuration with the
// foreground preload scanner.
func DefaultConfig() Config {
	return Config{
		SyncPolicy:                 AllowDeferredParsing,
		PrefetchPolicy:             AllowPrefetching,
		ContentPolicy:              AllowScriptingContent,
		ScriptingEnabled:           true,
		Budget:                     TokenBudget,
		TokenBudget:                defaultMaxTokenizationBudget,
		NumYieldsWithDefaultBudget: numYieldsWithDefaultBudget,
		DefaultTimedBudget:         defaultTimedBudget,
		LongTimedBudget:            longTimedBudget,
		Now:                        time.Now,
		PreloadScanningEnabled:     true,
		PreloadProcessing:          PreloadProcessingImmediate,
		Logger:                     logrus.StandardLogger(),
	}
}

// Validate checks that every field is usable.
func (c Config) Validate() error {
	if c.TokenBudget <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "token budget must be positive, got %d", c.TokenBudget)
	}
	if c.NumYieldsWithDefaultBudget < 0 {
		return errors.Wrapf(ErrInvalidConfig, "yields with default budget must not be negative, got %d", c.NumYieldsWithDefaultBudget)
	}
	if c.Budget == TimedBudget {
		if c.DefaultTimedBudget <= 0 || c.LongTimedBudget <= 0 {
			return errors.Wrap(ErrInvalidConfig, "timed budgets must be positive")
		}
		if c.LongTimedBudget < c.DefaultTimedBudget {
			return errors.Wrap(ErrInvalidConfig, "long timed budget shorter than default")
		}
	}
	if c.Budget > TimedBudget {
		return errors.Wrapf(ErrInvalidConfig, "unknown budget kind %d", c.Budget)
	}
	if c.PreloadProcessing > PreloadProcessingYield {
		return errors.Wrapf(ErrInvalidConfig, "unknown preload processing mode %d", c.PreloadProcessing)
	}
	return nil
}

func (c Config) logger() logrus.FieldLogger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}

func (c Config) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// defaultBudgetFor gives trusted local documents an effectively unlimited
// token budget.
func (c Config) defaultBudgetFor(u *url.URL) int {
	if u != nil && (u.Scheme == "file" || u.Scheme == "chrome-extension") {
		return infiniteTokenizationBudget
	}
	return c.TokenBudget
}

// processDataImmediately reports whether data appended now should be pumped
// synchronously rather than in a posted task.
func (c Config) processDataImmediately(didPump bool) bool {
	if !didPump {
		return c.ProcessFirstChunkImmediately
	}
	return c.ProcessSubsequentChunksImmediately
}
