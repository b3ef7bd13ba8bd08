package parser

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fatalChecks() assertion {
	return assertion{fatal: true, log: logrus.New()}
}

func TestDeferredParserStateString(t *testing.T) {
	assert.Equal(t, "not_scheduled", NotScheduled.String())
	assert.Equal(t, "scheduled", Scheduled.String())
	assert.Equal(t, "scheduled_with_end_if_delayed", ScheduledWithEndIfDelayed.String())
}

func TestShouldCompleteScopes(t *testing.T) {
	s := newParserState(AllowDeferredParsing, 3, PreloadProcessingNone, fatalChecks())
	assert.False(t, s.ShouldComplete())

	func() {
		s.EnterShouldComplete()
		defer s.ExitShouldComplete()
		func() {
			s.EnterShouldComplete()
			defer s.ExitShouldComplete()
			assert.True(t, s.ShouldComplete())
		}()
		assert.True(t, s.ShouldComplete())
	}()
	assert.False(t, s.ShouldComplete())

	sync := newParserState(ForceSynchronousParsing, 3, PreloadProcessingNone, fatalChecks())
	assert.True(t, sync.ShouldComplete())
	assert.True(t, sync.IsSynchronous())
}

func TestEndIfDelayedForbiddenScopes(t *testing.T) {
	s := newParserState(AllowDeferredParsing, 3, PreloadProcessingNone, fatalChecks())
	assert.True(t, s.ShouldEndIfDelayed())
	s.EnterEndIfDelayedForbidden()
	s.EnterEndIfDelayedForbidden()
	s.ExitEndIfDelayedForbidden()
	assert.False(t, s.ShouldEndIfDelayed())
	s.ExitEndIfDelayedForbidden()
	assert.True(t, s.ShouldEndIfDelayed())
}

func TestPumpSessionNesting(t *testing.T) {
	s := newParserState(AllowDeferredParsing, 3, PreloadProcessingNone, fatalChecks())
	s.EnterPumpSession()
	assert.True(t, s.InPumpSession())
	assert.False(t, s.InNestedPumpSession())
	s.EnterPumpSession()
	assert.True(t, s.InNestedPumpSession())
	s.ExitPumpSession()
	s.ExitPumpSession()
	assert.False(t, s.InPumpSession())
}

func TestSchedulingWhileCompletingIsRefused(t *testing.T) {
	s := newParserState(AllowDeferredParsing, 3, PreloadProcessingNone, fatalChecks())
	s.EnterShouldComplete()
	assert.Panics(t, func() { s.SetState(Scheduled) })
	assert.Equal(t, NotScheduled, s.State())

	log, hook := test.NewNullLogger()
	lenient := newParserState(AllowDeferredParsing, 3, PreloadProcessingNone, assertion{log: log})
	lenient.EnterShouldComplete()
	lenient.SetState(Scheduled)
	assert.Equal(t, NotScheduled, lenient.State())
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)

	// The end-if-delayed flavour may still be set.
	lenient.SetState(ScheduledWithEndIfDelayed)
	assert.True(t, lenient.IsScheduled())
}

func TestUnbalancedExitIsReported(t *testing.T) {
	s := newParserState(AllowDeferredParsing, 3, PreloadProcessingNone, fatalChecks())
	assert.Panics(t, s.ExitPumpSession)
	assert.Panics(t, s.ExitShouldComplete)
	assert.Panics(t, s.ExitEndIfDelayedForbidden)
}

func TestAttemptToEndOnEOF(t *testing.T) {
	s := newParserState(AllowDeferredParsing, 3, PreloadProcessingNone, fatalChecks())
	s.SetAttemptToEndOnEOF()
	assert.True(t, s.ShouldAttemptToEndOnEOF())
	s.EnterAttemptToEndForbidden()
	assert.False(t, s.ShouldAttemptToEndOnEOF())
	s.SetAttemptToEndOnEOF()
	assert.Panics(t, s.SetAttemptToEndOnEOF)
}

func TestMetaCSPState(t *testing.T) {
	s := newParserState(AllowDeferredParsing, 3, PreloadProcessingNone, fatalChecks())
	assert.Equal(t, MetaCSPNotSeen, s.MetaCSP())
	s.SetSeenCSPMetaTag(true)
	assert.True(t, s.WaitingForCSPMeta())
	s.SetCSPProcessed()
	s.SetSeenCSPMetaTag(false)
	assert.Equal(t, MetaCSPProcessed, s.MetaCSP())

	s.SetSeenCSPMetaTag(true)
	assert.True(t, s.WaitingForCSPMeta(), "a second policy holds preloads again")
	s.SetCSPProcessed()

	assert.False(t, s.HaveExitedHeader())
	s.SetExitedHeader()
	assert.True(t, s.HaveExitedHeader())
	s.SetSeenCSPMetaTag(true)
	s.SetCSPProcessed()
	assert.Equal(t, MetaCSPUnenforceable, s.MetaCSP())
}

func TestTokenCountBudget(t *testing.T) {
	b := &tokenCountBudget{remaining: infiniteTokenizationBudget, defaultBudget: 3}
	b.consume()
	assert.False(t, b.exhausted())
	b.clampToDefault()
	b.consume()
	b.consume()
	assert.False(t, b.exhausted())
	b.consume()
	assert.True(t, b.exhausted())

	small := &tokenCountBudget{remaining: 1, defaultBudget: 3}
	small.clampToDefault()
	assert.Equal(t, 1, small.remaining, "clamping never raises the allowance")
}

func TestTimedBudget(t *testing.T) {
	now := time.Unix(100, 0)
	clock := func() time.Time { return now }
	b := &timedBudget{now: clock, start: now, budget: 500 * time.Millisecond, defaultBudget: 10 * time.Millisecond}

	now = now.Add(20 * time.Millisecond)
	assert.False(t, b.exhausted())
	b.clampToDefault()
	assert.Equal(t, 30*time.Millisecond, b.budget)
	now = now.Add(9 * time.Millisecond)
	assert.False(t, b.exhausted())
	now = now.Add(time.Millisecond)
	assert.True(t, b.exhausted())
}

func TestNewBudgetEscalates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TokenBudget = 3
	p := &HTMLDocumentParser{config: cfg, state: newParserState(AllowDeferredParsing, 3, PreloadProcessingNone, fatalChecks())}

	for i := 0; i <= cfg.NumYieldsWithDefaultBudget; i++ {
		b := p.newBudget().(*tokenCountBudget)
		assert.Equal(t, 3, b.remaining, "yield %d", i)
		p.state.MarkYield()
	}
	b := p.newBudget().(*tokenCountBudget)
	assert.Equal(t, infiniteTokenizationBudget, b.remaining)

	cfg.Budget = TimedBudget
	p.config = cfg
	tb := p.newBudget().(*timedBudget)
	assert.Equal(t, cfg.LongTimedBudget, tb.budget)
}
