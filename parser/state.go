package parser

// DeferredParserState orders how strongly a continuation is scheduled.
type DeferredParserState uint

const (
	NotScheduled DeferredParserState = iota
	Scheduled
	ScheduledWithEndIfDelayed
)

func (s DeferredParserState) String() string {
	switch s {
	case NotScheduled:
		return "not_scheduled"
	case Scheduled:
		return "scheduled"
	case ScheduledWithEndIfDelayed:
		return "scheduled_with_end_if_delayed"
	}
	return "unknown"
}

// MetaCSPTokenState tracks whether preloads must wait for a meta CSP tag the
// scanner saw but the tree builder has not processed yet.
type MetaCSPTokenState uint

const (
	MetaCSPNotSeen MetaCSPTokenState = iota
	MetaCSPSeen
	MetaCSPProcessed
	// Unenforceable means the parser has left <head>; a meta CSP after this
	// point no longer delays preloads.
	MetaCSPUnenforceable
)

// parserState is the scheduling state of one parser. Only the parser's own
// goroutine touches it.
type parserState struct {
	mode                  SyncPolicy
	state                 DeferredParserState
	metaCSP               MetaCSPTokenState
	preloadProcessing     PreloadProcessingMode
	defaultBudget         int
	endIfDelayedForbidden int
	shouldComplete        int
	pumpSessionNesting    int
	timesYielded          int

	shouldAttemptToEndOnEOF              bool
	needsLinkHeaderDispatch              bool
	seenFirstByte                        bool
	endWasDelayed                        bool
	addedPendingParserBlockingStylesheet bool
	waitingForStylesheets                bool

	check assertion
}

func newParserState(mode SyncPolicy, defaultBudget int, preloadProcessing PreloadProcessingMode, check assertion) *parserState {
	return &parserState{
		mode:                    mode,
		metaCSP:                 MetaCSPNotSeen,
		preloadProcessing:       preloadProcessing,
		defaultBudget:           defaultBudget,
		needsLinkHeaderDispatch: true,
		check:                   check,
	}
}

func (s *parserState) State() DeferredParserState { return s.state }

// SetState records a scheduling change. Scheduling while the parser must
// complete synchronously is refused.
func (s *parserState) SetState(state DeferredParserState) {
	if state == Scheduled && !s.check.check(!s.ShouldComplete(), "continuation scheduled while parsing must complete") {
		return
	}
	s.state = state
}

func (s *parserState) IsScheduled() bool { return s.state >= Scheduled }

func (s *parserState) GetMode() SyncPolicy { return s.mode }
func (s *parserState) IsSynchronous() bool { return s.mode == ForceSynchronousParsing }

func (s *parserState) GetDefaultBudget() int { return s.defaultBudget }

func (s *parserState) MarkYield()        { s.timesYielded++ }
func (s *parserState) TimesYielded() int { return s.timesYielded }

// Each Enter must be paired with its Exit, normally through defer.

func (s *parserState) EnterEndIfDelayedForbidden() { s.endIfDelayedForbidden++ }

func (s *parserState) ExitEndIfDelayedForbidden() {
	if s.check.check(s.endIfDelayedForbidden > 0, "unbalanced end-if-delayed-forbidden scope") {
		s.endIfDelayedForbidden--
	}
}

func (s *parserState) ShouldEndIfDelayed() bool { return s.endIfDelayedForbidden == 0 }

func (s *parserState) EnterShouldComplete() { s.shouldComplete++ }

func (s *parserState) ExitShouldComplete() {
	if s.check.check(s.shouldComplete > 0, "unbalanced should-complete scope") {
		s.shouldComplete--
	}
}

// ShouldComplete is true inside a should-complete scope and always for
// synchronous parsers.
func (s *parserState) ShouldComplete() bool {
	return s.shouldComplete > 0 || s.mode != AllowDeferredParsing
}

func (s *parserState) EnterPumpSession() { s.pumpSessionNesting++ }

func (s *parserState) ExitPumpSession() {
	if s.check.check(s.pumpSessionNesting > 0, "unbalanced pump session") {
		s.pumpSessionNesting--
	}
}

func (s *parserState) InPumpSession() bool       { return s.pumpSessionNesting > 0 }
func (s *parserState) InNestedPumpSession() bool { return s.pumpSessionNesting > 1 }

// EnterAttemptToEndForbidden clears the pending attempt to end; there is no
// matching exit.
func (s *parserState) EnterAttemptToEndForbidden() { s.shouldAttemptToEndOnEOF = false }

func (s *parserState) SetAttemptToEndOnEOF() {
	s.check.check(!s.shouldAttemptToEndOnEOF, "attempt to end on EOF already set")
	s.shouldAttemptToEndOnEOF = true
}

func (s *parserState) ShouldAttemptToEndOnEOF() bool { return s.shouldAttemptToEndOnEOF }

func (s *parserState) NeedsLinkHeaderPreloadsDispatch() bool { return s.needsLinkHeaderDispatch }
func (s *parserState) DispatchedLinkHeaderPreloads()         { s.needsLinkHeaderDispatch = false }

func (s *parserState) SeenFirstByte() bool { return s.seenFirstByte }
func (s *parserState) MarkSeenFirstByte()  { s.seenFirstByte = true }

func (s *parserState) EndWasDelayed() bool           { return s.endWasDelayed }
func (s *parserState) SetEndWasDelayed(delayed bool) { s.endWasDelayed = delayed }

func (s *parserState) AddedPendingParserBlockingStylesheet() bool {
	return s.addedPendingParserBlockingStylesheet
}

func (s *parserState) SetAddedPendingParserBlockingStylesheet(added bool) {
	s.addedPendingParserBlockingStylesheet = added
}

func (s *parserState) WaitingForStylesheets() bool { return s.waitingForStylesheets }

func (s *parserState) SetWaitingForStylesheets(waiting bool) {
	s.waitingForStylesheets = waiting
}

func (s *parserState) MetaCSP() MetaCSPTokenState { return s.metaCSP }

// SetSeenCSPMetaTag is driven by each preload scan result. A scan without a
// CSP tag never releases preloads held for an earlier one. Another CSP tag in
// the head holds preloads again until the tree builder applies it too.
func (s *parserState) SetSeenCSPMetaTag(seen bool) {
	if seen && (s.metaCSP == MetaCSPNotSeen || s.metaCSP == MetaCSPProcessed) {
		s.metaCSP = MetaCSPSeen
	}
}

func (s *parserState) SetCSPProcessed() {
	if s.metaCSP != MetaCSPUnenforceable {
		s.metaCSP = MetaCSPProcessed
	}
}

func (s *parserState) SetExitedHeader()        { s.metaCSP = MetaCSPUnenforceable }
func (s *parserState) HaveExitedHeader() bool  { return s.metaCSP == MetaCSPUnenforceable }
func (s *parserState) WaitingForCSPMeta() bool { return s.metaCSP == MetaCSPSeen }

func (s *parserState) ShouldProcessPreloads() bool {
	return s.preloadProcessing != PreloadProcessingNone
}

func (s *parserState) ShouldYieldForPreloads() bool {
	return s.preloadProcessing == PreloadProcessingYield
}
