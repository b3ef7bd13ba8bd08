package parser

import "github.com/sirupsen/logrus"

type nextTokenStatus uint

const (
	noTokens nextTokenStatus = iota
	haveTokens
	haveTokensAfterScript
)

// PumpTokenizerIfPossible pumps unless the parser is paused, then schedules
// whatever has to happen next.
func (p *HTMLDocumentParser) PumpTokenizerIfPossible() {
	yielded := false
	p.CheckIfBlockingStylesheetAdded()
	if !p.IsStopped() && (!p.IsPaused() || p.state.ShouldEndIfDelayed()) {
		yielded = p.PumpTokenizer()
	}

	switch {
	case yielded:
		p.check.check(!p.state.ShouldComplete(), "yielded while parsing must complete")
		p.SchedulePumpTokenizer()
	case p.state.ShouldAttemptToEndOnEOF():
		// Only after Finish: tries to end, and if the end has to wait
		// EndIfDelayed is arranged later.
		p.AttemptToEnd()
	case p.state.ShouldEndIfDelayed():
		// Inside Insert or a deferred continuation the caller runs
		// EndIfDelayed itself.
		if p.state.ShouldComplete() || p.IsStopped() || p.IsStopping() {
			p.EndIfDelayed()
		} else {
			p.ScheduleEndIfDelayed()
		}
	}
}

// deferredPumpTokenizerIfPossible is the posted continuation.
func (p *HTMLDocumentParser) deferredPumpTokenizerIfPossible() {
	p.log.WithField("state", p.state.State()).Trace("deferred pump")
	shouldCallDelayEnd := p.state.State() == ScheduledWithEndIfDelayed
	// Detach and StopParsing reset the state, which turns this into a no-op.
	if !p.state.IsScheduled() {
		return
	}
	p.state.SetState(NotScheduled)

	if !shouldCallDelayEnd {
		p.PumpTokenizerIfPossible()
		return
	}
	p.state.EnterEndIfDelayedForbidden()
	defer p.state.ExitEndIfDelayedForbidden()
	p.PumpTokenizerIfPossible()
	p.EndIfDelayed()
}

// PumpTokenizer moves tokens into the tree builder until input runs out, the
// parser pauses or stops, or the budget says to yield. It returns true when it
// yielded with work left.
func (p *HTMLDocumentParser) PumpTokenizer() bool {
	if p.document.IsPrefetchOnly() || !p.check.check(!p.IsStopped(), "pumping a stopped parser") {
		return false
	}
	p.didPumpTokenizer = true

	p.state.EnterPumpSession()
	defer p.state.ExitPumpSession()

	// A nested pump is a document.write inside a script the outer pump runs.
	runToCompletion := p.state.ShouldComplete() || p.state.IsSynchronous() || p.state.InNestedPumpSession()
	log := p.log.WithFields(logrus.Fields{
		"run_to_completion": runToCompletion,
		"yields":            p.state.TimesYielded(),
	})
	log.WithField("available", p.input.Len()).Trace("pump start")

	p.startFetchBatch()
	defer p.endFetchBatch()

	budget := p.newBudget()
	shouldYield := false
	tokens := 0
	for !shouldYield {
		if p.state.ShouldProcessPreloads() {
			p.FlushPendingPreloads()
		}

		status := p.canTakeNextToken()
		if status == noTokens {
			break
		}
		// Once the body is parsing, a script gets at most one default slice
		// after it before the next yield.
		if status == haveTokensAfterScript && p.state.HaveExitedHeader() {
			budget.clampToDefault()
		}

		tok := p.producer.ParseNextToken()
		if tok == nil {
			break
		}
		budget.consume()
		tokens++

		t := tok.Copy()
		p.producer.ClearToken()
		p.constructTreeFromToken(t)

		if !runToCompletion && !p.IsPaused() {
			shouldYield = (budget.exhausted() || p.scheduler.ShouldYieldForHighPriorityWork()) &&
				p.state.HaveExitedHeader()
			if p.state.ShouldYieldForPreloads() {
				shouldYield = shouldYield || p.hasPendingPreloads()
			}
		}
	}
	p.stats.Pumps++
	p.stats.Tokens += tokens
	log.WithFields(logrus.Fields{"tokens": tokens, "yield": shouldYield}).Trace("pump end")

	if p.IsStopped() || p.tree.IsParsingFragment() {
		return false
	}
	p.tree.Flush()
	// Flushing text must never run script.
	if !p.check.check(!p.IsStopped(), "tree builder flush stopped the parser") {
		return false
	}

	if p.IsPaused() && p.preloader != nil && p.backgroundScanner == nil {
		if p.preloadScanner == nil {
			p.preloadScanner = p.createPreloadScanner(ScannerMainDocument)
			p.preloadScanner.AppendToEnd(p.input.Current())
		}
		p.ScanAndPreload(p.preloadScanner)
	}

	p.check.check(!runToCompletion || !shouldYield, "yielded while running to completion")
	if shouldYield {
		p.state.MarkYield()
	}
	return shouldYield
}

// SchedulePumpTokenizer posts a continuation unless one is pending already.
func (p *HTMLDocumentParser) SchedulePumpTokenizer() {
	if !p.check.check(!p.IsStopped(), "scheduling a stopped parser") ||
		!p.check.check(!p.state.ShouldComplete(), "scheduling while parsing must complete") {
		return
	}
	if p.state.IsScheduled() {
		return
	}
	p.tasks.PostTask(p.deferredPumpTokenizerIfPossible)
	p.state.SetState(Scheduled)
	p.log.Trace("pump scheduled")
}

// ScheduleEndIfDelayed upgrades the pending continuation so that it also
// tries EndIfDelayed, posting one if needed.
func (p *HTMLDocumentParser) ScheduleEndIfDelayed() {
	if !p.check.check(!p.IsStopped(), "scheduling a stopped parser") ||
		!p.check.check(!p.state.ShouldComplete(), "scheduling while parsing must complete") {
		return
	}
	if !p.state.IsScheduled() {
		p.tasks.PostTask(p.deferredPumpTokenizerIfPossible)
	}
	p.state.SetState(ScheduledWithEndIfDelayed)
	p.log.Trace("end if delayed scheduled")
}

func (p *HTMLDocumentParser) canTakeNextToken() nextTokenStatus {
	if p.IsStopped() {
		return noTokens
	}
	status := haveTokens
	// The tree builder stops after a </script> so the script can run before
	// the next token.
	if p.tree.HasParserBlockingScript() {
		start := p.config.now()
		p.runScriptsForPausedTreeBuilder()
		p.stats.Scripts++
		p.stats.ScriptTime += p.config.now().Sub(start)
		status = haveTokensAfterScript
	}
	// The script may have stopped the parser, or it may still be loading.
	if p.IsStopped() || p.IsPaused() {
		return noTokens
	}
	return status
}

func (p *HTMLDocumentParser) runScriptsForPausedTreeBuilder() {
	el, pos := p.tree.TakeScriptToProcess()
	if p.scripts != nil {
		p.scripts.ProcessScriptElement(el, pos)
	}
	p.CheckIfBlockingStylesheetAdded()
}

func (p *HTMLDocumentParser) constructTreeFromToken(tok *Token) {
	if !p.state.HaveExitedHeader() && p.document.HasBody() {
		p.state.SetExitedHeader()
		// A meta CSP can no longer apply, so held preloads may go.
		p.FetchQueuedPreloads()
	}
	p.tree.ConstructTree(tok)
	p.CheckIfBlockingStylesheetAdded()
}
