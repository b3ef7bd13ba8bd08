package parser

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/heathj/docparser/parser/dom"
)

type lifecycle uint

const (
	parsing lifecycle = iota
	stopping
	stopped
	detached
)

// Stats counts the work a parser has done so far.
type Stats struct {
	Pumps      int
	Tokens     int
	Yields     int
	Scripts    int
	ScriptTime time.Duration
}

// HTMLDocumentParser feeds network text through the tokenizer into a tree
// builder in budgeted pumps, yielding to the task runner between them. All
// methods must be called from the goroutine that runs the parser's tasks.
type HTMLDocumentParser struct {
	id        uuid.UUID
	config    Config
	log       *logrus.Entry
	check     assertion
	state     *parserState
	lifecycle lifecycle

	document  Document
	loader    DocumentLoader
	tree      TreeBuilder
	scripts   ScriptRunner
	preloader ResourcePreloader
	fetcher   Fetcher
	scheduler HostScheduler
	tasks     TaskRunner

	input    *InputStream
	producer *TokenProducer
	decoder  *Decoder

	preloadScanner          *PreloadScanner
	insertionPreloadScanner *PreloadScanner
	backgroundScanner       *BackgroundScanner
	queuedPreloads          []*PreloadRequest

	// written by the background scanner goroutine
	pendingPreloadMu   sync.Mutex
	pendingPreloadData []*PendingPreloadData
	generation         atomic.Uint64

	pendingBatchOperations int
	didPumpTokenizer       bool
	isPreloading           bool
	stats                  Stats
}

// New creates a parser for a document.
func New(cfg Config, deps Deps) (*HTMLDocumentParser, error) {
	return newParser(cfg, deps, dataState, true)
}

func newParser(cfg Config, deps Deps, initial tokenizerState, canUseBackgroundTokenizer bool) (*HTMLDocumentParser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Document == nil || deps.NewTreeBuilder == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "a document and a tree builder are required")
	}
	if cfg.SyncPolicy == AllowDeferredParsing && deps.TaskRunner == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "deferred parsing needs a task runner")
	}

	id := uuid.New()
	log := cfg.logger().WithField("parser", id.String())
	doc := deps.Document
	p := &HTMLDocumentParser{
		id:        id,
		config:    cfg,
		log:       log,
		check:     assertion{fatal: cfg.DebugChecks, log: log},
		document:  doc,
		loader:    deps.Loader,
		fetcher:   deps.Fetcher,
		scheduler: deps.Scheduler,
		tasks:     deps.TaskRunner,
		input:     NewInputStream(),
	}
	if p.fetcher == nil {
		p.fetcher = noopFetcher{}
	}
	if p.scheduler == nil {
		p.scheduler = neverYield{}
	}
	p.state = newParserState(cfg.SyncPolicy, cfg.defaultBudgetFor(doc.URL()), cfg.PreloadProcessing, p.check)

	// Empty documents rarely get data, and a write into one disables the
	// background tokenizer anyway.
	background := cfg.BackgroundTokenizer && canUseBackgroundTokenizer &&
		!doc.IsInitialEmptyDocument() && doc.IsInOutermostMainFrame() && !p.state.IsSynchronous()
	p.producer = NewTokenProducer(p.input, initial, cfg.ScriptingEnabled, background, log)

	// Preloading only pays off for documents in a frame or prefetches.
	if cfg.ContentPolicy == AllowScriptingContent && cfg.PrefetchPolicy == AllowPrefetching &&
		(doc.HasFrame() || doc.IsPrefetchOnly()) && deps.Preloader != nil {
		p.preloader = deps.Preloader
	}

	p.tree = deps.NewTreeBuilder(p)
	if deps.NewScriptRunner != nil && cfg.ContentPolicy == AllowScriptingContent {
		p.scripts = deps.NewScriptRunner(p)
	}

	log.WithFields(logrus.Fields{
		"mode":       cfg.SyncPolicy,
		"budget":     cfg.Budget,
		"background": background,
	}).Debug("parser created")
	return p, nil
}

func (p *HTMLDocumentParser) ID() uuid.UUID { return p.id }

func (p *HTMLDocumentParser) IsStopped() bool  { return p.lifecycle >= stopped }
func (p *HTMLDocumentParser) IsStopping() bool { return p.lifecycle == stopping }
func (p *HTMLDocumentParser) IsDetached() bool { return p.lifecycle == detached }

// Stats returns a snapshot of the work done so far.
func (p *HTMLDocumentParser) Stats() Stats {
	s := p.stats
	s.Yields = p.state.TimesYielded()
	return s
}

// Detach cuts the parser off from its document. Every later call is a no-op
// and scheduled continuations do nothing when they run.
func (p *HTMLDocumentParser) Detach() {
	if p.IsDetached() {
		return
	}
	p.flushFetchBatch()
	p.state.SetState(NotScheduled)
	p.lifecycle = detached
	p.generation.Add(1)

	if p.scripts != nil {
		p.scripts.Detach()
	}
	p.tree.Detach()
	p.preloadScanner = nil
	p.insertionPreloadScanner = nil
	p.releaseWorkers()
	p.log.Debug("detached")
}

// releaseWorkers stops the background scanner and tokenizer goroutines.
func (p *HTMLDocumentParser) releaseWorkers() {
	if p.backgroundScanner != nil {
		p.backgroundScanner.Stop()
		p.backgroundScanner = nil
	}
	p.producer.Close()
}

func (p *HTMLDocumentParser) StopParsing() {
	if !p.IsDetached() {
		p.lifecycle = stopped
	}
	p.state.SetState(NotScheduled)
}

// PrepareToStopParsing runs the last pump, moves the document to interactive
// and then waits for deferred scripts before ending.
func (p *HTMLDocumentParser) PrepareToStopParsing() {
	p.check.check(!p.HasInsertionPoint(), "stopping with an open insertion point")
	if p.IsDetached() {
		return
	}
	p.log.Trace("prepare to stop parsing")

	// This pump should only ever see buffered character tokens.
	if !p.document.IsPrefetchOnly() {
		func() {
			p.state.EnterShouldComplete()
			defer p.state.ExitShouldComplete()
			p.state.EnterEndIfDelayedForbidden()
			defer p.state.ExitEndIfDelayedForbidden()
			p.PumpTokenizerIfPossible()
		}()
	}
	if p.IsStopped() {
		return
	}
	p.lifecycle = stopping

	// Fragments have no script runner and no ready state of their own.
	if p.scripts != nil {
		p.document.SetReadyState(dom.Interactive)
	}
	// Ready state observers may have detached us.
	if p.IsDetached() {
		return
	}
	p.document.OnPrepareToStopParsing()
	p.AttemptToRunDeferredScriptsAndEnd()
}

func (p *HTMLDocumentParser) end() {
	if !p.check.check(!p.IsDetached(), "ending a detached parser") {
		return
	}
	p.tree.Finished()
	p.preloader = nil
	p.lifecycle = stopped
	p.releaseWorkers()
	p.log.WithFields(logrus.Fields{
		"tokens": p.stats.Tokens,
		"pumps":  p.stats.Pumps,
		"yields": p.state.TimesYielded(),
	}).Debug("parsing finished")
}

func (p *HTMLDocumentParser) AttemptToRunDeferredScriptsAndEnd() {
	p.check.check(p.IsStopping(), "running deferred scripts while not stopping")
	p.check.check(!p.HasInsertionPoint(), "running deferred scripts with an open insertion point")
	if p.scripts != nil && !p.scripts.ExecuteScriptsWaitingForParsing() {
		return
	}
	if p.IsDetached() || !p.IsStopping() {
		return
	}
	p.end()
}

// ShouldDelayEnd is true while anything could still add tokens or run
// script.
func (p *HTMLDocumentParser) ShouldDelayEnd() bool {
	return p.state.InPumpSession() || p.IsPaused() || p.IsExecutingScript() || p.state.IsScheduled()
}

// AttemptToEnd is the single entry into completion after Finish. When the end
// has to wait, EndIfDelayed picks it up later.
func (p *HTMLDocumentParser) AttemptToEnd() {
	p.check.check(p.state.ShouldAttemptToEndOnEOF(), "attempt to end before finish")
	p.log.Trace("attempt to end")
	p.state.EnterAttemptToEndForbidden()
	if p.ShouldDelayEnd() {
		p.state.SetEndWasDelayed(true)
		return
	}
	p.state.SetEndWasDelayed(false)
	p.PrepareToStopParsing()
}

func (p *HTMLDocumentParser) EndIfDelayed() {
	p.state.EnterShouldComplete()
	defer p.state.ExitShouldComplete()
	p.state.EnterEndIfDelayedForbidden()
	defer p.state.ExitEndIfDelayedForbidden()

	if p.IsDetached() {
		return
	}
	if !p.state.EndWasDelayed() || p.ShouldDelayEnd() {
		return
	}
	p.log.Trace("end if delayed")
	p.state.SetEndWasDelayed(false)
	p.state.EnterAttemptToEndForbidden()
	p.PrepareToStopParsing()
}

// Finish tells the parser no more data will arrive. It may be called again if
// the first call did not end parsing.
func (p *HTMLDocumentParser) Finish() {
	p.state.EnterShouldComplete()
	defer p.state.ExitShouldComplete()
	p.state.EnterEndIfDelayedForbidden()
	defer p.state.ExitEndIfDelayedForbidden()

	p.Flush()
	if p.IsDetached() {
		return
	}
	if !p.input.HaveSeenEndOfFile() {
		_ = p.input.MarkEndOfFile()
		if err := p.producer.MarkEndOfFile(); err != nil {
			p.check.check(false, "token producer: %v", err)
		}
	}

	p.state.SetAttemptToEndOnEOF()
	if p.state.IsScheduled() && !p.document.IsPrefetchOnly() {
		// The scheduled continuation ends the document once it runs out of
		// work.
		p.state.SetEndWasDelayed(true)
		p.log.WithField("state", p.state.State()).Trace("finish delayed")
		return
	}
	p.AttemptToEnd()
}

// Append queues network text for parsing.
func (p *HTMLDocumentParser) Append(source string) {
	if p.IsStopped() {
		return
	}
	p.log.WithField("size", len(source)).Trace("append")

	p.scanInBackground(source)

	// With a budget, a scanner makes sure blocking scripts further down are
	// requested early. Without one it only pays off while paused.
	if p.backgroundScanner == nil && p.preloadScanner == nil && p.preloader != nil &&
		p.config.PreloadScanningEnabled && p.document.URL() != nil &&
		(!p.state.IsSynchronous() || p.document.IsPrefetchOnly() || p.IsPaused()) {
		p.preloadScanner = p.createPreloadScanner(ScannerMainDocument)
	}

	if p.document.IsPrefetchOnly() {
		if p.preloadScanner != nil {
			p.preloadScanner.AppendToEnd(source)
			p.ScanAndPreload(p.preloadScanner)
		}
		// Prefetch documents are scanned, never parsed.
		return
	}
	if p.preloadScanner != nil {
		p.preloadScanner.AppendToEnd(source)
		if p.state.GetMode() == AllowDeferredParsing && (p.IsPaused() || !p.state.SeenFirstByte()) {
			p.ScanAndPreload(p.preloadScanner)
		}
	}

	p.input.Append(source)
	p.producer.AppendToEnd(source)
	p.state.MarkSeenFirstByte()

	// Data from a nested write is consumed by the outer pump.
	if p.state.InPumpSession() {
		return
	}
	// CommitPreloadedData finishes the append later.
	if p.isPreloading {
		return
	}
	p.FinishAppend()
}

func (p *HTMLDocumentParser) FinishAppend() {
	if p.ShouldPumpTokenizerNowForFinishAppend() {
		p.PumpTokenizerIfPossible()
	} else {
		p.SchedulePumpTokenizer()
	}
}

func (p *HTMLDocumentParser) ShouldPumpTokenizerNowForFinishAppend() bool {
	if p.state.GetMode() != AllowDeferredParsing || p.state.ShouldComplete() {
		return true
	}
	return p.config.processDataImmediately(p.didPumpTokenizer)
}

// SetIsPreloading holds appended data back from the tokenizer until
// CommitPreloadedData.
func (p *HTMLDocumentParser) SetIsPreloading(preloading bool) { p.isPreloading = preloading }
func (p *HTMLDocumentParser) IsPreloading() bool              { return p.isPreloading }

func (p *HTMLDocumentParser) CommitPreloadedData() {
	if !p.isPreloading {
		return
	}
	p.isPreloading = false
	if p.state.SeenFirstByte() && !p.IsStopped() {
		p.FinishAppend()
	}
}

// Insert is document.write: source is parsed at the insertion point before
// Insert returns, unless the parser pauses on a script.
func (p *HTMLDocumentParser) Insert(source string) {
	if p.IsStopped() || source == "" {
		return
	}
	p.log.WithField("size", len(source)).Trace("insert")

	p.input.InsertAtCurrentInsertionPoint(source)
	// Tokens produced ahead of the insertion are no longer valid.
	if p.producer.IsBackground() {
		p.producer.AbortBackgroundParsingForDocumentWrite()
	}

	func() {
		p.state.EnterShouldComplete()
		defer p.state.ExitShouldComplete()
		p.state.EnterEndIfDelayedForbidden()
		defer p.state.ExitEndIfDelayedForbidden()
		p.PumpTokenizerIfPossible()
	}()

	if p.IsPaused() {
		// The main scanner cannot handle text spliced into its stream.
		if p.insertionPreloadScanner == nil {
			p.insertionPreloadScanner = p.createPreloadScanner(ScannerInsertion)
		}
		p.insertionPreloadScanner.AppendToEnd(source)
		if p.preloader != nil {
			p.ScanAndPreload(p.insertionPreloadScanner)
		}
	}
	p.EndIfDelayed()
}

func (p *HTMLDocumentParser) HasInsertionPoint() bool {
	return p.input.HasInsertionPoint() || (p.document.WasCreatedByScript() && !p.input.HaveSeenEndOfFile())
}

// OpenInsertionPoint and CloseInsertionPoint bracket the execution of a
// parser-inserted script.
func (p *HTMLDocumentParser) OpenInsertionPoint()  { p.input.OpenInsertionPoint() }
func (p *HTMLDocumentParser) CloseInsertionPoint() { p.input.CloseInsertionPoint() }

func (p *HTMLDocumentParser) IsPaused() bool {
	return p.IsWaitingForScripts() || p.state.WaitingForStylesheets()
}

// IsWaitingForScripts is true from the moment the tree builder sees a
// blocking </script> until the script has run.
func (p *HTMLDocumentParser) IsWaitingForScripts() bool {
	if p.tree.IsParsingFragment() {
		return false
	}
	treeHas := p.tree.HasParserBlockingScript()
	runnerHas := p.scripts != nil && p.scripts.HasParserBlockingScript()
	p.check.check(!(treeHas && runnerHas), "tree builder and script runner both hold a blocking script")
	return treeHas || runnerHas
}

func (p *HTMLDocumentParser) IsExecutingScript() bool {
	return p.scripts != nil && p.scripts.IsExecutingScript()
}

// ResumeParsingAfterPause runs once a blocking script has completed.
func (p *HTMLDocumentParser) ResumeParsingAfterPause() {
	p.CheckIfBlockingStylesheetAdded()
	if p.IsStopped() || p.IsPaused() || p.IsDetached() {
		return
	}
	p.log.Trace("resume after pause")

	p.insertionPreloadScanner = nil
	if p.state.GetMode() == AllowDeferredParsing && !p.state.ShouldComplete() && !p.state.InPumpSession() {
		p.SchedulePumpTokenizer()
		return
	}
	p.state.EnterShouldComplete()
	defer p.state.ExitShouldComplete()
	p.PumpTokenizerIfPossible()
}

func (p *HTMLDocumentParser) NotifyScriptLoaded() {
	if p.IsStopped() || p.scripts == nil {
		return
	}
	if p.IsStopping() {
		p.AttemptToRunDeferredScriptsAndEnd()
		return
	}
	p.scripts.ExecuteScriptsWaitingForLoad()
	if !p.IsPaused() {
		p.ResumeParsingAfterPause()
	}
}

// NotifyNoRemainingAsyncScripts may let a stopping parser end.
func (p *HTMLDocumentParser) NotifyNoRemainingAsyncScripts() {
	if p.IsStopping() {
		p.AttemptToRunDeferredScriptsAndEnd()
	}
}

func (p *HTMLDocumentParser) ExecuteScriptsWaitingForResources() {
	if p.IsStopped() {
		return
	}
	if p.state.WaitingForStylesheets() {
		p.state.SetWaitingForStylesheets(false)
	}
	if p.IsStopping() {
		p.AttemptToRunDeferredScriptsAndEnd()
		return
	}
	if p.scripts != nil {
		p.scripts.ExecuteScriptsWaitingForResources()
	}
	if !p.IsPaused() {
		p.ResumeParsingAfterPause()
	}
}

// DidAddPendingParserBlockingStylesheet is called for a stylesheet in the
// body. A sheet can come and go within one token, so the parser only pauses
// if it is still pending after the token.
func (p *HTMLDocumentParser) DidAddPendingParserBlockingStylesheet() {
	p.state.SetAddedPendingParserBlockingStylesheet(true)
}

// DidLoadAllPendingParserBlockingStylesheets only clears the flag. Parsing
// restarts from ExecuteScriptsWaitingForResources.
func (p *HTMLDocumentParser) DidLoadAllPendingParserBlockingStylesheets() {
	p.state.SetAddedPendingParserBlockingStylesheet(false)
}

func (p *HTMLDocumentParser) CheckIfBlockingStylesheetAdded() {
	if p.state.AddedPendingParserBlockingStylesheet() {
		p.state.SetAddedPendingParserBlockingStylesheet(false)
		p.state.SetWaitingForStylesheets(true)
	}
}

func (p *HTMLDocumentParser) ForcePlaintextForTextDocument() {
	p.producer.ForcePlaintext()
}

func (p *HTMLDocumentParser) HasPendingWorkScheduledForTesting() bool {
	return p.state.IsScheduled()
}

// FlushBackgroundScannerForTesting blocks until the background scanner has
// delivered everything queued so far.
func (p *HTMLDocumentParser) FlushBackgroundScannerForTesting() {
	if p.backgroundScanner != nil {
		p.backgroundScanner.Flush()
	}
}
