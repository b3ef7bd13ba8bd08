package parser

import (
	"net/url"

	"github.com/heathj/docparser/parser/dom"
)

// TextPosition is a zero-based line and column in the source.
type TextPosition struct {
	Line   int
	Column int
}

// TreeBuilder consumes tokens and mutates the document.
type TreeBuilder interface {
	ConstructTree(tok *Token)
	// HasParserBlockingScript reports a script whose end tag was just seen
	// and that must run before the next token.
	HasParserBlockingScript() bool
	TakeScriptToProcess() (*dom.Node, TextPosition)
	// Flush inserts any buffered text.
	Flush()
	Finished()
	IsParsingFragment() bool
	Detach()
}

// ScriptRunner loads and executes scripts on behalf of the parser.
type ScriptRunner interface {
	ProcessScriptElement(el *dom.Node, pos TextPosition)
	// ExecuteScriptsWaitingForParsing runs deferred scripts and returns false
	// while any of them is still loading.
	ExecuteScriptsWaitingForParsing() bool
	ExecuteScriptsWaitingForLoad()
	ExecuteScriptsWaitingForResources()
	HasParserBlockingScript() bool
	IsExecutingScript() bool
	Detach()
}

type ResourcePreloader interface {
	TakeAndPreload(requests []*PreloadRequest)
}

// Fetcher brackets groups of requests so they can be dispatched together.
type Fetcher interface {
	StartBatch()
	EndBatch()
}

type HostScheduler interface {
	ShouldYieldForHighPriorityWork() bool
}

// TaskRunner runs posted tasks in order on the parser's goroutine. PostTask
// may be called from any goroutine.
type TaskRunner interface {
	PostTask(task func())
}

// Document is the part of the document the parser needs.
type Document interface {
	URL() *url.URL
	HasBody() bool
	SetReadyState(dom.ReadyState)
	IsPrefetchOnly() bool
	IsInOutermostMainFrame() bool
	IsInitialEmptyDocument() bool
	HasFrame() bool
	WasCreatedByScript() bool
	OnPrepareToStopParsing()
}

// DocumentLoader receives the head metadata found by preload scans. It is
// optional.
type DocumentLoader interface {
	UpdateViewport(viewport string)
	ProcessMetaCH(v MetaCHValue)
	DispatchLinkHeaderPreloads(viewport *string)
}

// Host is the parser as seen by its collaborators.
type Host interface {
	Insert(source string)
	OpenInsertionPoint()
	CloseInsertionPoint()
	HasInsertionPoint() bool
	NotifyScriptLoaded()
	NotifyNoRemainingAsyncScripts()
	DidAddPendingParserBlockingStylesheet()
	DidLoadAllPendingParserBlockingStylesheets()
	ExecuteScriptsWaitingForResources()
	DidProcessCSPMetaTag()
	DocumentElementAvailable()
	IsStopped() bool
}

// Deps wires a parser to its collaborators. Document and NewTreeBuilder are
// required, TaskRunner is required unless parsing is synchronous.
type Deps struct {
	Document        Document
	Loader          DocumentLoader
	NewTreeBuilder  func(host Host) TreeBuilder
	NewScriptRunner func(host Host) ScriptRunner
	Preloader       ResourcePreloader
	Fetcher         Fetcher
	Scheduler       HostScheduler
	TaskRunner      TaskRunner
}

type noopFetcher struct{}

func (noopFetcher) StartBatch() {}
func (noopFetcher) EndBatch()   {}

type neverYield struct{}

func (neverYield) ShouldYieldForHighPriorityWork() bool { return false }
