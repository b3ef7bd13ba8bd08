package parser

import (
	"io"
	"net/url"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/heathj/docparser/parser/dom"
)

// fakeTree records tokens and holds a parser-blocking script after every
// </script>.
type fakeTree struct {
	host     Host
	doc      *dom.HTMLDocument
	tokens   []Token
	script   *dom.Node
	blocking *dom.Node

	flushes  int
	finished int
	fragment bool
	detached bool

	onToken func(tok *Token)
}

func (f *fakeTree) ConstructTree(tok *Token) {
	f.tokens = append(f.tokens, *tok)
	switch {
	case tok.TokenType == StartTagToken && tok.TagName == "body":
		f.doc.Body = dom.NewElement(f.doc.Node, "body", nil)
	case tok.TokenType == StartTagToken && tok.TagName == "script":
		f.script = dom.NewElement(f.doc.Node, "script", tok.Attributes)
	case tok.TokenType == CharacterToken && f.script != nil:
		f.script.AppendText(tok.Data)
	case tok.TokenType == EndTagToken && tok.TagName == "script" && f.script != nil:
		if !f.fragment {
			f.blocking = f.script
		}
		f.script = nil
	}
	if f.onToken != nil {
		f.onToken(tok)
	}
}

func (f *fakeTree) HasParserBlockingScript() bool { return f.blocking != nil }

func (f *fakeTree) TakeScriptToProcess() (*dom.Node, TextPosition) {
	el := f.blocking
	f.blocking = nil
	return el, TextPosition{}
}

func (f *fakeTree) Flush()                  { f.flushes++ }
func (f *fakeTree) Finished()               { f.finished++ }
func (f *fakeTree) IsParsingFragment() bool { return f.fragment }
func (f *fakeTree) Detach()                 { f.detached = true }

func (f *fakeTree) described() []string { return describe(f.tokens) }

// fakeRunner runs inline scripts at once. Scripts with a src stay pending
// until load is called.
type fakeRunner struct {
	host      Host
	pending   *dom.Node
	loaded    bool
	executing bool
	detached  bool
	executed  []string

	deferredLoading bool
	waitingCalls    int

	onExecute func(el *dom.Node)
}

func (r *fakeRunner) ProcessScriptElement(el *dom.Node, _ TextPosition) {
	if _, ok := el.Attr("src"); ok {
		r.pending = el
		r.loaded = false
		return
	}
	r.execute(el)
}

func (r *fakeRunner) execute(el *dom.Node) {
	r.executed = append(r.executed, el.TextContent())
	r.executing = true
	r.host.OpenInsertionPoint()
	if r.onExecute != nil {
		r.onExecute(el)
	}
	r.host.CloseInsertionPoint()
	r.executing = false
}

// load finishes the pending script the way a network callback would.
func (r *fakeRunner) load() {
	r.loaded = true
	r.host.NotifyScriptLoaded()
}

func (r *fakeRunner) ExecuteScriptsWaitingForParsing() bool {
	r.waitingCalls++
	return !r.deferredLoading
}

func (r *fakeRunner) ExecuteScriptsWaitingForLoad() {
	if r.pending != nil && r.loaded {
		el := r.pending
		r.pending = nil
		r.execute(el)
	}
}

func (r *fakeRunner) ExecuteScriptsWaitingForResources() {}
func (r *fakeRunner) HasParserBlockingScript() bool      { return r.pending != nil }
func (r *fakeRunner) IsExecutingScript() bool            { return r.executing }
func (r *fakeRunner) Detach()                            { r.detached = true }

type fakeTasks struct {
	mu     sync.Mutex
	queue  []func()
	posted int
}

func (f *fakeTasks) PostTask(task func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, task)
	f.posted++
}

func (f *fakeTasks) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// runNext runs the oldest task and reports whether there was one.
func (f *fakeTasks) runNext() bool {
	f.mu.Lock()
	if len(f.queue) == 0 {
		f.mu.Unlock()
		return false
	}
	task := f.queue[0]
	f.queue = f.queue[1:]
	f.mu.Unlock()
	task()
	return true
}

func (f *fakeTasks) runUntilIdle() int {
	n := 0
	for f.runNext() {
		n++
	}
	return n
}

type fakePreloader struct {
	batches [][]string
}

func (f *fakePreloader) TakeAndPreload(requests []*PreloadRequest) {
	var batch []string
	for _, r := range requests {
		batch = append(batch, r.String())
	}
	f.batches = append(f.batches, batch)
}

func (f *fakePreloader) all() []string {
	var out []string
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

type fakeFetcher struct {
	depth, started, ended int
}

func (f *fakeFetcher) StartBatch() { f.depth++; f.started++ }
func (f *fakeFetcher) EndBatch()   { f.depth--; f.ended++ }

type fakeScheduler struct{ yield bool }

func (f *fakeScheduler) ShouldYieldForHighPriorityWork() bool { return f.yield }

type fakeLoader struct {
	viewports  []string
	metaCH     []MetaCHValue
	dispatched int
}

func (f *fakeLoader) UpdateViewport(v string)            { f.viewports = append(f.viewports, v) }
func (f *fakeLoader) ProcessMetaCH(v MetaCHValue)        { f.metaCH = append(f.metaCH, v) }
func (f *fakeLoader) DispatchLinkHeaderPreloads(*string) { f.dispatched++ }

type harness struct {
	doc       *dom.HTMLDocument
	tree      *fakeTree
	runner    *fakeRunner
	tasks     *fakeTasks
	preloader *fakePreloader
	fetcher   *fakeFetcher
	scheduler *fakeScheduler
	loader    *fakeLoader
	parser    *HTMLDocumentParser
}

func testConfig() Config {
	cfg := DefaultConfig()
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.TraceLevel)
	cfg.Logger = log
	cfg.DebugChecks = true
	return cfg
}

type harnessOption func(h *harness, cfg *Config, deps *Deps)

// withBody starts the document past its header so budgets apply at once.
func withBody() harnessOption {
	return func(h *harness, _ *Config, _ *Deps) {
		h.doc.Body = dom.NewElement(h.doc.Node, "body", nil)
	}
}

func withPreloader() harnessOption {
	return func(h *harness, _ *Config, deps *Deps) {
		deps.Preloader = h.preloader
	}
}

func withConfig(f func(cfg *Config)) harnessOption {
	return func(_ *harness, cfg *Config, _ *Deps) {
		f(cfg)
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	u, err := url.Parse("https://example.com/index.html")
	require.NoError(t, err)

	h := &harness{
		doc:       dom.NewHTMLDocument(u),
		tasks:     &fakeTasks{},
		preloader: &fakePreloader{},
		fetcher:   &fakeFetcher{},
		scheduler: &fakeScheduler{},
		loader:    &fakeLoader{},
	}
	cfg := testConfig()
	deps := Deps{
		Document: h.doc,
		Loader:   h.loader,
		NewTreeBuilder: func(host Host) TreeBuilder {
			h.tree = &fakeTree{host: host, doc: h.doc}
			return h.tree
		},
		NewScriptRunner: func(host Host) ScriptRunner {
			h.runner = &fakeRunner{host: host}
			return h.runner
		},
		Fetcher:    h.fetcher,
		Scheduler:  h.scheduler,
		TaskRunner: h.tasks,
	}
	for _, opt := range opts {
		opt(h, &cfg, &deps)
	}

	h.parser, err = New(cfg, deps)
	require.NoError(t, err)
	t.Cleanup(h.parser.Detach)
	return h
}

// pumpTasks runs posted tasks one by one and returns the number of tokens
// each consumed.
func (h *harness) pumpTasks() []int {
	var perTask []int
	for {
		before := h.parser.Stats().Tokens
		if !h.tasks.runNext() {
			return perTask
		}
		perTask = append(perTask, h.parser.Stats().Tokens-before)
	}
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
