// Package script loads and runs the scripts a document's parser hands over.
package script

import (
	"context"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"github.com/heathj/docparser/parser"
	"github.com/heathj/docparser/parser/dom"
	"github.com/heathj/docparser/parser/loader"
)

// Loader fetches external scripts.
type Loader interface {
	Fetch(u *url.URL) *loader.Resource
}

// Document is what a running script can do to the document.
type Document interface {
	Write(text string)
}

// Evaluator runs script source.
type Evaluator interface {
	Evaluate(ctx context.Context, source string, doc Document) error
}

// Options configures a Runner. External scripts need both Loader and Tasks;
// without them they are skipped.
type Options struct {
	Tasks     parser.TaskRunner
	Loader    Loader
	Evaluator Evaluator
	BaseURL   *url.URL
	Logger    logrus.FieldLogger
	Context   context.Context
}

type kind uint

const (
	classic kind = iota
	module
)

type pendingScript struct {
	el       *dom.Node
	url      *url.URL
	kind     kind
	pos      parser.TextPosition
	inserted bool

	res    *loader.Resource
	source string
	loaded bool
	err    error
}

func (s *pendingScript) name() string {
	if s.url != nil {
		return s.url.String()
	}
	return "inline"
}

// Runner is the parser's ScriptRunner.
type Runner struct {
	host parser.Host
	opts Options
	log  logrus.FieldLogger

	blocking  *pendingScript
	deferred  []*pendingScript
	async     int
	executing int
	executed  int
	detached  bool

	loads conc.WaitGroup
}

func New(host parser.Host, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Evaluator == nil {
		opts.Evaluator = NewJSEvaluator(opts.Logger.WithField("component", "js"))
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	return &Runner{
		host: host,
		opts: opts,
		log:  opts.Logger.WithField("component", "script"),
	}
}

// Factory adapts New to parser.Deps. The last runner it made is kept in
// *last when last is not nil.
func Factory(opts Options, last **Runner) func(parser.Host) parser.ScriptRunner {
	return func(host parser.Host) parser.ScriptRunner {
		r := New(host, opts)
		if last != nil {
			*last = r
		}
		return r
	}
}

var javaScriptTypes = map[string]bool{
	"":                         true,
	"text/javascript":          true,
	"application/javascript":   true,
	"application/ecmascript":   true,
	"application/x-javascript": true,
	"text/ecmascript":          true,
	"text/jscript":             true,
	"module":                   true,
}

// ProcessScriptElement prepares a script the tree builder just closed.
func (r *Runner) ProcessScriptElement(el *dom.Node, pos parser.TextPosition) {
	if r.detached || el == nil {
		return
	}
	typ, _ := el.Attr("type")
	typ = strings.ToLower(strings.TrimSpace(typ))
	if !javaScriptTypes[typ] {
		r.log.WithField("type", typ).Trace("not a script, ignored")
		return
	}

	s := &pendingScript{el: el, pos: pos}
	if typ == "module" {
		s.kind = module
	}
	_, async := el.Attr("async")
	_, deferAttr := el.Attr("defer")
	// Only scripts the parser waits for may write into the document.
	_, external := el.Attr("src")
	s.inserted = s.kind == classic && !async && !(deferAttr && external)

	src, _ := el.Attr("src")
	if !external {
		s.source = el.TextContent()
		s.loaded = true
		switch {
		case s.kind == module && async:
			r.execute(s)
		case s.kind == module:
			r.deferred = append(r.deferred, s)
		default:
			r.execute(s)
		}
		return
	}

	s.url = r.resolve(src)
	if s.url == nil {
		r.log.WithField("src", src).Warn("script src does not resolve")
		return
	}
	if r.opts.Loader == nil || r.opts.Tasks == nil {
		r.log.WithField("url", s.name()).Warn("no loader for external script, skipped")
		return
	}

	log := r.log.WithField("url", s.name())
	switch {
	case async:
		r.async++
		log.Debug("async script")
		r.load(s, func() {
			r.execute(s)
			r.async--
			if r.async == 0 {
				r.host.NotifyNoRemainingAsyncScripts()
			}
		})
	case deferAttr || s.kind == module:
		log.Debug("deferred script")
		r.deferred = append(r.deferred, s)
		r.load(s, r.host.NotifyScriptLoaded)
	default:
		log.Debug("parser-blocking script")
		r.blocking = s
		r.load(s, r.host.NotifyScriptLoaded)
	}
}

// load fetches s and runs done as a task once the body is in.
func (r *Runner) load(s *pendingScript, done func()) {
	s.res = r.opts.Loader.Fetch(s.url)
	res, tasks := s.res, r.opts.Tasks
	r.loads.Go(func() {
		<-res.Done()
		tasks.PostTask(func() {
			if r.detached {
				return
			}
			body, err := res.Result()
			s.source, s.err, s.loaded = string(body), err, true
			done()
		})
	})
}

// ExecuteScriptsWaitingForParsing runs deferred scripts in order.
func (r *Runner) ExecuteScriptsWaitingForParsing() bool {
	for len(r.deferred) > 0 {
		if r.detached {
			return false
		}
		s := r.deferred[0]
		if !s.loaded {
			return false
		}
		r.deferred = r.deferred[1:]
		r.execute(s)
	}
	return true
}

func (r *Runner) ExecuteScriptsWaitingForLoad() {
	if r.blocking == nil || !r.blocking.loaded {
		return
	}
	s := r.blocking
	r.blocking = nil
	r.execute(s)
}

// ExecuteScriptsWaitingForResources runs once blocking stylesheets are in.
func (r *Runner) ExecuteScriptsWaitingForResources() { r.ExecuteScriptsWaitingForLoad() }

func (r *Runner) HasParserBlockingScript() bool { return r.blocking != nil }
func (r *Runner) IsExecutingScript() bool       { return r.executing > 0 }

// Executed counts the scripts that have run.
func (r *Runner) Executed() int { return r.executed }

func (r *Runner) Detach() {
	r.detached = true
	r.blocking = nil
	r.deferred = nil
}

// Wait blocks until every load has been handed back to the task runner.
func (r *Runner) Wait() { r.loads.Wait() }

// Write implements Document. Text is only inserted while a parser-inserted
// script runs; otherwise it is dropped.
func (r *Runner) Write(text string) {
	if r.detached {
		return
	}
	if !r.host.HasInsertionPoint() {
		r.log.WithField("size", len(text)).Debug("write without an insertion point ignored")
		return
	}
	r.host.Insert(text)
}

func (r *Runner) execute(s *pendingScript) {
	log := r.log.WithFields(logrus.Fields{"script": s.name(), "line": s.pos.Line})
	if s.err != nil {
		log.WithError(s.err).Warn("script failed to load")
		return
	}

	if s.inserted {
		r.host.OpenInsertionPoint()
		defer r.host.CloseInsertionPoint()
	}
	r.executing++
	defer func() { r.executing-- }()

	r.executed++
	log.Trace("executing")
	if err := r.opts.Evaluator.Evaluate(r.opts.Context, s.source, r); err != nil {
		log.WithError(err).Warn("script error")
	}
}

func (r *Runner) resolve(ref string) *url.URL {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil
	}
	if r.opts.BaseURL != nil {
		u = r.opts.BaseURL.ResolveReference(u)
	}
	if !u.IsAbs() {
		return nil
	}
	return u
}
