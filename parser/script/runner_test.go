package script

import (
	"context"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heathj/docparser/parser"
	"github.com/heathj/docparser/parser/dom"
	"github.com/heathj/docparser/parser/loader"
)

type fakeHost struct {
	calls          []string
	insertionDepth int
}

func (h *fakeHost) Insert(s string)         { h.calls = append(h.calls, "insert "+s) }
func (h *fakeHost) OpenInsertionPoint()     { h.insertionDepth++; h.calls = append(h.calls, "open") }
func (h *fakeHost) CloseInsertionPoint()    { h.insertionDepth--; h.calls = append(h.calls, "close") }
func (h *fakeHost) HasInsertionPoint() bool { return h.insertionDepth > 0 }
func (h *fakeHost) NotifyScriptLoaded()     { h.calls = append(h.calls, "loaded") }
func (h *fakeHost) NotifyNoRemainingAsyncScripts() {
	h.calls = append(h.calls, "no-async")
}
func (h *fakeHost) DidAddPendingParserBlockingStylesheet()      {}
func (h *fakeHost) DidLoadAllPendingParserBlockingStylesheets() {}
func (h *fakeHost) ExecuteScriptsWaitingForResources()          {}
func (h *fakeHost) DidProcessCSPMetaTag()                       {}
func (h *fakeHost) DocumentElementAvailable()                   {}
func (h *fakeHost) IsStopped() bool                             { return false }

type chanTasks chan func()

func (c chanTasks) PostTask(task func()) { c <- task }

// runTasks runs the next n posted tasks.
func (c chanTasks) runTasks(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case task := <-c:
			task()
		case <-time.After(5 * time.Second):
			t.Fatalf("task %d never posted", i)
		}
	}
}

type recordingEvaluator struct {
	js      *JSEvaluator
	sources []string
}

func (e *recordingEvaluator) Evaluate(ctx context.Context, source string, doc Document) error {
	e.sources = append(e.sources, source)
	return e.js.Evaluate(ctx, source, doc)
}

type runnerHarness struct {
	host   *fakeHost
	tasks  chanTasks
	eval   *recordingEvaluator
	loader *loader.Preloader
	runner *Runner
	doc    *dom.HTMLDocument
}

func newRunnerHarness(t *testing.T, bodies map[string]string) *runnerHarness {
	log := logrus.New()
	log.SetOutput(io.Discard)
	base, err := url.Parse("https://example.com/")
	require.NoError(t, err)

	h := &runnerHarness{
		host:  &fakeHost{},
		tasks: make(chanTasks, 16),
		eval:  &recordingEvaluator{js: NewJSEvaluator(log)},
		doc:   dom.NewHTMLDocument(base),
	}
	h.loader = loader.NewPreloader(context.Background(), loader.Options{
		Fetch: func(_ context.Context, u *url.URL) ([]byte, error) {
			body, ok := bodies[u.Path]
			if !ok {
				return nil, errors.Errorf("no body for %s", u)
			}
			return []byte(body), nil
		},
		Logger: log,
	})
	h.runner = New(h.host, Options{
		Tasks:     h.tasks,
		Loader:    h.loader,
		Evaluator: h.eval,
		BaseURL:   base,
		Logger:    log,
	})
	t.Cleanup(func() {
		h.runner.Wait()
		require.NoError(t, h.loader.Wait())
	})
	return h
}

func (h *runnerHarness) script(text string, attrs ...string) *dom.Node {
	a := map[string]string{}
	for i := 0; i+1 < len(attrs); i += 2 {
		a[attrs[i]] = attrs[i+1]
	}
	el := dom.NewElement(h.doc.Node, "script", a)
	el.AppendText(text)
	return el
}

func TestInlineScriptWritesAtInsertionPoint(t *testing.T) {
	h := newRunnerHarness(t, nil)
	h.runner.ProcessScriptElement(h.script(`document.write("<b>" + 'x' + "</b>")`), parser.TextPosition{})

	assert.Equal(t, []string{"open", "insert <b>x</b>", "close"}, h.host.calls)
	assert.False(t, h.runner.IsExecutingScript())
	assert.False(t, h.runner.HasParserBlockingScript())
	assert.Equal(t, 1, h.runner.Executed())
}

func TestWriteWithoutInsertionPointIsDropped(t *testing.T) {
	h := newRunnerHarness(t, nil)
	h.runner.Write("<p>")
	assert.Empty(t, h.host.calls)
}

func TestParserBlockingScript(t *testing.T) {
	h := newRunnerHarness(t, map[string]string{"/app.js": `document.writeln("<i>")`})
	h.runner.ProcessScriptElement(h.script("", "src", "app.js"), parser.TextPosition{Line: 3})

	require.True(t, h.runner.HasParserBlockingScript())
	h.runner.ExecuteScriptsWaitingForLoad()
	assert.Empty(t, h.eval.sources, "not loaded yet")

	h.tasks.runTasks(t, 1)
	assert.Equal(t, []string{"loaded"}, h.host.calls)

	h.runner.ExecuteScriptsWaitingForLoad()
	assert.False(t, h.runner.HasParserBlockingScript())
	assert.Equal(t, []string{"loaded", "open", "insert <i>\n", "close"}, h.host.calls)
}

func TestDeferredScriptsRunInOrderAfterLoading(t *testing.T) {
	h := newRunnerHarness(t, map[string]string{
		"/a.js": `a()`,
		"/b.js": `document.write("late")`,
	})
	h.runner.ProcessScriptElement(h.script("", "src", "a.js", "defer", ""), parser.TextPosition{})
	h.runner.ProcessScriptElement(h.script("", "src", "b.js", "type", "module"), parser.TextPosition{})
	h.runner.ProcessScriptElement(h.script(`inline()`, "type", "module"), parser.TextPosition{})

	assert.False(t, h.runner.HasParserBlockingScript())
	assert.False(t, h.runner.ExecuteScriptsWaitingForParsing())

	h.tasks.runTasks(t, 2)
	require.True(t, h.runner.ExecuteScriptsWaitingForParsing())
	assert.Equal(t, []string{"a()", `document.write("late")`, "inline()"}, h.eval.sources)
	assert.Equal(t, []string{"loaded", "loaded"}, h.host.calls, "deferred writes are dropped")
}

func TestAsyncScriptsRunWhenLoaded(t *testing.T) {
	h := newRunnerHarness(t, map[string]string{"/one.js": `one()`, "/two.js": `two()`})
	h.runner.ProcessScriptElement(h.script("", "src", "one.js", "async", ""), parser.TextPosition{})
	h.runner.ProcessScriptElement(h.script("", "src", "two.js", "async", ""), parser.TextPosition{})
	assert.False(t, h.runner.HasParserBlockingScript())

	h.tasks.runTasks(t, 1)
	assert.Len(t, h.eval.sources, 1)
	assert.Empty(t, h.host.calls)

	h.tasks.runTasks(t, 1)
	assert.ElementsMatch(t, []string{"one()", "two()"}, h.eval.sources)
	assert.Equal(t, []string{"no-async"}, h.host.calls)
}

func TestIgnoredScripts(t *testing.T) {
	tests := []struct {
		name  string
		attrs []string
	}{
		{name: "data block", attrs: []string{"type", "text/template"}},
		{name: "json", attrs: []string{"type", "application/json"}},
		{name: "unresolvable src", attrs: []string{"src", "http://[::1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRunnerHarness(t, nil)
			h.runner.ProcessScriptElement(h.script(`document.write("x")`, tt.attrs...), parser.TextPosition{})
			assert.Empty(t, h.eval.sources)
			assert.Empty(t, h.host.calls)
			assert.False(t, h.runner.HasParserBlockingScript())
		})
	}
}

func TestFailedLoadIsNotExecuted(t *testing.T) {
	h := newRunnerHarness(t, nil)
	h.runner.ProcessScriptElement(h.script("", "src", "missing.js"), parser.TextPosition{})
	h.tasks.runTasks(t, 1)

	h.runner.ExecuteScriptsWaitingForLoad()
	assert.False(t, h.runner.HasParserBlockingScript())
	assert.Empty(t, h.eval.sources)
	assert.Equal(t, []string{"loaded"}, h.host.calls)
}

func TestDetachDropsPendingLoads(t *testing.T) {
	h := newRunnerHarness(t, map[string]string{"/app.js": `app()`})
	h.runner.ProcessScriptElement(h.script("", "src", "app.js"), parser.TextPosition{})
	h.runner.Detach()
	assert.False(t, h.runner.HasParserBlockingScript())

	h.tasks.runTasks(t, 1)
	assert.Empty(t, h.host.calls)
	h.runner.Write("x")
	assert.Empty(t, h.host.calls)
}
