package script

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type writes []string

func (w *writes) Write(text string) { *w = append(*w, text) }

func newTestEvaluator() *JSEvaluator {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewJSEvaluator(log)
}

func TestJSEvaluator(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		want    []string
		wantErr bool
	}{
		{name: "no writes", source: `var a = 1;`},
		{name: "double quotes", source: `document.write("<p>hi</p>");`, want: []string{"<p>hi</p>"}},
		{name: "writeln", source: `document.writeln('a')`, want: []string{"a\n"}},
		{name: "concatenation", source: `document.write("<scr" + "ipt>" + '</scr' + 'ipt>')`, want: []string{"<script></script>"}},
		{name: "several arguments", source: `document.write("a", 1, true)`, want: []string{"a1true"}},
		{name: "escapes", source: `document.write("\"q\" \x41B\u{43}\n\\")`, want: []string{"\"q\" ABC\n\\"}},
		{name: "template substitution", source: "var n = 2; document.write(`<h${n}>`)", want: []string{"<h2>"}},
		{name: "empty call", source: `document.write()`, want: []string{""}},
		{name: "loop", source: `for (var i = 0; i < 3; i++) document.write(i)`, want: []string{"0", "1", "2"}},
		{name: "aliased write", source: `var w = document.write; w("x")`, want: []string{"x"}},
		{
			name: "writes in comments strings and dead code are not run",
			source: `// document.write("comment")
				/* document.write("block") */
				var s = 'document.write("string")';
				if (false) { document.write("dead") }
				document.write("live")`,
			want: []string{"live"},
		},
		{name: "syntax error", source: `document.write("abc`, wantErr: true},
		{name: "undefined reference", source: `document.write(x)`, wantErr: true},
		{name: "write before a throw is kept", source: `document.write("a"); throw new Error("b")`, want: []string{"a"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got writes
			err := newTestEvaluator().Evaluate(context.Background(), tt.source, &got)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, []string(got))
		})
	}
}

func TestEvaluatorSharesGlobalsBetweenScripts(t *testing.T) {
	e := newTestEvaluator()
	var first, second writes
	require.NoError(t, e.Evaluate(context.Background(), `var greeting = "hi"`, &first))
	require.NoError(t, e.Evaluate(context.Background(), `document.write(greeting)`, &second))
	assert.Empty(t, first)
	assert.Equal(t, []string{"hi"}, []string(second))
}

func TestEvaluatorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var got writes
	err := newTestEvaluator().Evaluate(ctx, `document.write("a")`, &got)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, got)
}

func TestEvaluatorInterruptsRunningScript(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	e := newTestEvaluator()
	var got writes
	err := e.Evaluate(ctx, `document.write("a"); for (;;) {}`, &got)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"a"}, []string(got))

	require.NoError(t, e.Evaluate(context.Background(), `document.write("b")`, &got), "the runtime is usable again")
	assert.Equal(t, []string{"a", "b"}, []string(got))
}
