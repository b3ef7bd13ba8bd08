package parser

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProducer(background bool) (*InputStream, *TokenProducer) {
	in := NewInputStream()
	p := NewTokenProducer(in, dataState, true, background, logrus.New())
	return in, p
}

func drainProducer(p *TokenProducer) []Token {
	var toks []Token
	for tok := p.ParseNextToken(); tok != nil; tok = p.ParseNextToken() {
		toks = append(toks, *tok)
		p.ClearToken()
	}
	return toks
}

func TestTokenProducerBackgroundMatchesForeground(t *testing.T) {
	chunks := []string{"<html><head><scr", "ipt src=a.js></script><title>x &am", "p; y</title></head><body>", "<p>one</p><!-- c", " --><p>two"}

	run := func(background bool) []string {
		in, p := newTestProducer(background)
		defer p.Close()
		var toks []Token
		for _, c := range chunks {
			in.Append(c)
			p.AppendToEnd(c)
			toks = append(toks, drainProducer(p)...)
		}
		require.NoError(t, in.MarkEndOfFile())
		require.NoError(t, p.MarkEndOfFile())
		toks = append(toks, drainProducer(p)...)
		assert.Equal(t, background, p.IsBackground())
		return describe(toks)
	}

	fg := run(false)
	bg := run(true)
	assert.Equal(t, fg, bg)
	assert.Equal(t, "EOF", fg[len(fg)-1])
}

func TestTokenProducerNoInput(t *testing.T) {
	for _, background := range []bool{false, true} {
		_, p := newTestProducer(background)
		assert.Nil(t, p.ParseNextToken())
		p.Close()
	}
}

func TestTokenProducerMarkEndOfFileTwice(t *testing.T) {
	_, p := newTestProducer(true)
	defer p.Close()
	require.NoError(t, p.MarkEndOfFile())
	assert.Equal(t, ErrEndOfFileAlreadyMarked, p.MarkEndOfFile())
}

func TestTokenProducerAbortForDocumentWrite(t *testing.T) {
	in, p := newTestProducer(true)
	src := "<p>a</p><script>w()</script><p>b</p>"
	in.Append(src)
	p.AppendToEnd(src)

	var got []Token
	for i := 0; i < 6; i++ {
		tok := p.ParseNextToken()
		require.NotNil(t, tok)
		got = append(got, *tok)
		p.ClearToken()
	}
	require.Equal(t, []string{"S:p", "C:a", "E:p", "S:script", "C:w()", "E:script"}, describe(got))

	// The script writes while background tokens for "<p>b</p>" are queued.
	p.AbortBackgroundParsingForDocumentWrite()
	assert.False(t, p.IsBackground())
	in.InsertAtCurrentInsertionPoint("<i>w</i>")

	rest := drainProducer(p)
	assert.Equal(t, []string{"S:i", "C:w", "E:i", "S:p", "C:b", "E:p"}, describe(rest))
}

func TestTokenProducerForcePlaintext(t *testing.T) {
	for _, background := range []bool{false, true} {
		in, p := newTestProducer(background)
		p.ForcePlaintext()
		in.Append("<b>x</b>")
		p.AppendToEnd("<b>x</b>")
		require.NoError(t, in.MarkEndOfFile())
		require.NoError(t, p.MarkEndOfFile())
		assert.Equal(t, []string{"C:<b>x</b>", "EOF"}, describe(drainProducer(p)))
		p.Close()
	}
}

func TestTokenProducerStartsInInitialState(t *testing.T) {
	tests := []struct {
		name       string
		background bool
		abort      bool
	}{
		{name: "foreground"},
		{name: "background", background: true},
		{name: "aborted before the first token", background: true, abort: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := NewInputStream()
			p := NewTokenProducer(in, plaintextState, true, tt.background, logrus.New())
			defer p.Close()
			assert.Equal(t, tt.background, p.IsBackground())
			if tt.abort {
				p.AbortBackgroundParsingForDocumentWrite()
				assert.False(t, p.IsBackground())
			}

			in.Append("<b>x</b>")
			p.AppendToEnd("<b>x</b>")
			require.NoError(t, in.MarkEndOfFile())
			require.NoError(t, p.MarkEndOfFile())
			assert.Equal(t, []string{"C:<b>x</b>", "EOF"}, describe(drainProducer(p)))
		})
	}
}
