package parser

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenizerAttributeAccuracyTestcase struct {
	inHTML string            // snippet of HTML to tokenize (should only be one element)
	attrs  map[string]string // expected attributes collected from the first token that is produced
}

var tokenizerAttributeAccuracyTests = []tokenizerAttributeAccuracyTestcase{
	{"<head></head>", map[string]string{}},
	{"<script src='123' onload='test'></script>", map[string]string{
		"src":    "123",
		"onload": "test",
	}},
	{"<a href='https://google.com' onclick='alert(1)'>Click this</a>", map[string]string{
		"href":    "https://google.com",
		"onclick": "alert(1)",
	}},
	{"<script src='123' src='456'></script>", map[string]string{
		"src": "123",
	}},
	{"<script src=123 onload=test></script>", map[string]string{
		"src":    "123",
		"onload": "test",
	}},
	{"<script =src='123'onload='test' ></script>", map[string]string{
		"=src":   "123",
		"onload": "test",
	}},
	{"<script src test></script>", map[string]string{
		"src":  "",
		"test": "",
	}},
	{"<script <asd></script>", map[string]string{
		"<asd": "",
	}},
	{"<script ABC=123></script>", map[string]string{
		"abc": "123",
	}},
	{"<script abc='\u0000123'></script>", map[string]string{
		"abc": "�123",
	}},
	{"<script abc=></script>", map[string]string{
		"abc": "",
	}},
	{"<img alt='a &amp; b' src=x.png/>", map[string]string{
		"alt": "a & b",
		"src": "x.png/",
	}},
}

// TestTokenizerAttributeAccuracy just makes sure that we have the
// correct number attribute names and values
func TestTokenizerAttributeAccuracy(t *testing.T) {
	for _, tt := range tokenizerAttributeAccuracyTests {
		t.Run(tt.inHTML, func(t *testing.T) {
			toks := tokenizeChunks(t, tt.inHTML)
			require.NotEmpty(t, toks)
			assert.Equal(t, StartTagToken, toks[0].TokenType)
			assert.Equal(t, tt.attrs, toks[0].Attributes)
		})
	}
}

// tokenizeChunks feeds chunks one at a time, draining the tokenizer after
// each, then marks end of file.
func tokenizeChunks(t *testing.T, chunks ...string) []Token {
	t.Helper()
	in := NewInputStream()
	z := NewHTMLTokenizer(in, true)
	var toks []Token
	drain := func() {
		for tok := z.NextToken(); tok != nil; tok = z.NextToken() {
			toks = append(toks, *tok)
		}
	}
	for _, c := range chunks {
		in.Append(c)
		drain()
	}
	require.NoError(t, in.MarkEndOfFile())
	drain()
	return toks
}

// describe renders tokens compactly, merging adjacent character runs.
func describe(toks []Token) []string {
	var out []string
	for _, tok := range toks {
		switch tok.TokenType {
		case CharacterToken:
			if n := len(out); n > 0 && strings.HasPrefix(out[n-1], "C:") {
				out[n-1] += tok.Data
				continue
			}
			out = append(out, "C:"+tok.Data)
		case StartTagToken:
			s := "S:" + tok.TagName
			keys := make([]string, 0, len(tok.Attributes))
			for k := range tok.Attributes {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				s += " " + k + "=" + tok.Attributes[k]
			}
			if tok.SelfClosing {
				s += " /"
			}
			out = append(out, s)
		case EndTagToken:
			out = append(out, "E:"+tok.TagName)
		case CommentToken:
			out = append(out, "#:"+tok.Data)
		case DocTypeToken:
			out = append(out, "D:"+tok.TagName)
		case EndOfFileToken:
			out = append(out, "EOF")
		}
	}
	return out
}

func TestTokenizerSequences(t *testing.T) {
	tests := []struct {
		in  string
		exp []string
	}{
		{"<!DOCTYPE html><p>hi</p>", []string{"D:html", "S:p", "C:hi", "E:p", "EOF"}},
		{"<script>a<b</s</script>x", []string{"S:script", "C:a<b</s", "E:script", "C:x", "EOF"}},
		{"<style>p>a{}</style>", []string{"S:style", "C:p>a{}", "E:style", "EOF"}},
		{"<title>a&amp;b<i></title>", []string{"S:title", "C:a&b<i>", "E:title", "EOF"}},
		{"<textarea></TEXTAREA>", []string{"S:textarea", "E:textarea", "EOF"}},
		{"<noscript><img></noscript>", []string{"S:noscript", "C:<img>", "E:noscript", "EOF"}},
		{"<plaintext></plaintext>", []string{"S:plaintext", "C:</plaintext>", "EOF"}},
		{"<!-- c --><!--->", []string{"#: c ", "#:", "EOF"}},
		{"<?php x ?>", []string{"#:?php x ?", "EOF"}},
		{"a < b &lt; c", []string{"C:a < b < c", "EOF"}},
		{"<br/>", []string{"S:br /", "EOF"}},
		{"x\r\ny\rz", []string{"C:x\ny\nz", "EOF"}},
		{"</>", []string{"EOF"}},
		{"<div", []string{"EOF"}},
		{"<", []string{"C:<", "EOF"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.exp, describe(tokenizeChunks(t, tt.in)))
		})
	}
}

// Splitting the input at any rune boundary must not change the tokens.
func TestTokenizerChunkBoundaries(t *testing.T) {
	docs := []string{
		"<!DOCTYPE html><html><head><title>T &amp; U</title><script src=a.js></script></head>",
		"<body class=\"x y\">text\r\nmore &copy; <!-- note --><style>b{}</style><p>end</p></body>",
		"<script>if (a < b) { document.write('</p>') }</script><textarea>&lt;</textarea>",
	}
	for _, doc := range docs {
		whole := describe(tokenizeChunks(t, doc))
		runes := []rune(doc)
		for i := 1; i < len(runes); i++ {
			split := describe(tokenizeChunks(t, string(runes[:i]), string(runes[i:])))
			require.Equal(t, whole, split, "split at %d: %q | %q", i, string(runes[:i]), string(runes[i:]))
		}
	}
}

func TestTokenizerNeedsMoreInput(t *testing.T) {
	in := NewInputStream()
	z := NewHTMLTokenizer(in, true)

	in.Append("<!-")
	assert.Nil(t, z.NextToken())

	in.Append("- hi --")
	assert.Nil(t, z.NextToken())

	in.Append(">tail&am")
	tok := z.NextToken()
	require.NotNil(t, tok)
	assert.Equal(t, CommentToken, tok.TokenType)
	assert.Equal(t, " hi ", tok.Data)

	tok = z.NextToken()
	require.NotNil(t, tok)
	assert.Equal(t, "tail", tok.Data)
	assert.Nil(t, z.NextToken())

	in.Append("p;")
	require.NoError(t, in.MarkEndOfFile())
	tok = z.NextToken()
	require.NotNil(t, tok)
	assert.Equal(t, "&", tok.Data)
	tok = z.NextToken()
	require.NotNil(t, tok)
	assert.Equal(t, EndOfFileToken, tok.TokenType)
	assert.Nil(t, z.NextToken())
}

func TestTokenizerRestore(t *testing.T) {
	in := NewInputStream()
	z := NewHTMLTokenizer(in, true)
	in.Append("<script>x</script><p>hi</p>")

	var seen []Token
	for i := 0; i < 3; i++ {
		tok := z.NextToken()
		require.NotNil(t, tok)
		seen = append(seen, *tok)
	}
	assert.Equal(t, []string{"S:script", "C:x", "E:script"}, describe(seen))

	// Resume right after the script start tag: the tokenizer must be back in
	// script data with the right appropriate end tag.
	z.restore(seen[0].resume)
	var again []Token
	for tok := z.NextToken(); tok != nil; tok = z.NextToken() {
		again = append(again, *tok)
	}
	assert.Equal(t, []string{"C:x", "E:script", "S:p", "C:hi", "E:p"}, describe(again))
}

func TestTokenCopy(t *testing.T) {
	tok := &Token{TokenType: StartTagToken, TagName: "a", Attributes: map[string]string{"href": "x"}}
	c := tok.Copy()
	tok.Attributes["href"] = "y"
	assert.Equal(t, "x", c.Attributes["href"])
	assert.Equal(t, "StartTag", c.TokenType.String())
}
