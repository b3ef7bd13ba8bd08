package parser

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

type tokenizerState uint

const (
	dataState tokenizerState = iota
	rcDataState
	rawTextState
	scriptDataState
	plaintextState
	tagOpenState
	endTagOpenState
	tagNameState
	rcDataLessThanSignState
	rcDataEndTagOpenState
	rcDataEndTagNameState
	rawTextLessThanSignState
	rawTextEndTagOpenState
	rawTextEndTagNameState
	scriptDataLessThanSignState
	scriptDataEndTagOpenState
	scriptDataEndTagNameState
	beforeAttributeNameState
	attributeNameState
	afterAttributeNameState
	beforeAttributeValueState
	attributeValueDoubleQuotedState
	attributeValueSingleQuotedState
	attributeValueUnquotedState
	afterAttributeValueQuotedState
	selfClosingStartTagState
	bogusCommentState
	markupDeclarationOpenState
	commentStartState
	commentStartDashState
	commentState
	commentEndDashState
	commentEndState
	commentEndBangState
	doctypeState
	beforeDoctypeNameState
	doctypeNameState
	afterDoctypeNameState
	bogusDoctypeState
)

type parserStateHandler func(r rune, eof bool) (bool, tokenizerState)

// longest reference name we hold back when input runs out mid-reference
const maxPartialReference = 32

// HTMLTokenizer is a resumable tokenizer over an InputStream. NextToken
// returns nil when it needs more input; it can be called again once more text
// has been appended or end of file has been marked.
type HTMLTokenizer struct {
	input                   *InputStream
	currentState            tokenizerState
	emittedTokens           []Token
	tokenBuilder            *TokenBuilder
	lastEmittedStartTagName string
	scriptingEnabled        bool

	text        strings.Builder
	textDecode  bool
	skipNewline bool
	runeOffset  int
	done        bool
}

// NewHTMLTokenizer creates a tokenizer that reads from input, starting in
// the data state.
func NewHTMLTokenizer(input *InputStream, scriptingEnabled bool) *HTMLTokenizer {
	return &HTMLTokenizer{
		input:            input,
		tokenBuilder:     newTokenBuilder(),
		scriptingEnabled: scriptingEnabled,
	}
}

func (p *HTMLTokenizer) stateToParser(state tokenizerState) parserStateHandler {
	switch state {
	case dataState:
		return p.dataStateParser
	case rcDataState:
		return p.rcDataStateParser
	case rawTextState:
		return p.rawTextStateParser
	case scriptDataState:
		return p.scriptDataStateParser
	case plaintextState:
		return p.plaintextStateParser
	case tagOpenState:
		return p.tagOpenStateParser
	case endTagOpenState:
		return p.endTagOpenStateParser
	case tagNameState:
		return p.tagNameStateParser
	case rcDataLessThanSignState:
		return p.rcDataLessThanSignStateParser
	case rcDataEndTagOpenState:
		return p.rcDataEndTagOpenStateParser
	case rcDataEndTagNameState:
		return p.rcDataEndTagNameStateParser
	case rawTextLessThanSignState:
		return p.rawTextLessThanSignStateParser
	case rawTextEndTagOpenState:
		return p.rawTextEndTagOpenStateParser
	case rawTextEndTagNameState:
		return p.rawTextEndTagNameStateParser
	case scriptDataLessThanSignState:
		return p.scriptDataLessThanSignStateParser
	case scriptDataEndTagOpenState:
		return p.scriptDataEndTagOpenStateParser
	case scriptDataEndTagNameState:
		return p.scriptDataEndTagNameStateParser
	case beforeAttributeNameState:
		return p.beforeAttributeNameStateParser
	case attributeNameState:
		return p.attributeNameStateParser
	case afterAttributeNameState:
		return p.afterAttributeNameStateParser
	case beforeAttributeValueState:
		return p.beforeAttributeValueStateParser
	case attributeValueDoubleQuotedState:
		return p.attributeValueDoubleQuotedStateParser
	case attributeValueSingleQuotedState:
		return p.attributeValueSingleQuotedStateParser
	case attributeValueUnquotedState:
		return p.attributeValueUnquotedStateParser
	case afterAttributeValueQuotedState:
		return p.afterAttributeValueQuotedStateParser
	case selfClosingStartTagState:
		return p.selfClosingStartTagStateParser
	case bogusCommentState:
		return p.bogusCommentStateParser
	case commentStartState:
		return p.commentStartStateParser
	case commentStartDashState:
		return p.commentStartDashStateParser
	case commentState:
		return p.commentStateParser
	case commentEndDashState:
		return p.commentEndDashStateParser
	case commentEndState:
		return p.commentEndStateParser
	case commentEndBangState:
		return p.commentEndBangStateParser
	case doctypeState:
		return p.doctypeStateParser
	case beforeDoctypeNameState:
		return p.beforeDoctypeNameStateParser
	case doctypeNameState:
		return p.doctypeNameStateParser
	case afterDoctypeNameState:
		return p.afterDoctypeNameStateParser
	case bogusDoctypeState:
		return p.bogusDoctypeStateParser
	}

	return nil
}

// NextToken returns the next complete token, or nil if the available input
// has been exhausted without completing one.
func (p *HTMLTokenizer) NextToken() *Token {
	for {
		if len(p.emittedTokens) > 0 {
			tok := p.emittedTokens[0]
			p.emittedTokens = p.emittedTokens[1:]
			return &tok
		}
		if p.done {
			return nil
		}
		if p.currentState == markupDeclarationOpenState {
			if !p.markupDeclarationOpen() {
				return nil
			}
			continue
		}

		r, ok := p.input.Peek()
		eof := false
		if !ok {
			if !p.input.atEndOfInput() {
				if p.flushPartialText() {
					continue
				}
				return nil
			}
			eof = true
		} else {
			p.runeOffset = p.input.Offset()
			p.input.Advance()
			if p.skipNewline {
				p.skipNewline = false
				if r == '\n' {
					continue
				}
			}
			if r == '\r' {
				r = '\n'
				p.skipNewline = true
			}
		}

		reconsume := true
		for reconsume {
			reconsume, p.currentState = p.stateToParser(p.currentState)(r, eof)
		}
	}
}

// ForcePlaintext switches to the PLAINTEXT state for text documents.
func (p *HTMLTokenizer) ForcePlaintext() {
	p.currentState = plaintextState
}

// SetState sets the state tokenization starts in, for fragment parsing.
func (p *HTMLTokenizer) SetState(s tokenizerState) {
	p.currentState = s
}

// position is the checkpoint of the read cursor when no token is in flight.
func (p *HTMLTokenizer) position() checkpoint {
	return checkpoint{
		offset:       p.input.Offset(),
		state:        p.currentState,
		lastStartTag: p.lastEmittedStartTagName,
		skipNewline:  p.skipNewline,
	}
}

// restore discards everything tokenized after cp and resumes from it.
func (p *HTMLTokenizer) restore(cp checkpoint) {
	p.input.Seek(cp.offset)
	p.currentState = cp.state
	p.lastEmittedStartTagName = cp.lastStartTag
	p.skipNewline = cp.skipNewline
	p.tokenBuilder.Reset()
	p.tokenBuilder.ResetTempBuffer()
	p.text.Reset()
	p.emittedTokens = nil
	p.done = false
}

// stateAfterStartTag mirrors the tree builder's tokenizer switches so the
// tokenizer can run ahead of tree construction.
func (p *HTMLTokenizer) stateAfterStartTag(name string) tokenizerState {
	switch name {
	case "script":
		return scriptDataState
	case "style", "xmp", "iframe", "noembed", "noframes":
		return rawTextState
	case "noscript":
		if p.scriptingEnabled {
			return rawTextState
		}
	case "title", "textarea":
		return rcDataState
	case "plaintext":
		return plaintextState
	}
	return dataState
}

func (p *HTMLTokenizer) checkpointAt(offset int, state tokenizerState) checkpoint {
	return checkpoint{offset: offset, state: state, lastStartTag: p.lastEmittedStartTagName}
}

func (p *HTMLTokenizer) writeText(home tokenizerState, s string) {
	if p.text.Len() == 0 {
		p.textDecode = home == dataState || home == rcDataState
	}
	p.text.WriteString(s)
}

func (p *HTMLTokenizer) writeTextRune(home tokenizerState, r rune) {
	if p.text.Len() == 0 {
		p.textDecode = home == dataState || home == rcDataState
	}
	p.text.WriteRune(r)
}

func (p *HTMLTokenizer) emitText(data string, cp checkpoint) {
	if p.textDecode {
		data = html.UnescapeString(data)
	}
	p.emittedTokens = append(p.emittedTokens, Token{TokenType: CharacterToken, Data: data, resume: cp})
}

// flushTextAt ends the pending character run just before the '<' that is
// being processed.
func (p *HTMLTokenizer) flushTextAt(home tokenizerState) {
	if p.text.Len() == 0 {
		return
	}
	p.emitText(p.text.String(), p.checkpointAt(p.runeOffset, home))
	p.text.Reset()
}

// flushPartialText hands out the pending run when input runs dry. A trailing
// character reference that may still be incomplete stays behind.
func (p *HTMLTokenizer) flushPartialText() bool {
	if p.text.Len() == 0 {
		return false
	}
	text := p.text.String()
	held := ""
	if p.textDecode {
		if i := strings.LastIndexByte(text, '&'); i >= 0 && isPartialReference(text[i+1:]) {
			text, held = text[:i], text[i:]
		}
	}
	if text == "" {
		return false
	}
	cp := p.checkpointAt(p.input.Offset()-utf8.RuneCountInString(held), p.currentState)
	cp.skipNewline = p.skipNewline && held == ""
	p.emitText(text, cp)
	p.text.Reset()
	p.text.WriteString(held)
	return true
}

func isPartialReference(s string) bool {
	if len(s) >= maxPartialReference {
		return false
	}
	for _, c := range s {
		if !isASCIIAlphanumeric(c) && c != '#' {
			return false
		}
	}
	return true
}

func (p *HTMLTokenizer) emitEOF() {
	if p.text.Len() > 0 {
		p.emitText(p.text.String(), p.checkpointAt(p.input.Offset(), dataState))
		p.text.Reset()
	}
	tok := p.tokenBuilder.EndOfFileToken()
	tok.resume = p.checkpointAt(p.input.Offset(), dataState)
	p.emittedTokens = append(p.emittedTokens, tok)
	p.done = true
}

func (p *HTMLTokenizer) emitCurrentTag() tokenizerState {
	tok := p.tokenBuilder.TagToken()
	next := dataState
	if tok.TokenType == StartTagToken {
		p.lastEmittedStartTagName = tok.TagName
		next = p.stateAfterStartTag(tok.TagName)
	}
	tok.resume = p.checkpointAt(p.input.Offset(), next)
	p.emittedTokens = append(p.emittedTokens, tok)
	return next
}

func (p *HTMLTokenizer) emitComment() tokenizerState {
	tok := p.tokenBuilder.CommentToken()
	tok.resume = p.checkpointAt(p.input.Offset(), dataState)
	p.emittedTokens = append(p.emittedTokens, tok)
	return dataState
}

func (p *HTMLTokenizer) emitDoctype() tokenizerState {
	tok := p.tokenBuilder.DocTypeToken()
	tok.resume = p.checkpointAt(p.input.Offset(), dataState)
	p.emittedTokens = append(p.emittedTokens, tok)
	return dataState
}

func (p *HTMLTokenizer) isApprEndTagToken() bool {
	return p.lastEmittedStartTagName == p.tokenBuilder.name.String()
}

func isASCIIAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isASCIIUpper(r rune) bool {
	return r >= 'A' && r <= 'Z'
}

func isASCIIAlphanumeric(r rune) bool {
	return isASCIIAlpha(r) || (r >= '0' && r <= '9')
}

func isASCIIWhitespace(r rune) bool {
	switch r {
	case '\u0009', '\u000A', '\u000C', ' ':
		return true
	}
	return false
}

func toASCIILower(r rune) rune {
	if isASCIIUpper(r) {
		return r + 0x20
	}
	return r
}

// markupDeclarationOpen looks ahead after "<!". It reports false when the
// buffered input is too short to decide and more may still arrive.
func (p *HTMLTokenizer) markupDeclarationOpen() bool {
	peek, full := p.input.PeekN(7)
	switch {
	case strings.HasPrefix(peek, "--"):
		p.input.AdvanceN(2)
		p.tokenBuilder.Reset()
		p.currentState = commentStartState
		return true
	case full && strings.EqualFold(peek, "doctype"):
		p.input.AdvanceN(7)
		p.tokenBuilder.Reset()
		p.currentState = doctypeState
		return true
	}

	if !full && !p.input.atEndOfInput() {
		if strings.HasPrefix("--", peek) ||
			strings.HasPrefix("doctype", strings.ToLower(peek)) ||
			strings.HasPrefix("[CDATA[", peek) {
			return false
		}
	}
	p.tokenBuilder.Reset()
	p.currentState = bogusCommentState
	return true
}

func (p *HTMLTokenizer) dataStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.emitEOF()
		return false, dataState
	}
	switch r {
	case '<':
		p.flushTextAt(dataState)
		return false, tagOpenState
	default:
		p.writeTextRune(dataState, r)
		return false, dataState
	}
}

// textStateParser is shared by RCDATA, RAWTEXT and script data, which differ
// only in where '<' leads.
func (p *HTMLTokenizer) textStateParser(r rune, eof bool, home, lessThan tokenizerState) (bool, tokenizerState) {
	if eof {
		p.emitEOF()
		return false, dataState
	}
	switch r {
	case '<':
		p.flushTextAt(home)
		return false, lessThan
	case '\u0000':
		p.writeTextRune(home, '\uFFFD')
		return false, home
	default:
		p.writeTextRune(home, r)
		return false, home
	}
}

func (p *HTMLTokenizer) rcDataStateParser(r rune, eof bool) (bool, tokenizerState) {
	return p.textStateParser(r, eof, rcDataState, rcDataLessThanSignState)
}

func (p *HTMLTokenizer) rawTextStateParser(r rune, eof bool) (bool, tokenizerState) {
	return p.textStateParser(r, eof, rawTextState, rawTextLessThanSignState)
}

func (p *HTMLTokenizer) scriptDataStateParser(r rune, eof bool) (bool, tokenizerState) {
	return p.textStateParser(r, eof, scriptDataState, scriptDataLessThanSignState)
}

func (p *HTMLTokenizer) plaintextStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.emitEOF()
		return false, dataState
	}
	if r == '\u0000' {
		r = '\uFFFD'
	}
	p.writeTextRune(plaintextState, r)
	return false, plaintextState
}

func (p *HTMLTokenizer) tagOpenStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.writeTextRune(dataState, '<')
		p.emitEOF()
		return false, dataState
	}
	switch {
	case r == '!':
		return false, markupDeclarationOpenState
	case r == '/':
		return false, endTagOpenState
	case isASCIIAlpha(r):
		p.tokenBuilder.Reset()
		p.tokenBuilder.curTagType = startTag
		return true, tagNameState
	case r == '?':
		p.tokenBuilder.Reset()
		return true, bogusCommentState
	default:
		p.writeTextRune(dataState, '<')
		return true, dataState
	}
}

func (p *HTMLTokenizer) endTagOpenStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.writeText(dataState, "</")
		p.emitEOF()
		return false, dataState
	}
	switch {
	case isASCIIAlpha(r):
		p.tokenBuilder.Reset()
		p.tokenBuilder.curTagType = endTag
		return true, tagNameState
	case r == '>':
		return false, dataState
	default:
		p.tokenBuilder.Reset()
		return true, bogusCommentState
	}
}

func (p *HTMLTokenizer) tagNameStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.emitEOF()
		return false, dataState
	}
	switch {
	case isASCIIWhitespace(r):
		return false, beforeAttributeNameState
	case r == '/':
		return false, selfClosingStartTagState
	case r == '>':
		return false, p.emitCurrentTag()
	case r == '\u0000':
		p.tokenBuilder.WriteName('\uFFFD')
		return false, tagNameState
	default:
		p.tokenBuilder.WriteName(toASCIILower(r))
		return false, tagNameState
	}
}

func (p *HTMLTokenizer) textLessThanSignStateParser(r rune, eof bool, home, endTagOpen tokenizerState) (bool, tokenizerState) {
	if !eof && r == '/' {
		p.tokenBuilder.ResetTempBuffer()
		return false, endTagOpen
	}
	p.writeTextRune(home, '<')
	return true, home
}

func (p *HTMLTokenizer) textEndTagOpenStateParser(r rune, eof bool, home, endTagName tokenizerState) (bool, tokenizerState) {
	if !eof && isASCIIAlpha(r) {
		p.tokenBuilder.Reset()
		p.tokenBuilder.curTagType = endTag
		return true, endTagName
	}
	p.writeText(home, "</")
	return true, home
}

func (p *HTMLTokenizer) textEndTagNameStateParser(r rune, eof bool, home, self tokenizerState) (bool, tokenizerState) {
	if !eof {
		switch {
		case isASCIIWhitespace(r) && p.isApprEndTagToken():
			return false, beforeAttributeNameState
		case r == '/' && p.isApprEndTagToken():
			return false, selfClosingStartTagState
		case r == '>' && p.isApprEndTagToken():
			return false, p.emitCurrentTag()
		case isASCIIAlpha(r):
			p.tokenBuilder.WriteTempBuffer(r)
			p.tokenBuilder.WriteName(toASCIILower(r))
			return false, self
		}
	}
	p.writeText(home, "</"+p.tokenBuilder.TempBuffer())
	return true, home
}

func (p *HTMLTokenizer) rcDataLessThanSignStateParser(r rune, eof bool) (bool, tokenizerState) {
	return p.textLessThanSignStateParser(r, eof, rcDataState, rcDataEndTagOpenState)
}

func (p *HTMLTokenizer) rcDataEndTagOpenStateParser(r rune, eof bool) (bool, tokenizerState) {
	return p.textEndTagOpenStateParser(r, eof, rcDataState, rcDataEndTagNameState)
}

func (p *HTMLTokenizer) rcDataEndTagNameStateParser(r rune, eof bool) (bool, tokenizerState) {
	return p.textEndTagNameStateParser(r, eof, rcDataState, rcDataEndTagNameState)
}

func (p *HTMLTokenizer) rawTextLessThanSignStateParser(r rune, eof bool) (bool, tokenizerState) {
	return p.textLessThanSignStateParser(r, eof, rawTextState, rawTextEndTagOpenState)
}

func (p *HTMLTokenizer) rawTextEndTagOpenStateParser(r rune, eof bool) (bool, tokenizerState) {
	return p.textEndTagOpenStateParser(r, eof, rawTextState, rawTextEndTagNameState)
}

func (p *HTMLTokenizer) rawTextEndTagNameStateParser(r rune, eof bool) (bool, tokenizerState) {
	return p.textEndTagNameStateParser(r, eof, rawTextState, rawTextEndTagNameState)
}

func (p *HTMLTokenizer) scriptDataLessThanSignStateParser(r rune, eof bool) (bool, tokenizerState) {
	return p.textLessThanSignStateParser(r, eof, scriptDataState, scriptDataEndTagOpenState)
}

func (p *HTMLTokenizer) scriptDataEndTagOpenStateParser(r rune, eof bool) (bool, tokenizerState) {
	return p.textEndTagOpenStateParser(r, eof, scriptDataState, scriptDataEndTagNameState)
}

func (p *HTMLTokenizer) scriptDataEndTagNameStateParser(r rune, eof bool) (bool, tokenizerState) {
	return p.textEndTagNameStateParser(r, eof, scriptDataState, scriptDataEndTagNameState)
}

func (p *HTMLTokenizer) beforeAttributeNameStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.emitEOF()
		return false, dataState
	}
	switch {
	case isASCIIWhitespace(r):
		return false, beforeAttributeNameState
	case r == '/', r == '>':
		return true, afterAttributeNameState
	case r == '=':
		p.tokenBuilder.CommitAttribute()
		p.tokenBuilder.WriteAttributeName(r)
		return false, attributeNameState
	default:
		p.tokenBuilder.CommitAttribute()
		return true, attributeNameState
	}
}

func (p *HTMLTokenizer) attributeNameStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.emitEOF()
		return false, dataState
	}
	switch {
	case isASCIIWhitespace(r), r == '/', r == '>':
		return true, afterAttributeNameState
	case r == '=':
		return false, beforeAttributeValueState
	case r == '\u0000':
		p.tokenBuilder.WriteAttributeName('\uFFFD')
		return false, attributeNameState
	default:
		p.tokenBuilder.WriteAttributeName(toASCIILower(r))
		return false, attributeNameState
	}
}

func (p *HTMLTokenizer) afterAttributeNameStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.emitEOF()
		return false, dataState
	}
	switch {
	case isASCIIWhitespace(r):
		return false, afterAttributeNameState
	case r == '/':
		p.tokenBuilder.CommitAttribute()
		return false, selfClosingStartTagState
	case r == '=':
		return false, beforeAttributeValueState
	case r == '>':
		return false, p.emitCurrentTag()
	default:
		p.tokenBuilder.CommitAttribute()
		return true, attributeNameState
	}
}

func (p *HTMLTokenizer) beforeAttributeValueStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.emitEOF()
		return false, dataState
	}
	switch r {
	case '\u0009', '\u000A', '\u000C', ' ':
		return false, beforeAttributeValueState
	case '"':
		return false, attributeValueDoubleQuotedState
	case '\'':
		return false, attributeValueSingleQuotedState
	case '>':
		return false, p.emitCurrentTag()
	default:
		return true, attributeValueUnquotedState
	}
}

func (p *HTMLTokenizer) quotedAttributeValueStateParser(r rune, eof bool, quote rune, self tokenizerState) (bool, tokenizerState) {
	if eof {
		p.emitEOF()
		return false, dataState
	}
	switch r {
	case quote:
		return false, afterAttributeValueQuotedState
	case '\u0000':
		p.tokenBuilder.WriteAttributeValue('\uFFFD')
		return false, self
	default:
		p.tokenBuilder.WriteAttributeValue(r)
		return false, self
	}
}

func (p *HTMLTokenizer) attributeValueDoubleQuotedStateParser(r rune, eof bool) (bool, tokenizerState) {
	return p.quotedAttributeValueStateParser(r, eof, '"', attributeValueDoubleQuotedState)
}

func (p *HTMLTokenizer) attributeValueSingleQuotedStateParser(r rune, eof bool) (bool, tokenizerState) {
	return p.quotedAttributeValueStateParser(r, eof, '\'', attributeValueSingleQuotedState)
}

func (p *HTMLTokenizer) attributeValueUnquotedStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.emitEOF()
		return false, dataState
	}
	switch {
	case isASCIIWhitespace(r):
		return false, beforeAttributeNameState
	case r == '>':
		return false, p.emitCurrentTag()
	case r == '\u0000':
		p.tokenBuilder.WriteAttributeValue('\uFFFD')
		return false, attributeValueUnquotedState
	default:
		p.tokenBuilder.WriteAttributeValue(r)
		return false, attributeValueUnquotedState
	}
}

func (p *HTMLTokenizer) afterAttributeValueQuotedStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.emitEOF()
		return false, dataState
	}
	switch {
	case isASCIIWhitespace(r):
		return false, beforeAttributeNameState
	case r == '/':
		return false, selfClosingStartTagState
	case r == '>':
		return false, p.emitCurrentTag()
	default:
		return true, beforeAttributeNameState
	}
}

func (p *HTMLTokenizer) selfClosingStartTagStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.emitEOF()
		return false, dataState
	}
	if r == '>' {
		p.tokenBuilder.EnableSelfClosing()
		return false, p.emitCurrentTag()
	}
	return true, beforeAttributeNameState
}

func (p *HTMLTokenizer) bogusCommentStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.emitComment()
		p.emitEOF()
		return false, dataState
	}
	switch r {
	case '>':
		return false, p.emitComment()
	case '\u0000':
		p.tokenBuilder.WriteData('\uFFFD')
	default:
		p.tokenBuilder.WriteData(r)
	}
	return false, bogusCommentState
}

func (p *HTMLTokenizer) commentStartStateParser(r rune, eof bool) (bool, tokenizerState) {
	switch {
	case eof:
		return true, commentState
	case r == '-':
		return false, commentStartDashState
	case r == '>':
		return false, p.emitComment()
	default:
		return true, commentState
	}
}

func (p *HTMLTokenizer) commentStartDashStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.emitComment()
		p.emitEOF()
		return false, dataState
	}
	switch r {
	case '-':
		return false, commentEndState
	case '>':
		return false, p.emitComment()
	default:
		p.tokenBuilder.WriteData('-')
		return true, commentState
	}
}

func (p *HTMLTokenizer) commentStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.emitComment()
		p.emitEOF()
		return false, dataState
	}
	switch r {
	case '-':
		return false, commentEndDashState
	case '\u0000':
		p.tokenBuilder.WriteData('\uFFFD')
	default:
		p.tokenBuilder.WriteData(r)
	}
	return false, commentState
}

func (p *HTMLTokenizer) commentEndDashStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.emitComment()
		p.emitEOF()
		return false, dataState
	}
	if r == '-' {
		return false, commentEndState
	}
	p.tokenBuilder.WriteData('-')
	return true, commentState
}

func (p *HTMLTokenizer) commentEndStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.emitComment()
		p.emitEOF()
		return false, dataState
	}
	switch r {
	case '>':
		return false, p.emitComment()
	case '!':
		return false, commentEndBangState
	case '-':
		p.tokenBuilder.WriteData('-')
		return false, commentEndState
	default:
		p.tokenBuilder.WriteData('-')
		p.tokenBuilder.WriteData('-')
		return true, commentState
	}
}

func (p *HTMLTokenizer) commentEndBangStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.emitComment()
		p.emitEOF()
		return false, dataState
	}
	switch r {
	case '-':
		p.tokenBuilder.WriteData('-')
		p.tokenBuilder.WriteData('-')
		p.tokenBuilder.WriteData('!')
		return false, commentEndDashState
	case '>':
		return false, p.emitComment()
	default:
		p.tokenBuilder.WriteData('-')
		p.tokenBuilder.WriteData('-')
		p.tokenBuilder.WriteData('!')
		return true, commentState
	}
}

func (p *HTMLTokenizer) doctypeStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.tokenBuilder.EnableForceQuirks()
		p.emitDoctype()
		p.emitEOF()
		return false, dataState
	}
	if isASCIIWhitespace(r) {
		return false, beforeDoctypeNameState
	}
	return true, beforeDoctypeNameState
}

func (p *HTMLTokenizer) beforeDoctypeNameStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.tokenBuilder.EnableForceQuirks()
		p.emitDoctype()
		p.emitEOF()
		return false, dataState
	}
	switch {
	case isASCIIWhitespace(r):
		return false, beforeDoctypeNameState
	case r == '>':
		p.tokenBuilder.EnableForceQuirks()
		return false, p.emitDoctype()
	case r == '\u0000':
		p.tokenBuilder.WriteName('\uFFFD')
		return false, doctypeNameState
	default:
		p.tokenBuilder.WriteName(toASCIILower(r))
		return false, doctypeNameState
	}
}

func (p *HTMLTokenizer) doctypeNameStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.tokenBuilder.EnableForceQuirks()
		p.emitDoctype()
		p.emitEOF()
		return false, dataState
	}
	switch {
	case isASCIIWhitespace(r):
		return false, afterDoctypeNameState
	case r == '>':
		return false, p.emitDoctype()
	case r == '\u0000':
		p.tokenBuilder.WriteName('\uFFFD')
		return false, doctypeNameState
	default:
		p.tokenBuilder.WriteName(toASCIILower(r))
		return false, doctypeNameState
	}
}

// afterDoctypeNameStateParser skips public and system identifiers; the
// parser only needs the doctype name.
func (p *HTMLTokenizer) afterDoctypeNameStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.tokenBuilder.EnableForceQuirks()
		p.emitDoctype()
		p.emitEOF()
		return false, dataState
	}
	switch {
	case isASCIIWhitespace(r):
		return false, afterDoctypeNameState
	case r == '>':
		return false, p.emitDoctype()
	default:
		return false, bogusDoctypeState
	}
}

func (p *HTMLTokenizer) bogusDoctypeStateParser(r rune, eof bool) (bool, tokenizerState) {
	if eof {
		p.emitDoctype()
		p.emitEOF()
		return false, dataState
	}
	if r == '>' {
		return false, p.emitDoctype()
	}
	return false, bogusDoctypeState
}
