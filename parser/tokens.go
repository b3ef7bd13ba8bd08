package parser

import (
	"strings"

	"golang.org/x/net/html"
)

type TokenType uint

const (
	CharacterToken TokenType = iota
	StartTagToken
	EndTagToken
	EndOfFileToken
	CommentToken
	DocTypeToken
)

func (t TokenType) String() string {
	switch t {
	case CharacterToken:
		return "Character"
	case StartTagToken:
		return "StartTag"
	case EndTagToken:
		return "EndTag"
	case EndOfFileToken:
		return "EndOfFile"
	case CommentToken:
		return "Comment"
	case DocTypeToken:
		return "DOCTYPE"
	}
	return "Unknown"
}

const missing string = "MISSING"

type tagType uint

const (
	startTag tagType = iota
	endTag
)

// checkpoint is a position at which tokenization can resume exactly: the
// input offset plus the tokenizer state that applies there.
type checkpoint struct {
	offset       int
	state        tokenizerState
	lastStartTag string
	skipNewline  bool
}

// Token is a concrete token that is ready to be emitted.
type Token struct {
	TokenType        TokenType
	Attributes       map[string]string
	TagName          string
	PublicIdentifier string
	SystemIdentifier string
	ForceQuirks      bool
	SelfClosing      bool
	Data             string

	resume checkpoint
}

// Copy returns a token that shares no storage with t.
func (t *Token) Copy() *Token {
	c := *t
	if t.Attributes != nil {
		c.Attributes = make(map[string]string, len(t.Attributes))
		for k, v := range t.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}

// TokenBuilder builds various tokens up during the tokenization
// phase.
type TokenBuilder struct {
	attributes     map[string]string
	attributeKey   strings.Builder
	attributeValue strings.Builder
	name           strings.Builder
	data           strings.Builder
	tempBuffer     strings.Builder
	publicID       strings.Builder
	systemID       strings.Builder
	selfClosing    bool
	forceQuirks    bool
	removeNextAttr bool
	curTagType     tagType
}

func newTokenBuilder() *TokenBuilder {
	return &TokenBuilder{
		attributes: make(map[string]string),
	}
}

// Reset clears all the builders and attributes except the temp buffer, which
// outlives a single tag in the end tag name states.
func (t *TokenBuilder) Reset() {
	t.attributes = make(map[string]string)
	t.attributeKey.Reset()
	t.attributeValue.Reset()
	t.publicID.Reset()
	t.systemID.Reset()
	t.publicID.WriteString(missing)
	t.systemID.WriteString(missing)
	t.data.Reset()
	t.name.Reset()
	t.selfClosing = false
	t.forceQuirks = false
	t.removeNextAttr = false
	t.curTagType = startTag
}

func (t *TokenBuilder) EnableSelfClosing() { t.selfClosing = true }
func (t *TokenBuilder) EnableForceQuirks() { t.forceQuirks = true }

func (t *TokenBuilder) WriteName(r rune)           { t.name.WriteRune(r) }
func (t *TokenBuilder) WriteData(r rune)           { t.data.WriteRune(r) }
func (t *TokenBuilder) WriteAttributeName(r rune)  { t.attributeKey.WriteRune(r) }
func (t *TokenBuilder) WriteAttributeValue(r rune) { t.attributeValue.WriteRune(r) }
func (t *TokenBuilder) WriteTempBuffer(r rune)     { t.tempBuffer.WriteRune(r) }
func (t *TokenBuilder) ResetTempBuffer()           { t.tempBuffer.Reset() }
func (t *TokenBuilder) TempBuffer() string         { return t.tempBuffer.String() }

// RemoveDuplicateAttributeName checks if the current name is already
// in the list of commited attributes. If so, the attribute is dropped when it
// is committed.
func (t *TokenBuilder) RemoveDuplicateAttributeName() bool {
	_, ok := t.attributes[t.attributeKey.String()]
	if ok {
		t.removeNextAttr = true
	}
	return ok
}

// CommitAttribute moves the pending attribute into the attribute map,
// decoding character references in its value.
func (t *TokenBuilder) CommitAttribute() {
	if t.attributeKey.Len() == 0 {
		return
	}
	t.RemoveDuplicateAttributeName()
	if !t.removeNextAttr {
		t.attributes[t.attributeKey.String()] = html.UnescapeString(t.attributeValue.String())
	}
	t.removeNextAttr = false
	t.attributeKey.Reset()
	t.attributeValue.Reset()
}

// TagToken returns the start or end tag that has been built so far.
func (t *TokenBuilder) TagToken() Token {
	t.CommitAttribute()
	tok := Token{
		TokenType:   StartTagToken,
		TagName:     t.name.String(),
		Attributes:  t.attributes,
		SelfClosing: t.selfClosing,
	}
	if t.curTagType == endTag {
		tok.TokenType = EndTagToken
		tok.Attributes = map[string]string{}
		tok.SelfClosing = false
	}
	return tok
}

func (t *TokenBuilder) CommentToken() Token {
	return Token{TokenType: CommentToken, Data: t.data.String()}
}

func (t *TokenBuilder) DocTypeToken() Token {
	return Token{
		TokenType:        DocTypeToken,
		TagName:          t.name.String(),
		PublicIdentifier: t.publicID.String(),
		SystemIdentifier: t.systemID.String(),
		ForceQuirks:      t.forceQuirks,
	}
}

func (t *TokenBuilder) EndOfFileToken() Token {
	return Token{TokenType: EndOfFileToken}
}
