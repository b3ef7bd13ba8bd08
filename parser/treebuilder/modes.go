package treebuilder

import (
	"strings"

	"github.com/heathj/docparser/parser"
	"github.com/heathj/docparser/parser/dom"
)

var scopeBoundary = map[string]bool{
	"applet": true, "caption": true, "html": true, "table": true, "td": true,
	"th": true, "marquee": true, "object": true, "template": true,
}

var special = map[string]bool{
	"address": true, "applet": true, "area": true, "article": true, "aside": true,
	"base": true, "basefont": true, "bgsound": true, "blockquote": true, "body": true,
	"br": true, "button": true, "caption": true, "center": true, "col": true,
	"colgroup": true, "dd": true, "details": true, "dir": true, "div": true,
	"dl": true, "dt": true, "embed": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "form": true, "frame": true, "frameset": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"head": true, "header": true, "hgroup": true, "hr": true, "html": true,
	"iframe": true, "img": true, "input": true, "keygen": true, "li": true,
	"link": true, "listing": true, "main": true, "marquee": true, "menu": true,
	"meta": true, "nav": true, "noembed": true, "noframes": true, "noscript": true,
	"object": true, "ol": true, "p": true, "param": true, "plaintext": true,
	"pre": true, "script": true, "search": true, "section": true, "select": true,
	"source": true, "style": true, "summary": true, "table": true, "tbody": true,
	"td": true, "template": true, "textarea": true, "tfoot": true, "th": true,
	"thead": true, "title": true, "tr": true, "track": true, "ul": true,
	"wbr": true, "xmp": true,
}

// closesP lists start tags that close an open p element.
var closesP = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"center": true, "details": true, "dialog": true, "dir": true, "div": true,
	"dl": true, "fieldset": true, "figcaption": true, "figure": true,
	"footer": true, "header": true, "hgroup": true, "main": true, "menu": true,
	"nav": true, "ol": true, "p": true, "search": true, "section": true,
	"summary": true, "ul": true, "pre": true, "listing": true, "form": true,
	"table": true, "hr": true, "plaintext": true,
}

var headings = map[string]bool{"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true}

func isWhitespace(r rune) bool {
	switch r {
	case '\u0009', '\u000A', '\u000C', '\u000D', ' ':
		return true
	}
	return false
}

// splitLeadingWhitespace splits a run of text into its leading whitespace and
// the rest.
func splitLeadingWhitespace(s string) (string, string) {
	i := strings.IndexFunc(s, func(r rune) bool { return !isWhitespace(r) })
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

// useRulesFor processes t with the rules of another mode while staying in
// returnMode unless those rules switch modes.
func (b *Builder) useRulesFor(t *parser.Token, returnMode, rulesMode insertionMode) (bool, insertionMode, parseError) {
	reprocess, next, err := b.mappings[rulesMode](t)
	if next == rulesMode {
		next = returnMode
	}
	return reprocess, next, err
}

func (b *Builder) initialModeHandler(t *parser.Token) (bool, insertionMode, parseError) {
	switch t.TokenType {
	case parser.CharacterToken:
		_, rest := splitLeadingWhitespace(t.Data)
		if rest == "" {
			return false, initial, noError
		}
		t.Data = rest
	case parser.CommentToken:
		b.insertComment(t)
		return false, initial, noError
	case parser.DocTypeToken:
		err := noError
		if t.TagName != "html" || t.PublicIdentifier != missing ||
			(t.SystemIdentifier != missing && t.SystemIdentifier != "about:legacy-compat") {
			err = generalParseError
		}
		b.documentNode().AppendChild(dom.NewDocTypeNode(t.TagName, identifier(t.PublicIdentifier), identifier(t.SystemIdentifier)))
		return false, beforeHTML, err
	}
	return true, beforeHTML, generalParseError
}

// missing is how the tokenizer marks an absent doctype identifier.
const missing = "MISSING"

func identifier(s string) string {
	if s == missing {
		return ""
	}
	return s
}

func (b *Builder) defaultBeforeHTMLModeHandler(t *parser.Token) (bool, insertionMode, parseError) {
	b.insertDocumentElement(&parser.Token{TokenType: parser.StartTagToken, TagName: "html"})
	return true, beforeHead, noError
}

func (b *Builder) insertDocumentElement(t *parser.Token) {
	el := b.createElementForToken(t)
	b.documentNode().AppendChild(el)
	b.pushOpenElement(el)
	b.host.DocumentElementAvailable()
}

func (b *Builder) beforeHTMLModeHandler(t *parser.Token) (bool, insertionMode, parseError) {
	switch t.TokenType {
	case parser.DocTypeToken:
		return false, beforeHTML, generalParseError
	case parser.CommentToken:
		b.insertComment(t)
		return false, beforeHTML, noError
	case parser.CharacterToken:
		_, rest := splitLeadingWhitespace(t.Data)
		if rest == "" {
			return false, beforeHTML, noError
		}
		t.Data = rest
	case parser.StartTagToken:
		if t.TagName == "html" {
			b.insertDocumentElement(t)
			return false, beforeHead, noError
		}
	case parser.EndTagToken:
		switch t.TagName {
		case "head", "body", "html", "br":
		default:
			return false, beforeHTML, generalParseError
		}
	}
	return b.defaultBeforeHTMLModeHandler(t)
}

func (b *Builder) insertHead(t *parser.Token) {
	el := b.insertHTMLElementForToken(t)
	b.headElementPointer = el
	b.doc.Head = el
}

func (b *Builder) defaultBeforeHeadModeHandler(t *parser.Token) (bool, insertionMode, parseError) {
	b.insertHead(&parser.Token{TokenType: parser.StartTagToken, TagName: "head"})
	return true, inHead, noError
}

func (b *Builder) beforeHeadModeHandler(t *parser.Token) (bool, insertionMode, parseError) {
	switch t.TokenType {
	case parser.CharacterToken:
		_, rest := splitLeadingWhitespace(t.Data)
		if rest == "" {
			return false, beforeHead, noError
		}
		t.Data = rest
	case parser.CommentToken:
		b.insertComment(t)
		return false, beforeHead, noError
	case parser.DocTypeToken:
		return false, beforeHead, generalParseError
	case parser.StartTagToken:
		switch t.TagName {
		case "html":
			return b.useRulesFor(t, beforeHead, inBody)
		case "head":
			b.insertHead(t)
			return false, inHead, noError
		}
	case parser.EndTagToken:
		switch t.TagName {
		case "head", "body", "html", "br":
		default:
			return false, beforeHead, generalParseError
		}
	}
	return b.defaultBeforeHeadModeHandler(t)
}

func (b *Builder) defaultInHeadModeHandler(t *parser.Token) (bool, insertionMode, parseError) {
	b.popOpenElement()
	return true, afterHead, noError
}

func (b *Builder) inHeadModeHandler(t *parser.Token) (bool, insertionMode, parseError) {
	switch t.TokenType {
	case parser.CharacterToken:
		ws, rest := splitLeadingWhitespace(t.Data)
		b.insertCharacter(ws)
		if rest == "" {
			return false, inHead, noError
		}
		t.Data = rest
	case parser.CommentToken:
		b.insertComment(t)
		return false, inHead, noError
	case parser.DocTypeToken:
		return false, inHead, generalParseError
	case parser.StartTagToken:
		switch t.TagName {
		case "html":
			return b.useRulesFor(t, inHead, inBody)
		case "base", "basefont", "bgsound":
			b.insertVoidElement(t)
			return false, inHead, noError
		case "link":
			el := b.insertVoidElement(t)
			// Only a sheet inserted once the body exists holds up the parser.
			if b.doc.HasBody() && !b.IsParsingFragment() {
				b.blockOnStylesheet(el)
			}
			return false, inHead, noError
		case "meta":
			el := b.insertVoidElement(t)
			if isCSPMeta(el) && !b.doc.HasBody() && !b.IsParsingFragment() {
				b.host.DidProcessCSPMetaTag()
			}
			return false, inHead, noError
		case "title":
			return false, b.insertRawText(t), noError
		case "noscript":
			if b.opts.ScriptingEnabled {
				return false, b.insertRawText(t), noError
			}
			b.insertHTMLElementForToken(t)
			return false, inHeadNoScript, noError
		case "noframes", "style":
			return false, b.insertRawText(t), noError
		case "script":
			return false, b.insertScript(t), noError
		case "head":
			return false, inHead, generalParseError
		}
	case parser.EndTagToken:
		switch t.TagName {
		case "head":
			b.popOpenElement()
			return false, afterHead, noError
		case "body", "html", "br":
		default:
			return false, inHead, generalParseError
		}
	}
	return b.defaultInHeadModeHandler(t)
}

func (b *Builder) defaultInHeadNoScriptModeHandler(t *parser.Token) (bool, insertionMode, parseError) {
	b.popOpenElement()
	return true, inHead, generalParseError
}

func (b *Builder) inHeadNoScriptModeHandler(t *parser.Token) (bool, insertionMode, parseError) {
	switch t.TokenType {
	case parser.CharacterToken:
		ws, rest := splitLeadingWhitespace(t.Data)
		b.insertCharacter(ws)
		if rest == "" {
			return false, inHeadNoScript, noError
		}
		t.Data = rest
	case parser.CommentToken:
		return b.useRulesFor(t, inHeadNoScript, inHead)
	case parser.DocTypeToken:
		return false, inHeadNoScript, generalParseError
	case parser.StartTagToken:
		switch t.TagName {
		case "html":
			return b.useRulesFor(t, inHeadNoScript, inBody)
		case "basefont", "bgsound", "link", "meta", "noframes", "style":
			return b.useRulesFor(t, inHeadNoScript, inHead)
		case "head", "noscript":
			return false, inHeadNoScript, generalParseError
		}
	case parser.EndTagToken:
		switch t.TagName {
		case "noscript":
			b.popOpenElement()
			return false, inHead, noError
		case "br":
		default:
			return false, inHeadNoScript, generalParseError
		}
	}
	return b.defaultInHeadNoScriptModeHandler(t)
}

func (b *Builder) insertBody(t *parser.Token) {
	el := b.insertHTMLElementForToken(t)
	b.doc.Body = el
}

func (b *Builder) defaultAfterHeadModeHandler(t *parser.Token) (bool, insertionMode, parseError) {
	b.insertBody(&parser.Token{TokenType: parser.StartTagToken, TagName: "body"})
	return true, inBody, noError
}

func (b *Builder) afterHeadModeHandler(t *parser.Token) (bool, insertionMode, parseError) {
	switch t.TokenType {
	case parser.CharacterToken:
		ws, rest := splitLeadingWhitespace(t.Data)
		b.insertCharacter(ws)
		if rest == "" {
			return false, afterHead, noError
		}
		t.Data = rest
	case parser.CommentToken:
		b.insertComment(t)
		return false, afterHead, noError
	case parser.DocTypeToken:
		return false, afterHead, generalParseError
	case parser.StartTagToken:
		switch t.TagName {
		case "html":
			return b.useRulesFor(t, afterHead, inBody)
		case "body":
			b.insertBody(t)
			return false, inBody, noError
		case "base", "basefont", "bgsound", "link", "meta", "noframes", "script", "style", "title":
			head := b.headElementPointer
			b.pushOpenElement(head)
			reprocess, next, _ := b.useRulesFor(t, afterHead, inHead)
			b.removeFromStack(head)
			return reprocess, next, generalParseError
		case "head":
			return false, afterHead, generalParseError
		}
	case parser.EndTagToken:
		switch t.TagName {
		case "body", "html", "br":
		default:
			return false, afterHead, generalParseError
		}
	}
	return b.defaultAfterHeadModeHandler(t)
}

func (b *Builder) removeFromStack(n *dom.Node) {
	for i, e := range b.stackOfOpenElements {
		if e == n {
			b.stackOfOpenElements = append(b.stackOfOpenElements[:i], b.stackOfOpenElements[i+1:]...)
			return
		}
	}
}

func (b *Builder) closePElement() {
	if b.elementInScope("p") {
		b.popUntil("p")
	}
}

func (b *Builder) headingInScope() bool {
	for h := range headings {
		if b.elementInScope(h) {
			return true
		}
	}
	return false
}

func (b *Builder) inBodyModeHandler(t *parser.Token) (bool, insertionMode, parseError) {
	switch t.TokenType {
	case parser.CharacterToken:
		b.insertCharacter(strings.ReplaceAll(t.Data, "\u0000", ""))
	case parser.CommentToken:
		b.insertComment(t)
	case parser.DocTypeToken:
		return false, inBody, generalParseError
	case parser.StartTagToken:
		return b.inBodyStartTag(t)
	case parser.EndTagToken:
		return b.inBodyEndTag(t)
	case parser.EndOfFileToken:
		// Parsing stops; the parser calls Finished.
	}
	return false, inBody, noError
}

func (b *Builder) inBodyStartTag(t *parser.Token) (bool, insertionMode, parseError) {
	switch name := t.TagName; {
	case name == "html":
		if len(b.stackOfOpenElements) > 0 {
			b.mergeAttributes(b.stackOfOpenElements[0], t)
		}
		return false, inBody, generalParseError
	case name == "base" || name == "basefont" || name == "bgsound" || name == "link" ||
		name == "meta" || name == "noframes" || name == "script" || name == "style" ||
		name == "title":
		return b.useRulesFor(t, inBody, inHead)
	case name == "body":
		if len(b.stackOfOpenElements) > 1 && b.stackOfOpenElements[1].NodeName == "body" {
			b.mergeAttributes(b.stackOfOpenElements[1], t)
		}
		return false, inBody, generalParseError
	case headings[name]:
		b.closePElement()
		err := noError
		if headings[b.getCurrentNode().NodeName] {
			b.popOpenElement()
			err = generalParseError
		}
		b.insertHTMLElementForToken(t)
		return false, inBody, err
	case name == "li" || name == "dd" || name == "dt":
		for i := len(b.stackOfOpenElements) - 1; i >= 0; i-- {
			n := b.stackOfOpenElements[i].NodeName
			if n == name || (name != "li" && (n == "dd" || n == "dt")) {
				b.popUntil(n)
				break
			}
			if special[n] && n != "address" && n != "div" && n != "p" {
				break
			}
		}
		b.closePElement()
		b.insertHTMLElementForToken(t)
	case closesP[name]:
		b.closePElement()
		if name == "hr" {
			b.insertVoidElement(t)
		} else {
			b.insertHTMLElementForToken(t)
		}
	case name == "area" || name == "br" || name == "embed" || name == "img" ||
		name == "keygen" || name == "wbr" || name == "input" || name == "param" ||
		name == "source" || name == "track":
		b.insertVoidElement(t)
	case name == "textarea" || name == "xmp" || name == "iframe" || name == "noembed":
		if name == "xmp" {
			b.closePElement()
		}
		return false, b.insertRawText(t), noError
	case name == "noscript" && b.opts.ScriptingEnabled:
		return false, b.insertRawText(t), noError
	case name == "head":
		return false, inBody, generalParseError
	default:
		b.insertHTMLElementForToken(t)
	}
	return false, inBody, noError
}

func (b *Builder) inBodyEndTag(t *parser.Token) (bool, insertionMode, parseError) {
	switch name := t.TagName; {
	case name == "body":
		if !b.elementInScope("body") {
			return false, inBody, generalParseError
		}
		return false, afterBody, noError
	case name == "html":
		if !b.elementInScope("body") {
			return false, inBody, generalParseError
		}
		return true, afterBody, noError
	case name == "p":
		err := noError
		if !b.elementInScope("p") {
			b.insertHTMLElementForToken(&parser.Token{TokenType: parser.StartTagToken, TagName: "p"})
			err = generalParseError
		}
		b.popUntil("p")
		return false, inBody, err
	case closesP[name] || name == "li" || name == "dd" || name == "dt":
		if !b.elementInScope(name) {
			return false, inBody, generalParseError
		}
		err := noError
		if b.getCurrentNode().NodeName != name {
			err = generalParseError
		}
		b.popUntil(name)
		return false, inBody, err
	case name == "br":
		b.insertVoidElement(&parser.Token{TokenType: parser.StartTagToken, TagName: "br"})
		return false, inBody, generalParseError
	case headings[name]:
		if !b.headingInScope() {
			return false, inBody, generalParseError
		}
		for len(b.stackOfOpenElements) > 0 {
			if headings[b.popOpenElement().NodeName] {
				break
			}
		}
		return false, inBody, noError
	}
	return false, inBody, b.anyOtherEndTag(t.TagName)
}

func (b *Builder) anyOtherEndTag(name string) parseError {
	for i := len(b.stackOfOpenElements) - 1; i >= 0; i-- {
		n := b.stackOfOpenElements[i]
		if n.NodeName == name {
			b.stackOfOpenElements = b.stackOfOpenElements[:i]
			return noError
		}
		if special[n.NodeName] {
			return generalParseError
		}
	}
	return generalParseError
}

func (b *Builder) textModeHandler(t *parser.Token) (bool, insertionMode, parseError) {
	switch t.TokenType {
	case parser.CharacterToken:
		b.insertCharacter(t.Data)
		return false, text, noError
	case parser.EndOfFileToken:
		b.popOpenElement()
		return true, b.originalInsertionMode, generalParseError
	case parser.EndTagToken:
		el := b.popOpenElement()
		if t.TagName == "script" && el != nil && el.NodeName == "script" {
			b.prepareScript(el)
		}
		return false, b.originalInsertionMode, noError
	}
	return false, text, noError
}

// prepareScript hands a parser-inserted script to the parser, which stops
// taking tokens until it has run.
func (b *Builder) prepareScript(el *dom.Node) {
	if b.IsParsingFragment() || !b.opts.ScriptingEnabled {
		return
	}
	b.scriptToProcess = el
	b.scriptPosition = parser.TextPosition{Line: b.scriptStartLine}
}

func (b *Builder) afterBodyModeHandler(t *parser.Token) (bool, insertionMode, parseError) {
	switch t.TokenType {
	case parser.CharacterToken:
		ws, rest := splitLeadingWhitespace(t.Data)
		b.insertCharacter(ws)
		if rest == "" {
			return false, afterBody, noError
		}
		t.Data = rest
	case parser.CommentToken:
		if len(b.stackOfOpenElements) > 0 {
			b.stackOfOpenElements[0].AppendChild(dom.NewComment(b.documentNode(), t.Data))
		}
		return false, afterBody, noError
	case parser.DocTypeToken:
		return false, afterBody, generalParseError
	case parser.StartTagToken:
		if t.TagName == "html" {
			return b.useRulesFor(t, afterBody, inBody)
		}
	case parser.EndTagToken:
		if t.TagName == "html" {
			if b.IsParsingFragment() {
				return false, afterBody, generalParseError
			}
			return false, afterAfterBody, noError
		}
	case parser.EndOfFileToken:
		return false, afterBody, noError
	}
	return true, inBody, generalParseError
}

func (b *Builder) afterAfterBodyModeHandler(t *parser.Token) (bool, insertionMode, parseError) {
	switch t.TokenType {
	case parser.CommentToken:
		b.documentNode().AppendChild(dom.NewComment(b.documentNode(), t.Data))
		return false, afterAfterBody, noError
	case parser.DocTypeToken:
		return b.useRulesFor(t, afterAfterBody, inBody)
	case parser.CharacterToken:
		ws, rest := splitLeadingWhitespace(t.Data)
		b.insertCharacter(ws)
		if rest == "" {
			return false, afterAfterBody, noError
		}
		t.Data = rest
	case parser.StartTagToken:
		if t.TagName == "html" {
			return b.useRulesFor(t, afterAfterBody, inBody)
		}
	case parser.EndOfFileToken:
		return false, afterAfterBody, noError
	}
	return true, inBody, generalParseError
}
