// Package treebuilder turns parser tokens into a dom tree. It covers the
// document-level insertion modes and enough of "in body" for the parser to
// see the head and body it needs for scheduling and to hand scripts and
// stylesheets to their runners.
package treebuilder

import (
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/heathj/docparser/parser"
	"github.com/heathj/docparser/parser/dom"
	"github.com/heathj/docparser/parser/loader"
)

type parseError uint

const (
	noError parseError = iota
	generalParseError
)

type insertionMode uint

const (
	initial insertionMode = iota
	beforeHTML
	beforeHead
	inHead
	inHeadNoScript
	afterHead
	inBody
	text
	afterBody
	afterAfterBody
)

func (m insertionMode) String() string {
	switch m {
	case initial:
		return "initial"
	case beforeHTML:
		return "before html"
	case beforeHead:
		return "before head"
	case inHead:
		return "in head"
	case inHeadNoScript:
		return "in head noscript"
	case afterHead:
		return "after head"
	case inBody:
		return "in body"
	case text:
		return "text"
	case afterBody:
		return "after body"
	case afterAfterBody:
		return "after after body"
	}
	return "unknown"
}

type treeConstructionModeHandler func(t *parser.Token) (bool, insertionMode, parseError)

// StylesheetLoader fetches stylesheets that block the parser.
type StylesheetLoader interface {
	Fetch(u *url.URL) *loader.Resource
}

// Options configures a Builder. Without Stylesheets and Tasks, stylesheets
// never block parsing.
type Options struct {
	ScriptingEnabled bool
	Stylesheets      StylesheetLoader
	Tasks            parser.TaskRunner
	Logger           logrus.FieldLogger
}

// Builder is the parser's TreeBuilder.
type Builder struct {
	host parser.Host
	doc  *dom.HTMLDocument
	opts Options
	log  logrus.FieldLogger

	mode, originalInsertionMode insertionMode
	stackOfOpenElements         []*dom.Node
	headElementPointer          *dom.Node
	mappings                    map[insertionMode]treeConstructionModeHandler

	pendingText   strings.Builder
	pendingParent *dom.Node

	scriptToProcess *dom.Node
	scriptPosition  parser.TextPosition
	scriptStartLine int
	line            int

	// fragmentRoot is the html element the fragment is built under.
	fragmentRoot *dom.Node
	context      *dom.Node

	pendingSheets int

	parseErrors int
	finished    bool
	detached    bool
}

// New returns a builder for a whole document.
func New(host parser.Host, doc *dom.HTMLDocument, opts Options) *Builder {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	b := &Builder{
		host: host,
		doc:  doc,
		opts: opts,
		log:  opts.Logger.WithField("component", "treebuilder"),
	}
	b.createMappings()
	return b
}

// Factory adapts New to parser.Deps.
func Factory(doc *dom.HTMLDocument, opts Options) func(parser.Host) parser.TreeBuilder {
	return func(host parser.Host) parser.TreeBuilder {
		return New(host, doc, opts)
	}
}

// newFragment returns a builder that parses as the children of context.
// Scripts it sees never run.
func newFragment(host parser.Host, doc *dom.HTMLDocument, context *dom.Node, opts Options) *Builder {
	b := New(host, doc, opts)
	b.context = context
	b.fragmentRoot = dom.NewElement(doc.Node, "html", nil)
	b.stackOfOpenElements = []*dom.Node{b.fragmentRoot}
	b.mode = b.resetInsertionMode()
	return b
}

func (b *Builder) createMappings() {
	b.mappings = map[insertionMode]treeConstructionModeHandler{
		initial:        b.initialModeHandler,
		beforeHTML:     b.beforeHTMLModeHandler,
		beforeHead:     b.beforeHeadModeHandler,
		inHead:         b.inHeadModeHandler,
		inHeadNoScript: b.inHeadNoScriptModeHandler,
		afterHead:      b.afterHeadModeHandler,
		inBody:         b.inBodyModeHandler,
		text:           b.textModeHandler,
		afterBody:      b.afterBodyModeHandler,
		afterAfterBody: b.afterAfterBodyModeHandler,
	}
}

// ConstructTree runs t through the current insertion mode, reprocessing it
// for as long as a mode hands it on.
func (b *Builder) ConstructTree(t *parser.Token) {
	if b.detached || b.finished {
		return
	}
	if t.TokenType != parser.CharacterToken {
		b.Flush()
	}

	var (
		reprocess = true
		parseErr  parseError
	)
	for reprocess {
		handler := b.mappings[b.mode]
		reprocess, b.mode, parseErr = handler(t)
		b.logError(t, parseErr)
	}

	if t.TokenType == parser.CharacterToken {
		b.line += strings.Count(t.Data, "\n")
	}
}

func (b *Builder) logError(t *parser.Token, err parseError) {
	if err == noError {
		return
	}
	b.parseErrors++
	b.log.WithFields(logrus.Fields{
		"mode":  b.mode,
		"token": t.TokenType,
		"tag":   t.TagName,
		"line":  b.line,
	}).Debug("parse error")
}

func (b *Builder) HasParserBlockingScript() bool { return b.scriptToProcess != nil }

func (b *Builder) TakeScriptToProcess() (*dom.Node, parser.TextPosition) {
	el, pos := b.scriptToProcess, b.scriptPosition
	b.scriptToProcess = nil
	return el, pos
}

// Flush inserts buffered text.
func (b *Builder) Flush() {
	if b.pendingParent == nil {
		return
	}
	b.pendingParent.AppendText(b.pendingText.String())
	b.pendingText.Reset()
	b.pendingParent = nil
}

// Finished closes every open element and completes the document.
func (b *Builder) Finished() {
	if b.finished || b.detached {
		return
	}
	b.Flush()
	b.finished = true
	b.stackOfOpenElements = nil
	if b.IsParsingFragment() {
		return
	}
	b.log.WithField("parse_errors", b.parseErrors).Debug("tree finished")
	b.doc.SetReadyState(dom.Complete)
}

func (b *Builder) IsParsingFragment() bool { return b.fragmentRoot != nil }

func (b *Builder) Detach() {
	b.detached = true
	b.pendingParent = nil
	b.pendingText.Reset()
}

func (b *Builder) ParseErrors() int { return b.parseErrors }

func (b *Builder) Document() *dom.HTMLDocument { return b.doc }

func (b *Builder) documentNode() *dom.Node { return b.doc.Node }

func (b *Builder) getCurrentNode() *dom.Node {
	if len(b.stackOfOpenElements) == 0 {
		return b.documentNode()
	}
	return b.stackOfOpenElements[len(b.stackOfOpenElements)-1]
}

func (b *Builder) pushOpenElement(n *dom.Node) {
	b.stackOfOpenElements = append(b.stackOfOpenElements, n)
}

func (b *Builder) popOpenElement() *dom.Node {
	if len(b.stackOfOpenElements) == 0 {
		return nil
	}
	n := b.getCurrentNode()
	b.stackOfOpenElements = b.stackOfOpenElements[:len(b.stackOfOpenElements)-1]
	return n
}

// popUntil pops elements up to and including the first one named name.
func (b *Builder) popUntil(name string) {
	for len(b.stackOfOpenElements) > 0 {
		if b.popOpenElement().NodeName == name {
			return
		}
	}
}

func (b *Builder) insertComment(t *parser.Token) {
	b.getCurrentNode().AppendChild(dom.NewComment(b.documentNode(), t.Data))
}

// insertCharacter buffers text for the current node. Text is only written to
// the tree on Flush or when another kind of token arrives.
func (b *Builder) insertCharacter(data string) {
	if data == "" {
		return
	}
	cur := b.getCurrentNode()
	if b.pendingParent != cur {
		b.Flush()
		b.pendingParent = cur
	}
	b.pendingText.WriteString(data)
}

func (b *Builder) createElementForToken(t *parser.Token) *dom.Node {
	return dom.NewElement(b.documentNode(), t.TagName, t.Attributes)
}

func (b *Builder) insertHTMLElementForToken(t *parser.Token) *dom.Node {
	el := b.createElementForToken(t)
	b.getCurrentNode().AppendChild(el)
	b.pushOpenElement(el)
	return el
}

// insertVoidElement inserts an element that never has children.
func (b *Builder) insertVoidElement(t *parser.Token) *dom.Node {
	el := b.insertHTMLElementForToken(t)
	b.popOpenElement()
	return el
}

// insertRawText inserts an element whose content the tokenizer reads as text.
func (b *Builder) insertRawText(t *parser.Token) insertionMode {
	b.insertHTMLElementForToken(t)
	b.originalInsertionMode = b.mode
	return text
}

func (b *Builder) insertScript(t *parser.Token) insertionMode {
	b.insertHTMLElementForToken(t)
	b.scriptStartLine = b.line
	b.originalInsertionMode = b.mode
	return text
}

func (b *Builder) mergeAttributes(target *dom.Node, t *parser.Token) {
	if target == nil {
		return
	}
	for k, v := range t.Attributes {
		if _, ok := target.Attributes[k]; !ok {
			target.Attributes[k] = v
		}
	}
}

func (b *Builder) elementInScope(name string) bool {
	for i := len(b.stackOfOpenElements) - 1; i >= 0; i-- {
		n := b.stackOfOpenElements[i]
		if n.NodeName == name {
			return true
		}
		if scopeBoundary[n.NodeName] {
			return false
		}
	}
	return false
}

func (b *Builder) resetInsertionMode() insertionMode {
	if b.context == nil {
		return inBody
	}
	switch b.context.NodeName {
	case "head":
		return inBody
	case "html":
		if b.headElementPointer == nil {
			return beforeHead
		}
		return afterHead
	}
	return inBody
}

// resolve resolves ref against the base element, or the document URL.
func (b *Builder) resolve(ref string) *url.URL {
	base := b.doc.URL()
	if b.headElementPointer != nil {
		for _, c := range b.headElementPointer.ChildNodes {
			if c.NodeName != "base" {
				continue
			}
			if href, ok := c.Attr("href"); ok {
				if u, err := url.Parse(strings.TrimSpace(href)); err == nil {
					if base != nil {
						u = base.ResolveReference(u)
					}
					base = u
				}
			}
			break
		}
	}
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if !u.IsAbs() {
		return nil
	}
	return u
}
