package parser

import (
	"github.com/heathj/docparser/parser/dom"
)

// tokenizerStateForContextElement picks the state a fragment starts in. A
// fragment is the whole content of its context element, so without error
// reporting raw text elements simply read to the end.
func tokenizerStateForContextElement(context *dom.Node, reportErrors, scriptingEnabled bool) tokenizerState {
	if context == nil {
		return dataState
	}
	switch context.NodeName {
	case "title", "textarea":
		return rcDataState
	case "style", "xmp", "iframe", "noembed", "noframes":
		if reportErrors {
			return rawTextState
		}
		return plaintextState
	case "noscript":
		if !scriptingEnabled {
			return dataState
		}
		if reportErrors {
			return rawTextState
		}
		return plaintextState
	case "script":
		if reportErrors {
			return scriptDataState
		}
		return plaintextState
	case "plaintext":
		return plaintextState
	}
	return dataState
}

// ParseDocumentFragment parses source synchronously into the tree returned by
// newTree, as innerHTML on context would. Scripts never run.
func ParseDocumentFragment(source string, context *dom.Node, doc Document, newTree func(Host) TreeBuilder, cfg Config) error {
	cfg.SyncPolicy = ForceSynchronousParsing
	cfg.ThreadedPreloadScanner = false
	cfg.BackgroundTokenizer = false

	initial := tokenizerStateForContextElement(context, false, cfg.ScriptingEnabled)
	p, err := newParser(cfg, Deps{Document: doc, NewTreeBuilder: newTree}, initial, false)
	if err != nil {
		return err
	}
	p.Append(source)
	p.Finish()
	p.Detach()
	return nil
}
