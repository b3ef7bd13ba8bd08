package treebuilder

import (
	"github.com/pkg/errors"

	"github.com/heathj/docparser/parser"
	"github.com/heathj/docparser/parser/dom"
)

// ParseFragment parses source the way setting innerHTML on context would and
// returns the resulting nodes under a document fragment.
func ParseFragment(source string, context *dom.Node, cfg parser.Config) (*dom.Node, error) {
	doc := dom.NewHTMLDocument(nil)
	var b *Builder
	newTree := func(host parser.Host) parser.TreeBuilder {
		b = newFragment(host, doc, context, Options{
			ScriptingEnabled: cfg.ScriptingEnabled,
			Logger:           cfg.Logger,
		})
		return b
	}
	if err := parser.ParseDocumentFragment(source, context, doc, newTree, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing fragment")
	}

	frag := dom.NewDocumentFragment()
	for _, c := range append([]*dom.Node(nil), b.fragmentRoot.ChildNodes...) {
		frag.AppendChild(b.fragmentRoot.RemoveChild(c))
	}
	return frag, nil
}
