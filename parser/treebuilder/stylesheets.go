package treebuilder

import (
	"strings"

	"github.com/heathj/docparser/parser/dom"
)

func isStylesheetLink(el *dom.Node) bool {
	rel, ok := el.Attr("rel")
	if !ok {
		return false
	}
	var stylesheet, alternate bool
	for _, r := range strings.Fields(strings.ToLower(rel)) {
		switch r {
		case "stylesheet":
			stylesheet = true
		case "alternate":
			alternate = true
		}
	}
	return stylesheet && !alternate
}

func isCSPMeta(el *dom.Node) bool {
	equiv, _ := el.Attr("http-equiv")
	content, _ := el.Attr("content")
	return strings.EqualFold(strings.TrimSpace(equiv), "content-security-policy") && content != ""
}

// blockOnStylesheet starts loading a body stylesheet and keeps the parser
// paused until every such sheet has loaded.
func (b *Builder) blockOnStylesheet(el *dom.Node) {
	if b.opts.Stylesheets == nil || b.opts.Tasks == nil || !isStylesheetLink(el) {
		return
	}
	href, _ := el.Attr("href")
	u := b.resolve(href)
	if u == nil {
		b.log.WithField("href", href).Debug("stylesheet href does not resolve")
		return
	}

	res := b.opts.Stylesheets.Fetch(u)
	b.pendingSheets++
	b.host.DidAddPendingParserBlockingStylesheet()
	b.log.WithField("url", u.String()).Debug("parser blocked on stylesheet")

	tasks := b.opts.Tasks
	go func() {
		<-res.Done()
		tasks.PostTask(b.stylesheetLoaded)
	}()
}

func (b *Builder) stylesheetLoaded() {
	if b.detached || b.pendingSheets == 0 {
		return
	}
	b.pendingSheets--
	if b.pendingSheets > 0 {
		return
	}
	b.host.DidLoadAllPendingParserBlockingStylesheets()
	if !b.host.IsStopped() {
		b.host.ExecuteScriptsWaitingForResources()
	}
}
