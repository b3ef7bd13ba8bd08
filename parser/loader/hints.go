package loader

import "github.com/heathj/docparser/parser"

// The Preloader is also the parser's DocumentLoader: it keeps the head
// metadata the preload scanners find and dispatches Link header preloads.

func (p *Preloader) UpdateViewport(viewport string) {
	p.viewport = viewport
	p.log.WithField("viewport", viewport).Debug("viewport updated")
}

func (p *Preloader) ProcessMetaCH(v parser.MetaCHValue) {
	p.metaCH = append(p.metaCH, v)
}

// DispatchLinkHeaderPreloads sends the Link header preloads. It runs at most
// once per parser; viewport is nil when the head had no viewport meta.
func (p *Preloader) DispatchLinkHeaderPreloads(viewport *string) {
	if len(p.linkPreloads) == 0 {
		return
	}
	log := p.log.WithField("count", len(p.linkPreloads))
	if viewport != nil {
		log = log.WithField("viewport", *viewport)
	}
	log.Debug("dispatching link header preloads")
	requests := p.linkPreloads
	p.linkPreloads = nil
	p.TakeAndPreload(requests)
}

func (p *Preloader) Viewport() string             { return p.viewport }
func (p *Preloader) MetaCH() []parser.MetaCHValue { return p.metaCH }
