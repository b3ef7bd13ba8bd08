package parser

// parserHandle lets the background scanner reach the parser without keeping
// a detached parser's work alive. Detach bumps the generation, which turns
// every outstanding handle into a no-op.
type parserHandle struct {
	parser     *HTMLDocumentParser
	generation uint64
}

func (h parserHandle) lock() *HTMLDocumentParser {
	if h.parser.generation.Load() != h.generation {
		return nil
	}
	return h.parser
}

// addPreloadData runs on the scanner goroutine. Only the first result of a
// batch posts a flush; later ones ride along with it.
func (h parserHandle) addPreloadData(data *PendingPreloadData) {
	p := h.lock()
	if p == nil {
		return
	}
	p.pendingPreloadMu.Lock()
	shouldPost := len(p.pendingPreloadData) == 0
	p.pendingPreloadData = append(p.pendingPreloadData, data)
	p.pendingPreloadMu.Unlock()

	if shouldPost {
		p.tasks.PostTask(p.FlushPendingPreloads)
	}
}

func (p *HTMLDocumentParser) scanInBackground(source string) {
	if p.state.IsSynchronous() || p.document.URL() == nil {
		return
	}
	if !p.config.ThreadedPreloadScanner || !p.config.PreloadScanningEnabled ||
		p.preloader == nil || p.document.IsPrefetchOnly() {
		return
	}
	if p.config.BackgroundScanMainFrameOnly && !p.document.IsInOutermostMainFrame() {
		return
	}

	if p.backgroundScanner == nil {
		p.check.check(p.preloadScanner == nil, "background scanner started next to a foreground one")
		h := parserHandle{parser: p, generation: p.generation.Load()}
		p.backgroundScanner = NewBackgroundScanner(p.config.ScriptingEnabled, h.addPreloadData,
			p.log.WithField("scanner", "background"))
	}
	p.backgroundScanner.Scan(source, p.document.URL())
}

// FlushPendingPreloads processes everything the background scanner has
// delivered so far.
func (p *HTMLDocumentParser) FlushPendingPreloads() {
	if !p.config.ThreadedPreloadScanner || p.IsDetached() || p.preloader == nil {
		return
	}
	p.startFetchBatch()
	defer p.endFetchBatch()

	for !p.IsDetached() {
		p.pendingPreloadMu.Lock()
		batch := p.pendingPreloadData
		p.pendingPreloadData = nil
		p.pendingPreloadMu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, data := range batch {
			p.ProcessPreloadData(data)
		}
	}
}

func (p *HTMLDocumentParser) hasPendingPreloads() bool {
	p.pendingPreloadMu.Lock()
	defer p.pendingPreloadMu.Unlock()
	return len(p.pendingPreloadData) > 0
}

func (p *HTMLDocumentParser) createPreloadScanner(t ScannerType) *PreloadScanner {
	return NewPreloadScanner(t, p.config.ScriptingEnabled)
}

// ScanAndPreload runs a foreground scanner over what it has been given.
func (p *HTMLDocumentParser) ScanAndPreload(scanner *PreloadScanner) {
	data := scanner.Scan(p.document.URL())
	p.log.WithField("scanner", scanner.Type()).WithField("requests", len(data.Requests)).Trace("scanned")
	p.ProcessPreloadData(data)
}

// ProcessPreloadData hands head metadata to the loader and queues requests.
// Requests wait while a meta CSP the tree builder has not applied yet could
// still forbid them.
func (p *HTMLDocumentParser) ProcessPreloadData(data *PendingPreloadData) {
	if p.loader != nil {
		for _, v := range data.MetaCH {
			p.loader.ProcessMetaCH(v)
		}
	}

	p.startFetchBatch()
	defer p.endFetchBatch()

	if p.loader != nil && p.state.GetMode() == AllowDeferredParsing {
		if data.Viewport != nil {
			p.loader.UpdateViewport(*data.Viewport)
		}
		if p.state.NeedsLinkHeaderPreloadsDispatch() {
			p.loader.DispatchLinkHeaderPreloads(data.Viewport)
			p.state.DispatchedLinkHeaderPreloads()
		}
	}

	p.state.SetSeenCSPMetaTag(data.HasCSPMetaTag)
	p.queuedPreloads = append(p.queuedPreloads, data.Requests...)
	p.FetchQueuedPreloads()
}

func (p *HTMLDocumentParser) FetchQueuedPreloads() {
	if p.preloader == nil || len(p.queuedPreloads) == 0 {
		return
	}
	if p.state.WaitingForCSPMeta() {
		p.log.WithField("queued", len(p.queuedPreloads)).Trace("preloads held for meta csp")
		return
	}
	requests := p.queuedPreloads
	p.queuedPreloads = nil
	p.log.WithField("requests", len(requests)).Debug("preloading")
	p.preloader.TakeAndPreload(requests)
}

// DidProcessCSPMetaTag is called by the tree builder once a meta CSP is in
// effect.
func (p *HTMLDocumentParser) DidProcessCSPMetaTag() {
	p.state.SetCSPProcessed()
	p.FetchQueuedPreloads()
}

func (p *HTMLDocumentParser) DocumentElementAvailable() {
	p.FetchQueuedPreloads()
}

func (p *HTMLDocumentParser) startFetchBatch() {
	p.fetcher.StartBatch()
	p.pendingBatchOperations++
}

func (p *HTMLDocumentParser) endFetchBatch() {
	if p.IsDetached() || p.pendingBatchOperations == 0 {
		return
	}
	p.pendingBatchOperations--
	p.fetcher.EndBatch()
}

func (p *HTMLDocumentParser) flushFetchBatch() {
	for p.pendingBatchOperations > 0 {
		p.pendingBatchOperations--
		p.fetcher.EndBatch()
	}
}
