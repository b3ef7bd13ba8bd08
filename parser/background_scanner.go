package parser

import (
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
)

type scanRequest struct {
	source  string
	baseURL *url.URL
}

// BackgroundScanner runs a main document PreloadScanner on its own goroutine.
// Results are handed to deliver on that goroutine; deliver must do its own
// synchronization.
type BackgroundScanner struct {
	scanner *PreloadScanner
	deliver func(*PendingPreloadData)
	log     logrus.FieldLogger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []scanRequest
	busy    bool
	stopped bool

	wg   conc.WaitGroup
	once sync.Once
}

func NewBackgroundScanner(scriptingEnabled bool, deliver func(*PendingPreloadData), log logrus.FieldLogger) *BackgroundScanner {
	b := &BackgroundScanner{
		scanner: NewPreloadScanner(ScannerMainDocument, scriptingEnabled),
		deliver: deliver,
		log:     log,
	}
	b.cond = sync.NewCond(&b.mu)
	b.wg.Go(b.run)
	return b
}

func (b *BackgroundScanner) run() {
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.stopped {
			b.cond.Wait()
		}
		if b.stopped {
			b.mu.Unlock()
			return
		}
		req := b.queue[0]
		b.queue = b.queue[1:]
		b.busy = true
		b.mu.Unlock()

		b.scanner.AppendToEnd(req.source)
		data := b.scanner.Scan(req.baseURL)
		if !data.empty() {
			b.log.WithField("requests", len(data.Requests)).Trace("background scan found preloads")
			b.deliver(data)
		}

		b.mu.Lock()
		b.busy = false
		b.cond.Broadcast()
		b.mu.Unlock()
	}
}

// Scan queues source for scanning. It never blocks on the scan itself.
func (b *BackgroundScanner) Scan(source string, baseURL *url.URL) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.queue = append(b.queue, scanRequest{source: source, baseURL: baseURL})
	b.cond.Broadcast()
}

// Flush waits until every queued source has been scanned and delivered.
// Tests use it to make background results deterministic.
func (b *BackgroundScanner) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for (len(b.queue) > 0 || b.busy) && !b.stopped {
		b.cond.Wait()
	}
}

// Stop drops queued work and waits for the goroutine to exit.
func (b *BackgroundScanner) Stop() {
	b.once.Do(func() {
		b.mu.Lock()
		b.stopped = true
		b.queue = nil
		b.cond.Broadcast()
		b.mu.Unlock()
		b.wg.Wait()
	})
}
