// Package loader fetches the resources a document asks for, both speculative
// preloads and the scripts and stylesheets the parser waits on.
package loader

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"github.com/heathj/docparser/parser"
)

const defaultMaxFetches = 6

// FetchFunc retrieves the body behind u.
type FetchFunc func(ctx context.Context, u *url.URL) ([]byte, error)

// Resource is a fetch that is in flight or done.
type Resource struct {
	URL     *url.URL
	Request *parser.PreloadRequest

	done chan struct{}
	body []byte
	err  error
}

func (r *Resource) Done() <-chan struct{} { return r.done }

// IsDone reports whether the fetch has finished.
func (r *Resource) IsDone() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Result returns the body once Done is closed.
func (r *Resource) Result() ([]byte, error) {
	<-r.done
	return r.body, r.err
}

// Options configures a Preloader. Fetch defaults to NewFetch with the default
// client and the OS file system.
type Options struct {
	Fetch       FetchFunc
	MaxFetches  int
	Logger      logrus.FieldLogger
	OnPreloaded func(r *Resource)

	// LinkPreloads come from the response's Link header and go out once the
	// parser has seen the head's viewport.
	LinkPreloads []*parser.PreloadRequest
}

// Preloader is the parser's ResourcePreloader and Fetcher. Requests issued
// inside a batch go out together when the outermost batch ends. Every URL is
// fetched once; later requests share the first fetch.
//
// All methods except Wait must be called from the parser's goroutine.
type Preloader struct {
	fetch       FetchFunc
	log         logrus.FieldLogger
	onPreloaded func(r *Resource)
	pool        *pool.ContextPool

	mu        sync.Mutex
	resources map[string]*Resource
	issued    []*Resource

	batchDepth int
	queued     []*Resource

	linkPreloads []*parser.PreloadRequest
	viewport     string
	metaCH       []parser.MetaCHValue
}

func NewPreloader(ctx context.Context, opts Options) *Preloader {
	if opts.Fetch == nil {
		opts.Fetch = NewFetch(http.DefaultClient, afero.NewOsFs())
	}
	if opts.MaxFetches <= 0 {
		opts.MaxFetches = defaultMaxFetches
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Preloader{
		fetch:       opts.Fetch,
		log:         opts.Logger.WithField("component", "loader"),
		onPreloaded: opts.OnPreloaded,
		pool:        pool.New().WithContext(ctx).WithMaxGoroutines(opts.MaxFetches),
		resources:   make(map[string]*Resource),

		linkPreloads: opts.LinkPreloads,
	}
}

// TakeAndPreload starts fetching every request whose URL is not known yet.
func (p *Preloader) TakeAndPreload(requests []*parser.PreloadRequest) {
	for _, req := range requests {
		res, created := p.resource(req.URL, req)
		if !created {
			p.log.WithField("url", req.URL.String()).Trace("preload already requested")
			continue
		}
		if p.batchDepth > 0 {
			p.queued = append(p.queued, res)
			continue
		}
		p.start(res)
	}
}

func (p *Preloader) StartBatch() { p.batchDepth++ }

func (p *Preloader) EndBatch() {
	if p.batchDepth == 0 {
		return
	}
	p.batchDepth--
	if p.batchDepth > 0 || len(p.queued) == 0 {
		return
	}
	queued := p.queued
	p.queued = nil
	p.log.WithField("requests", len(queued)).Debug("dispatching preload batch")
	for _, res := range queued {
		p.start(res)
	}
}

// Fetch returns the resource for u, starting a fetch right away if nobody
// asked for it before. A fetch held in a batch is released early.
func (p *Preloader) Fetch(u *url.URL) *Resource {
	res, created := p.resource(u, nil)
	if created {
		p.start(res)
		return res
	}
	for i, q := range p.queued {
		if q == res {
			p.queued = append(p.queued[:i], p.queued[i+1:]...)
			p.start(res)
			break
		}
	}
	return res
}

// Requests lists every preload request in the order it was issued.
func (p *Preloader) Requests() []*parser.PreloadRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*parser.PreloadRequest
	for _, res := range p.issued {
		if res.Request != nil {
			out = append(out, res.Request)
		}
	}
	return out
}

// Resources lists every resource, preloaded or fetched, in request order.
func (p *Preloader) Resources() []*Resource {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Resource(nil), p.issued...)
}

// Wait blocks until every started fetch has finished. The Preloader must not
// be used afterwards.
func (p *Preloader) Wait() error {
	return p.pool.Wait()
}

func (p *Preloader) resource(u *url.URL, req *parser.PreloadRequest) (*Resource, bool) {
	key := u.String()
	p.mu.Lock()
	defer p.mu.Unlock()
	if res, ok := p.resources[key]; ok {
		return res, false
	}
	res := &Resource{URL: u, Request: req, done: make(chan struct{})}
	p.resources[key] = res
	p.issued = append(p.issued, res)
	return res, true
}

func (p *Preloader) start(res *Resource) {
	log := p.log.WithField("url", res.URL.String())
	if res.Request != nil {
		log = log.WithField("type", res.Request.ResourceType)
	}
	log.Trace("fetch started")
	p.pool.Go(func(ctx context.Context) error {
		res.body, res.err = p.fetch(ctx, res.URL)
		close(res.done)
		if res.err != nil {
			log.WithError(res.err).Warn("fetch failed")
		} else {
			log.WithField("bytes", len(res.body)).Debug("fetch finished")
		}
		if p.onPreloaded != nil && res.Request != nil {
			p.onPreloaded(res)
		}
		// One failed resource must not cancel the others.
		return nil
	})
}

// NewFetch fetches http and https URLs with client and reads file URLs from
// fs.
func NewFetch(client *http.Client, fs afero.Fs) FetchFunc {
	return func(ctx context.Context, u *url.URL) ([]byte, error) {
		switch u.Scheme {
		case "file":
			b, err := afero.ReadFile(fs, u.Path)
			return b, errors.Wrapf(err, "reading %s", u)
		case "http", "https":
		default:
			return nil, errors.Errorf("unsupported scheme %q", u.Scheme)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, errors.Wrapf(err, "building request for %s", u)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, errors.Wrapf(err, "fetching %s", u)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, errors.Errorf("fetching %s: %s", u, resp.Status)
		}
		b, err := io.ReadAll(resp.Body)
		return b, errors.Wrapf(err, "reading body of %s", u)
	}
}
