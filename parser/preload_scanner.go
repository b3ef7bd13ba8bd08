package parser

import (
	"net/url"
	"strings"

	"github.com/gorilla/css/scanner"
	"golang.org/x/net/html"
)

type ScannerType uint

const (
	// ScannerMainDocument scans the network stream of a document.
	ScannerMainDocument ScannerType = iota
	// ScannerInsertion scans text written by script while the parser is
	// paused.
	ScannerInsertion
)

func (t ScannerType) String() string {
	if t == ScannerInsertion {
		return "insertion"
	}
	return "main-document"
}

// elements whose contents the scanner must not read as markup
var rawTextTags = map[string]bool{
	"iframe":    true,
	"noembed":   true,
	"noframes":  true,
	"noscript":  true,
	"plaintext": true,
	"script":    true,
	"style":     true,
	"textarea":  true,
	"title":     true,
	"xmp":       true,
}

var scriptMIMETypes = map[string]bool{
	"":                       true,
	"text/javascript":        true,
	"application/javascript": true,
	"application/ecmascript": true,
	"text/ecmascript":        true,
	"module":                 true,
}

// PreloadScanner looks ahead of the tree builder for resources worth fetching
// early. It never affects the document; a missed or redundant request only
// costs a fetch.
type PreloadScanner struct {
	scannerType      ScannerType
	scriptingEnabled bool

	pending    string
	contextTag string
	style      strings.Builder
	inBody     bool
	baseURL    *url.URL
	seen       map[string]bool
}

func NewPreloadScanner(t ScannerType, scriptingEnabled bool) *PreloadScanner {
	return &PreloadScanner{
		scannerType:      t,
		scriptingEnabled: scriptingEnabled,
		seen:             make(map[string]bool),
	}
}

func (s *PreloadScanner) Type() ScannerType { return s.scannerType }

// AppendToEnd queues source for the next Scan.
func (s *PreloadScanner) AppendToEnd(text string) {
	s.pending += text
}

// Scan reads as much of the queued source as forms complete tags and returns
// what it found. Relative URLs resolve against the first <base href> seen,
// or documentURL.
func (s *PreloadScanner) Scan(documentURL *url.URL) *PendingPreloadData {
	data := &PendingPreloadData{}
	chunk := s.takeCompleteMarkup()
	if chunk == "" {
		return data
	}

	z := html.NewTokenizerFragment(strings.NewReader(chunk), s.contextTag)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.TextToken:
			if s.contextTag == "style" {
				s.style.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			s.processStartTag(tok, documentURL, data)
			if tt == html.StartTagToken && rawTextTags[tok.Data] {
				s.contextTag = tok.Data
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == s.contextTag {
				if s.contextTag == "style" {
					s.scanCSS(s.style.String(), documentURL, data)
					s.style.Reset()
				}
				s.contextTag = ""
			}
		}
	}
	return data
}

// takeCompleteMarkup cuts the queued source after its last '>' so that no tag
// is tokenized half-read. An unterminated comment is held back whole.
func (s *PreloadScanner) takeCompleteMarkup() string {
	cut := strings.LastIndexByte(s.pending, '>') + 1
	if open := strings.LastIndex(s.pending[:cut], "<!--"); open >= 0 && s.contextTag == "" {
		if !strings.Contains(s.pending[open+4:cut], "-->") {
			cut = open
		}
	}
	chunk := s.pending[:cut]
	s.pending = s.pending[cut:]
	return chunk
}

func attrs(tok html.Token) map[string]string {
	m := make(map[string]string, len(tok.Attr))
	for _, a := range tok.Attr {
		if _, ok := m[a.Key]; !ok {
			m[a.Key] = strings.TrimSpace(a.Val)
		}
	}
	return m
}

func (s *PreloadScanner) processStartTag(tok html.Token, documentURL *url.URL, data *PendingPreloadData) {
	a := attrs(tok)
	switch tok.Data {
	case "base":
		if href, ok := a["href"]; ok && s.baseURL == nil {
			if u := resolve(documentURL, href); u != nil {
				s.baseURL = u
			}
		}
	case "body":
		s.inBody = true
	case "script":
		s.processScript(a, documentURL, data)
	case "link":
		s.processLink(a, documentURL, data)
	case "img":
		if a["loading"] == "lazy" {
			return
		}
		src := a["src"]
		if srcset, ok := a["srcset"]; ok && srcset != "" {
			src = firstSrcsetCandidate(srcset)
		}
		s.request(documentURL, data, src, "img", ResourceImage, PriorityLow, func(r *PreloadRequest) {
			r.CrossOrigin = a["crossorigin"]
		})
	case "video":
		s.request(documentURL, data, a["poster"], "video", ResourceImage, PriorityLow, nil)
	case "input":
		if strings.EqualFold(a["type"], "image") {
			s.request(documentURL, data, a["src"], "input", ResourceImage, PriorityLow, nil)
		}
	case "meta":
		s.processMeta(a, data)
	}
}

func (s *PreloadScanner) processScript(a map[string]string, documentURL *url.URL, data *PendingPreloadData) {
	if !s.scriptingEnabled {
		return
	}
	src, ok := a["src"]
	if !ok {
		return
	}
	typ := strings.ToLower(a["type"])
	if !scriptMIMETypes[typ] {
		return
	}
	module := typ == "module"
	if _, nomodule := a["nomodule"]; nomodule && !module {
		return
	}
	_, async := a["async"]
	_, deferred := a["defer"]

	priority := PriorityHigh
	if async || deferred {
		priority = PriorityLow
	}
	s.request(documentURL, data, src, "script", ResourceScript, priority, func(r *PreloadRequest) {
		r.IsModule = module
		r.IsAsync = async
		r.IsDefer = deferred || module
		r.CrossOrigin = a["crossorigin"]
		if module && r.CrossOrigin == "" {
			r.CrossOrigin = "anonymous"
		}
	})
}

func (s *PreloadScanner) processLink(a map[string]string, documentURL *url.URL, data *PendingPreloadData) {
	rels := map[string]bool{}
	for _, rel := range strings.Fields(strings.ToLower(a["rel"])) {
		rels[rel] = true
	}
	href := a["href"]
	crossOrigin := func(r *PreloadRequest) { r.CrossOrigin = a["crossorigin"] }

	switch {
	case rels["stylesheet"] && !rels["alternate"]:
		s.request(documentURL, data, href, "link", ResourceCSSStyleSheet, PriorityVeryHigh, crossOrigin)
	case rels["preload"]:
		switch strings.ToLower(a["as"]) {
		case "script":
			s.request(documentURL, data, href, "link", ResourceScript, PriorityHigh, crossOrigin)
		case "style":
			s.request(documentURL, data, href, "link", ResourceCSSStyleSheet, PriorityVeryHigh, crossOrigin)
		case "font":
			s.request(documentURL, data, href, "link", ResourceFont, PriorityHigh, func(r *PreloadRequest) {
				// fonts are always fetched in CORS mode
				r.CrossOrigin = "anonymous"
			})
		case "image":
			s.request(documentURL, data, href, "link", ResourceImage, PriorityLow, crossOrigin)
		case "fetch":
			s.request(documentURL, data, href, "link", ResourceFetch, PriorityHigh, crossOrigin)
		}
	case rels["modulepreload"]:
		s.request(documentURL, data, href, "link", ResourceScript, PriorityHigh, func(r *PreloadRequest) {
			r.IsModule = true
			r.CrossOrigin = a["crossorigin"]
			if r.CrossOrigin == "" {
				r.CrossOrigin = "anonymous"
			}
		})
	case rels["preconnect"] || rels["dns-prefetch"]:
		s.request(documentURL, data, href, "link", ResourcePreconnect, PriorityVeryLow, func(r *PreloadRequest) {
			r.URL = &url.URL{Scheme: r.URL.Scheme, Host: r.URL.Host}
			r.CrossOrigin = a["crossorigin"]
		})
	}
}

// processMeta records the directives that must be known before preloads are
// sent. They only count while still in the head.
func (s *PreloadScanner) processMeta(a map[string]string, data *PendingPreloadData) {
	if s.inBody {
		return
	}
	content, hasContent := a["content"]
	if strings.EqualFold(a["name"], "viewport") && hasContent {
		v := content
		data.Viewport = &v
		return
	}
	switch strings.ToLower(a["http-equiv"]) {
	case "content-security-policy":
		data.HasCSPMetaTag = true
	case "accept-ch":
		if hasContent {
			data.MetaCH = append(data.MetaCH, MetaCHValue{Type: MetaAcceptCH, Value: content, IsDocPreloader: true})
		}
	case "delegate-ch":
		if hasContent {
			data.MetaCH = append(data.MetaCH, MetaCHValue{Type: MetaDelegateCH, Value: content, IsDocPreloader: true})
		}
	}
}

// scanCSS finds @import rules at the start of a style sheet. Scanning stops at
// the first token that cannot precede an @import.
func (s *PreloadScanner) scanCSS(css string, documentURL *url.URL, data *PendingPreloadData) {
	var inImport, inCharset, found bool
	sc := scanner.New(css)
	for {
		tok := sc.Next()
		switch {
		case tok.Type == scanner.TokenEOF || tok.Type == scanner.TokenError:
			return
		case tok.Type == scanner.TokenS || tok.Type == scanner.TokenComment ||
			tok.Type == scanner.TokenCDO || tok.Type == scanner.TokenCDC:
		case tok.Type == scanner.TokenChar && tok.Value == ";":
			inImport, inCharset, found = false, false, false
		case inImport:
			if found {
				// media queries and layer names after the URL
				continue
			}
			if tok.Type == scanner.TokenURI || tok.Type == scanner.TokenString {
				s.request(documentURL, data, cssURL(tok), "css", ResourceCSSStyleSheet, PriorityVeryHigh, nil)
				found = true
				continue
			}
			return
		case inCharset:
		case tok.Type == scanner.TokenAtKeyword && strings.EqualFold(tok.Value, "@import"):
			inImport = true
		case tok.Type == scanner.TokenAtKeyword && strings.EqualFold(tok.Value, "@charset"):
			inCharset = true
		default:
			return
		}
	}
}

func cssURL(tok *scanner.Token) string {
	v := tok.Value
	if tok.Type == scanner.TokenURI {
		v = strings.TrimSpace(v[len("url(") : len(v)-1])
	}
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		v = v[1 : len(v)-1]
	}
	return v
}

// resolve returns ref as an absolute URL, or nil.
func resolve(base *url.URL, ref string) *url.URL {
	var (
		u   *url.URL
		err error
	)
	if base != nil {
		u, err = base.Parse(ref)
	} else {
		u, err = url.Parse(ref)
	}
	if err != nil || !u.IsAbs() {
		return nil
	}
	return u
}

func firstSrcsetCandidate(srcset string) string {
	first := strings.TrimSpace(strings.SplitN(srcset, ",", 2)[0])
	if f := strings.Fields(first); len(f) > 0 {
		return f[0]
	}
	return ""
}

// request resolves ref and appends a request unless it is unusable or already
// seen by this scanner.
func (s *PreloadScanner) request(documentURL *url.URL, data *PendingPreloadData, ref, initiator string, rt ResourceType, priority ResourcePriority, decorate func(*PreloadRequest)) {
	if ref == "" {
		return
	}
	base := documentURL
	if s.baseURL != nil {
		base = s.baseURL
	}
	u := resolve(base, ref)
	if u == nil {
		return
	}
	switch u.Scheme {
	case "http", "https", "file":
	default:
		return
	}
	u.Fragment = ""

	r := &PreloadRequest{URL: u, ResourceType: rt, Priority: priority, InitiatorName: initiator}
	if decorate != nil {
		decorate(r)
	}
	key := r.ResourceType.String() + " " + r.URL.String()
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	data.Requests = append(data.Requests, r)
}
