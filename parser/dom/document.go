package dom

import "net/url"

type ReadyState string

const (
	Loading     ReadyState = "loading"
	Interactive ReadyState = "interactive"
	Complete    ReadyState = "complete"
)

// HTMLDocument is the document a parser builds into, plus the frame facts the
// parser consults when it decides how to schedule and preload.
type HTMLDocument struct {
	*Node

	Location        *url.URL
	ReadyState      ReadyState
	Head, Body      *Node
	PrefetchOnly    bool
	InitialEmpty    bool
	CreatedByScript bool
	Detached        bool
	SubFrame        bool

	// OnReadyStateChange and OnStopParsing are optional observers.
	OnReadyStateChange func(ReadyState)
	OnStopParsing      func()
}

// NewHTMLDocument returns an empty main-frame document in the loading state.
func NewHTMLDocument(location *url.URL) *HTMLDocument {
	d := &HTMLDocument{
		Node:       &Node{NodeType: DocumentNode, NodeName: "#document"},
		Location:   location,
		ReadyState: Loading,
	}
	d.Node.OwnerDocument = d.Node
	return d
}

func (d *HTMLDocument) URL() *url.URL { return d.Location }

func (d *HTMLDocument) HasBody() bool { return d.Body != nil }

func (d *HTMLDocument) SetReadyState(s ReadyState) {
	if d.ReadyState == s {
		return
	}
	d.ReadyState = s
	if d.OnReadyStateChange != nil {
		d.OnReadyStateChange(s)
	}
}

func (d *HTMLDocument) IsPrefetchOnly() bool         { return d.PrefetchOnly }
func (d *HTMLDocument) IsInitialEmptyDocument() bool { return d.InitialEmpty }
func (d *HTMLDocument) IsInOutermostMainFrame() bool { return !d.SubFrame && !d.Detached }
func (d *HTMLDocument) HasFrame() bool               { return !d.Detached }
func (d *HTMLDocument) WasCreatedByScript() bool     { return d.CreatedByScript }

func (d *HTMLDocument) OnPrepareToStopParsing() {
	if d.OnStopParsing != nil {
		d.OnStopParsing()
	}
}
