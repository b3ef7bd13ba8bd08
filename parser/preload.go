package parser

import (
	"fmt"
	"net/url"
)

type ResourceType uint

const (
	ResourceScript ResourceType = iota
	ResourceCSSStyleSheet
	ResourceImage
	ResourceFont
	ResourceFetch
	ResourcePreconnect
)

func (r ResourceType) String() string {
	switch r {
	case ResourceScript:
		return "script"
	case ResourceCSSStyleSheet:
		return "stylesheet"
	case ResourceImage:
		return "image"
	case ResourceFont:
		return "font"
	case ResourceFetch:
		return "fetch"
	case ResourcePreconnect:
		return "preconnect"
	}
	return "unknown"
}

type ResourcePriority uint

const (
	PriorityVeryLow ResourcePriority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
	PriorityVeryHigh
)

func (p ResourcePriority) String() string {
	switch p {
	case PriorityVeryLow:
		return "very-low"
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityVeryHigh:
		return "very-high"
	}
	return "unknown"
}

// PreloadRequest is a speculative fetch discovered ahead of the parser.
type PreloadRequest struct {
	URL           *url.URL
	ResourceType  ResourceType
	Priority      ResourcePriority
	InitiatorName string
	CrossOrigin   string
	IsModule      bool
	IsAsync       bool
	IsDefer       bool
}

func (r *PreloadRequest) String() string {
	return fmt.Sprintf("%s %s (%s, %s)", r.ResourceType, r.URL, r.InitiatorName, r.Priority)
}

type MetaCHType uint

const (
	MetaAcceptCH MetaCHType = iota
	MetaDelegateCH
)

// MetaCHValue is a client hints directive found in a <meta> tag.
type MetaCHValue struct {
	Type           MetaCHType
	Value          string
	IsDocPreloader bool
}

// PendingPreloadData is the result of one scan.
type PendingPreloadData struct {
	Requests      []*PreloadRequest
	MetaCH        []MetaCHValue
	Viewport      *string
	HasCSPMetaTag bool
}

func (d *PendingPreloadData) empty() bool {
	return len(d.Requests) == 0 && len(d.MetaCH) == 0 && d.Viewport == nil && !d.HasCSPMetaTag
}
