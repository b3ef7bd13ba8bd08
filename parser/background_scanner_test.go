package parser

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackgroundScannerDeliversInOrder(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	b := NewBackgroundScanner(true, func(d *PendingPreloadData) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, requestStrings(d)...)
	}, logrus.New())
	defer b.Stop()

	base := mustURL(t, "https://example.com/")
	b.Scan(`<script src="a.js"></script><img src="b`, base)
	b.Scan(`.png"><p>plain text</p>`, base)
	b.Scan(`<link rel=stylesheet href="c.css">`, base)
	b.Flush()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"script https://example.com/a.js (script, high)",
		"image https://example.com/b.png (img, low)",
		"stylesheet https://example.com/c.css (link, very-high)",
	}, got)
}

func TestBackgroundScannerSkipsEmptyResults(t *testing.T) {
	calls := 0
	b := NewBackgroundScanner(true, func(*PendingPreloadData) { calls++ }, logrus.New())
	b.Scan(`<p>nothing to fetch</p>`, mustURL(t, "https://example.com/"))
	b.Flush()
	b.Stop()
	assert.Equal(t, 0, calls)
}

func TestBackgroundScannerStop(t *testing.T) {
	b := NewBackgroundScanner(true, func(*PendingPreloadData) {}, logrus.New())
	b.Stop()
	b.Stop()
	b.Scan(`<img src="x.png">`, mustURL(t, "https://example.com/"))
	b.Flush()

	b.mu.Lock()
	defer b.mu.Unlock()
	require.True(t, b.stopped)
	assert.Empty(t, b.queue)
}
