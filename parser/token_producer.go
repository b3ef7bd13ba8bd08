package parser

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
)

// consumed text is released once this many runes sit before the cursor
const discardThreshold = 4096

// TokenProducer hands out tokens one at a time, either by tokenizing the
// shared input on demand or by draining batches produced ahead of time on a
// background goroutine.
type TokenProducer struct {
	input     *InputStream
	tokenizer *HTMLTokenizer
	token     *Token
	consumed  checkpoint
	eofMarked bool
	bg        *backgroundTokenizer
	log       logrus.FieldLogger
}

type chunkMessage struct {
	text      string
	eof       bool
	plaintext bool
}

// backgroundTokenizer owns a private input stream and tokenizer on its own
// goroutine. Chunks go in through inbox and one batch per chunk comes back
// through outbox; both are unbounded so neither side blocks the other.
type backgroundTokenizer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	inbox   []chunkMessage
	outbox  [][]Token
	stopped bool

	// owned by the consuming goroutine
	pending int
	queue   []Token

	wg   conc.WaitGroup
	once sync.Once
}

func startBackgroundTokenizer(initial tokenizerState, scriptingEnabled bool) *backgroundTokenizer {
	b := &backgroundTokenizer{}
	b.cond = sync.NewCond(&b.mu)
	b.wg.Go(func() {
		in := NewInputStream()
		z := NewHTMLTokenizer(in, scriptingEnabled)
		z.SetState(initial)
		for {
			b.mu.Lock()
			for len(b.inbox) == 0 && !b.stopped {
				b.cond.Wait()
			}
			if b.stopped {
				b.mu.Unlock()
				return
			}
			msg := b.inbox[0]
			b.inbox = b.inbox[1:]
			b.mu.Unlock()

			switch {
			case msg.plaintext:
				z.ForcePlaintext()
			case msg.eof:
				_ = in.MarkEndOfFile()
			default:
				in.Append(msg.text)
			}
			var batch []Token
			for tok := z.NextToken(); tok != nil; tok = z.NextToken() {
				batch = append(batch, *tok)
			}
			in.DiscardBefore(in.Offset())

			b.mu.Lock()
			b.outbox = append(b.outbox, batch)
			b.cond.Broadcast()
			b.mu.Unlock()
		}
	})
	return b
}

func (b *backgroundTokenizer) send(msg chunkMessage) {
	b.pending++
	b.mu.Lock()
	b.inbox = append(b.inbox, msg)
	b.cond.Broadcast()
	b.mu.Unlock()
}

// receive blocks until the oldest outstanding chunk has been tokenized.
func (b *backgroundTokenizer) receive() []Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.outbox) == 0 {
		b.cond.Wait()
	}
	batch := b.outbox[0]
	b.outbox = b.outbox[1:]
	b.pending--
	return batch
}

func (b *backgroundTokenizer) close() {
	b.once.Do(func() {
		b.mu.Lock()
		b.stopped = true
		b.cond.Broadcast()
		b.mu.Unlock()
		b.wg.Wait()
	})
}

// NewTokenProducer tokenizes input starting in the initial state. With
// background set, appended chunks are tokenized ahead on a goroutine until a
// document.write forces tokenizing back onto the caller.
func NewTokenProducer(input *InputStream, initial tokenizerState, scriptingEnabled, background bool, log logrus.FieldLogger) *TokenProducer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	z := NewHTMLTokenizer(input, scriptingEnabled)
	z.SetState(initial)
	p := &TokenProducer{
		input:     input,
		tokenizer: z,
		consumed:  z.position(),
		log:       log.WithField("component", "tokens"),
	}
	if background {
		p.bg = startBackgroundTokenizer(initial, scriptingEnabled)
	}
	return p
}

// IsBackground reports whether tokens currently come from the background
// goroutine.
func (p *TokenProducer) IsBackground() bool {
	return p.bg != nil
}

// AppendToEnd tells the producer that text was appended to the shared input.
func (p *TokenProducer) AppendToEnd(text string) {
	if p.bg != nil && text != "" {
		p.bg.send(chunkMessage{text: text})
	}
}

// MarkEndOfFile may be called once.
func (p *TokenProducer) MarkEndOfFile() error {
	if p.eofMarked {
		return ErrEndOfFileAlreadyMarked
	}
	p.eofMarked = true
	if p.bg != nil {
		p.bg.send(chunkMessage{eof: true})
	}
	return nil
}

func (p *TokenProducer) ForcePlaintext() {
	p.tokenizer.ForcePlaintext()
	if p.consumed.offset == p.input.Offset() {
		p.consumed.state = plaintextState
	}
	if p.bg != nil {
		p.bg.send(chunkMessage{plaintext: true})
	}
}

// ParseNextToken returns the next token, or nil when no further input is
// currently available. The token stays valid until ClearToken.
func (p *TokenProducer) ParseNextToken() *Token {
	if p.bg == nil {
		p.token = p.tokenizer.NextToken()
		if p.token != nil {
			p.consumed = p.token.resume
			p.release()
		}
		return p.token
	}

	b := p.bg
	for len(b.queue) == 0 && b.pending > 0 {
		b.queue = append(b.queue, b.receive()...)
	}
	if len(b.queue) == 0 {
		return nil
	}
	tok := b.queue[0]
	b.queue = b.queue[1:]
	p.consumed = tok.resume
	p.input.Seek(tok.resume.offset)
	p.release()
	p.token = &tok
	return p.token
}

func (p *TokenProducer) release() {
	if p.consumed.offset-discardThreshold > 0 {
		p.input.DiscardBefore(p.consumed.offset - discardThreshold)
	}
}

// ClearToken drops the current token.
func (p *TokenProducer) ClearToken() {
	p.token = nil
}

// AbortBackgroundParsingForDocumentWrite stops the background goroutine and
// throws away everything it produced that has not been consumed. Tokenizing
// resumes in the foreground at the last consumed token.
func (p *TokenProducer) AbortBackgroundParsingForDocumentWrite() {
	if p.bg == nil {
		return
	}
	p.bg.close()
	discarded := len(p.bg.queue)
	p.bg = nil
	p.tokenizer.restore(p.consumed)
	p.log.WithFields(logrus.Fields{
		"discarded": discarded,
		"offset":    p.consumed.offset,
	}).Trace("background tokenizing aborted for document.write")
}

// Close stops the background goroutine, if any. Tokens it produced that were
// not yet consumed are dropped.
func (p *TokenProducer) Close() {
	if p.bg != nil {
		p.bg.close()
		p.bg = nil
	}
}
