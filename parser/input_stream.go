package parser

// InputStream is the parser's buffer of decoded source text. Offsets are
// absolute rune positions from the start of the document and stay valid for
// the lifetime of the stream, except that text inserted at the insertion point
// shifts everything after it.
//
// While an insertion point is open, text after it (the rest of the network
// stream) is hidden from readers; only script-written text before it can be
// consumed.
type InputStream struct {
	buf    []rune
	base   int
	pos    int
	eof    bool
	points []int
}

func NewInputStream() *InputStream {
	return &InputStream{}
}

// Append adds text to the end of the stream, behind any insertion point.
func (s *InputStream) Append(text string) {
	s.buf = append(s.buf, []rune(text)...)
}

// InsertAtCurrentInsertionPoint splices text in at the innermost insertion
// point, or at the read cursor when none is open. Later writes land after
// earlier ones.
func (s *InputStream) InsertAtCurrentInsertionPoint(text string) {
	ins := []rune(text)
	if len(ins) == 0 {
		return
	}
	at := s.pos
	if n := len(s.points); n > 0 {
		at = s.points[n-1]
	}
	i := at - s.base
	buf := make([]rune, 0, len(s.buf)+len(ins))
	buf = append(buf, s.buf[:i]...)
	buf = append(buf, ins...)
	buf = append(buf, s.buf[i:]...)
	s.buf = buf

	for j, p := range s.points {
		if p >= at {
			s.points[j] = p + len(ins)
		}
	}
}

// MarkEndOfFile records that no more text will be appended. It may be called
// once.
func (s *InputStream) MarkEndOfFile() error {
	if s.eof {
		return ErrEndOfFileAlreadyMarked
	}
	s.eof = true
	return nil
}

func (s *InputStream) HaveSeenEndOfFile() bool {
	return s.eof
}

// atEndOfInput is true once readers may treat running out of text as end of
// file: EOF is marked and no insertion point hides further text.
func (s *InputStream) atEndOfInput() bool {
	return s.eof && len(s.points) == 0
}

// OpenInsertionPoint and CloseInsertionPoint bracket script execution that
// may write into the stream. The point starts at the read cursor.
func (s *InputStream) OpenInsertionPoint() {
	s.points = append(s.points, s.pos)
}

func (s *InputStream) CloseInsertionPoint() {
	if n := len(s.points); n > 0 {
		s.points = s.points[:n-1]
	}
}

func (s *InputStream) HasInsertionPoint() bool {
	return len(s.points) > 0
}

// end is the absolute offset readers may not pass.
func (s *InputStream) end() int {
	if n := len(s.points); n > 0 && s.points[n-1] >= s.pos {
		return s.points[n-1]
	}
	return s.base + len(s.buf)
}

// Peek returns the rune at the read cursor.
func (s *InputStream) Peek() (rune, bool) {
	if s.pos >= s.end() {
		return 0, false
	}
	return s.buf[s.pos-s.base], true
}

// PeekN returns up to n runes from the read cursor and whether all n were
// available.
func (s *InputStream) PeekN(n int) (string, bool) {
	i, end := s.pos-s.base, s.end()-s.base
	if i+n > end {
		return string(s.buf[i:end]), false
	}
	return string(s.buf[i : i+n]), true
}

func (s *InputStream) Advance() {
	s.AdvanceN(1)
}

// AdvanceN moves the read cursor forward, never past the insertion point.
func (s *InputStream) AdvanceN(n int) {
	s.pos = min(s.pos+n, s.end())
}

// Offset is the absolute position of the read cursor.
func (s *InputStream) Offset() int {
	return s.pos
}

// Seek moves the read cursor, clamped to the retained part of the stream.
func (s *InputStream) Seek(offset int) {
	switch {
	case offset < s.base:
		offset = s.base
	case offset > s.base+len(s.buf):
		offset = s.base + len(s.buf)
	}
	s.pos = offset
}

// Current returns the text that has not been consumed yet, including text
// hidden behind an insertion point.
func (s *InputStream) Current() string {
	return string(s.buf[s.pos-s.base:])
}

// Len is the number of unconsumed runes that can be read now.
func (s *InputStream) Len() int {
	return s.end() - s.pos
}

// DiscardBefore releases consumed text before offset. The read cursor is never
// passed.
func (s *InputStream) DiscardBefore(offset int) {
	if offset > s.pos {
		offset = s.pos
	}
	n := offset - s.base
	if n <= 0 {
		return
	}
	s.buf = append([]rune(nil), s.buf[n:]...)
	s.base = offset
}
