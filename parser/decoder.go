package parser

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// sniffLength is how many bytes are buffered before the encoding is decided
// when neither a byte order mark nor the content type settles it.
const sniffLength = 1024

// Decoder turns network bytes into text for the parser.
type Decoder struct {
	contentType string
	pending     []byte
	dec         transform.Transformer
	name        string
	certain     bool
}

func NewDecoder(contentType string) *Decoder {
	return &Decoder{contentType: contentType}
}

// Encoding is the name of the chosen encoding, or "" before it is known.
func (d *Decoder) Encoding() string { return d.name }

// Decode returns as much text as b completes. Bytes of a split character are
// carried into the next call.
func (d *Decoder) Decode(b []byte) (string, error) {
	d.pending = append(d.pending, b...)
	if d.dec == nil {
		if len(d.pending) < sniffLength {
			if _, _, certain := charset.DetermineEncoding(d.pending, d.contentType); !certain {
				return "", nil
			}
		}
		d.init()
	}
	return d.decode(false)
}

// Flush decodes whatever is left at the end of the input.
func (d *Decoder) Flush() (string, error) {
	if d.dec == nil {
		if len(d.pending) == 0 {
			return "", nil
		}
		d.init()
	}
	return d.decode(true)
}

func (d *Decoder) init() {
	e, name, certain := charset.DetermineEncoding(d.pending, d.contentType)
	d.dec = unicode.BOMOverride(e.NewDecoder())
	d.name = name
	d.certain = certain
}

func (d *Decoder) decode(atEOF bool) (string, error) {
	var sb strings.Builder
	dst := make([]byte, 4096)
	for {
		nDst, nSrc, err := d.dec.Transform(dst, d.pending, atEOF)
		sb.Write(dst[:nDst])
		d.pending = d.pending[nSrc:]
		switch err {
		case nil:
			return sb.String(), nil
		case transform.ErrShortDst:
			continue
		case transform.ErrShortSrc:
			if !atEOF {
				return sb.String(), nil
			}
			return sb.String(), errors.Wrapf(err, "truncated %s input", d.name)
		default:
			return sb.String(), errors.Wrapf(err, "decoding %s", d.name)
		}
	}
}

func (p *HTMLDocumentParser) SetDecoder(d *Decoder) { p.decoder = d }

// AppendBytes decodes network bytes and appends the text. The first call
// creates a decoder if none was set. A detached parser refuses the bytes with
// ErrDetached and a stopped one drops them. Text decoded before a decode
// error is still appended.
func (p *HTMLDocumentParser) AppendBytes(b []byte) error {
	if p.IsDetached() {
		return ErrDetached
	}
	if p.IsStopped() {
		return nil
	}
	if p.decoder == nil {
		p.decoder = NewDecoder("")
	}
	text, err := p.decoder.Decode(b)
	if text != "" {
		p.Append(text)
	}
	return err
}

// Flush appends text still held by the decoder.
func (p *HTMLDocumentParser) Flush() {
	if p.decoder == nil || p.IsDetached() {
		return
	}
	text, err := p.decoder.Flush()
	if err != nil {
		p.log.WithError(err).Warn("decode failed")
	}
	if text != "" {
		p.Append(text)
	}
}
