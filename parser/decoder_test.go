package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderEncodings(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		in          []byte
		out         string
		encoding    string
	}{
		{"utf-8 bom", "", []byte("\xef\xbb\xbf<p>caf\xc3\xa9"), "<p>café", "utf-8"},
		{"utf-16le bom", "", []byte("\xff\xfe<\x00p\x00>\x00"), "<p>", "utf-16le"},
		{"content type", "text/html; charset=iso-8859-1", []byte("caf\xe9"), "café", "windows-1252"},
		{"meta prescan", "", []byte(`<meta charset="windows-1251"><p>` + "\xef\xff"), `<meta charset="windows-1251"><p>пя`, "windows-1251"},
		{"default", "", []byte("plain"), "plain", "windows-1252"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(tt.contentType)
			head, err := d.Decode(tt.in)
			require.NoError(t, err)
			tail, err := d.Flush()
			require.NoError(t, err)
			assert.Equal(t, tt.out, head+tail)
			assert.Equal(t, tt.encoding, d.Encoding())
		})
	}
}

func TestDecoderWaitsForSniffWindow(t *testing.T) {
	d := NewDecoder("")
	out, err := d.Decode([]byte("<p>short"))
	require.NoError(t, err)
	assert.Empty(t, out, "short input without a bom is held back")
	assert.Empty(t, d.Encoding())

	out, err = d.Decode([]byte(strings.Repeat("x", sniffLength)))
	require.NoError(t, err)
	assert.Equal(t, "<p>short"+strings.Repeat("x", sniffLength), out)
}

func TestDecoderCarriesSplitCharacters(t *testing.T) {
	d := NewDecoder("text/html; charset=utf-8")
	a, err := d.Decode([]byte("caf\xc3"))
	require.NoError(t, err)
	b, err := d.Decode([]byte("\xa9!"))
	require.NoError(t, err)
	assert.Equal(t, "caf", a)
	assert.Equal(t, "é!", b)

	_, err = d.Decode([]byte("\xc3"))
	require.NoError(t, err)
	rest, err := d.Flush()
	assert.Equal(t, "�", rest)
	assert.NoError(t, err)
}
