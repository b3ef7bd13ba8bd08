package dom

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialize(t *testing.T) {
	doc := NewHTMLDocument(nil)
	html := doc.AppendChild(NewElement(doc.Node, "html", nil))
	html.AppendChild(NewElement(doc.Node, "head", nil))
	body := html.AppendChild(NewElement(doc.Node, "body", map[string]string{"id": "x", "class": "y"}))
	body.AppendText("a")
	body.AppendText("b")
	body.AppendChild(NewComment(doc.Node, "c"))

	exp := "#document\n" +
		"| <html>\n" +
		"|   <head>\n" +
		"|   <body>\n" +
		"|     class=\"y\"\n" +
		"|     id=\"x\"\n" +
		"|     \"ab\"\n" +
		"|     <!-- c -->"
	assert.Equal(t, exp, doc.String())
	assert.Equal(t, "ab", doc.TextContent())
}

func TestRemoveChild(t *testing.T) {
	root := NewDocumentFragment()
	a := root.AppendChild(NewElement(nil, "a", nil))
	b := root.AppendChild(NewElement(nil, "b", nil))
	c := root.AppendChild(NewElement(nil, "c", nil))

	require.Equal(t, b, root.RemoveChild(b))
	assert.Equal(t, []*Node{a, c}, root.ChildNodes)
	assert.Equal(t, c, a.NextSibling)
	assert.Equal(t, a, c.PreviousSibling)
	assert.Nil(t, b.ParentNode)
	assert.Nil(t, root.RemoveChild(b))

	root.RemoveChild(a)
	assert.Equal(t, c, root.FirstChild)
	assert.Equal(t, c, root.LastChild)
}

func TestDocumentReadyState(t *testing.T) {
	u, err := url.Parse("https://example.com/")
	require.NoError(t, err)
	doc := NewHTMLDocument(u)
	var seen []ReadyState
	doc.OnReadyStateChange = func(s ReadyState) { seen = append(seen, s) }

	doc.SetReadyState(Interactive)
	doc.SetReadyState(Interactive)
	doc.SetReadyState(Complete)

	assert.Equal(t, []ReadyState{Interactive, Complete}, seen)
	assert.Equal(t, u, doc.URL())
	assert.False(t, doc.HasBody())
	assert.True(t, doc.IsInOutermostMainFrame())
}

func TestHTMLSerialization(t *testing.T) {
	doc := NewHTMLDocument(nil)
	doc.AppendChild(NewDocTypeNode("html", "", ""))
	html := doc.AppendChild(NewElement(doc.Node, "html", map[string]string{"lang": "en"}))
	head := html.AppendChild(NewElement(doc.Node, "head", nil))
	head.AppendChild(NewElement(doc.Node, "meta", map[string]string{"charset": "utf-8"}))
	script := head.AppendChild(NewElement(doc.Node, "script", nil))
	script.AppendText("a < b && c")
	body := html.AppendChild(NewElement(doc.Node, "body", nil))
	p := body.AppendChild(NewElement(doc.Node, "p", map[string]string{"title": `say "hi"`, "class": "x"}))
	p.AppendText("1 < 2 & 3\u00a0")
	body.AppendChild(NewElement(doc.Node, "br", nil))
	body.AppendChild(NewComment(doc.Node, " done "))

	tests := []struct {
		name string
		got  string
		want string
	}{
		{
			name: "document",
			got:  doc.OuterHTML(),
			want: `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><script>a < b && c</script></head>` +
				`<body><p class="x" title="say &quot;hi&quot;">1 &lt; 2 &amp; 3&nbsp;</p><br><!-- done --></body></html>`,
		},
		{
			name: "inner",
			got:  p.InnerHTML(),
			want: `1 &lt; 2 &amp; 3&nbsp;`,
		},
		{
			name: "void element",
			got:  body.ChildNodes[1].InnerHTML(),
			want: ``,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}
