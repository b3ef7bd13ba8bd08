package dom

import (
	"sort"
	"strings"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "basefont": true, "bgsound": true, "br": true,
	"col": true, "embed": true, "frame": true, "hr": true, "img": true,
	"input": true, "keygen": true, "link": true, "meta": true, "param": true,
	"source": true, "track": true, "wbr": true,
}

// https://html.spec.whatwg.org/#escapingString
func escapeString(s string, attrVal bool) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "\u00A0", "&nbsp;")
	if attrVal {
		return strings.ReplaceAll(s, "\"", "&quot;")
	}
	s = strings.ReplaceAll(s, "<", "&lt;")
	return strings.ReplaceAll(s, ">", "&gt;")
}

// InnerHTML serializes the children of n.
func (n *Node) InnerHTML() string {
	var sb strings.Builder
	if voidElements[n.NodeName] && n.NodeType == ElementNode {
		return ""
	}
	for _, child := range n.ChildNodes {
		child.writeHTML(&sb)
	}
	return sb.String()
}

// OuterHTML serializes n and its subtree.
func (n *Node) OuterHTML() string {
	var sb strings.Builder
	n.writeHTML(&sb)
	return sb.String()
}

func (n *Node) writeHTML(sb *strings.Builder) {
	switch n.NodeType {
	case ElementNode:
		sb.WriteString("<" + n.NodeName)
		// Attribute order is not significant, but output must be stable.
		keys := make([]string, 0, len(n.Attributes))
		for name := range n.Attributes {
			keys = append(keys, name)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(" " + k + "=\"" + escapeString(n.Attributes[k], true) + "\"")
		}
		sb.WriteString(">")
		if voidElements[n.NodeName] {
			return
		}
		for _, child := range n.ChildNodes {
			child.writeHTML(sb)
		}
		sb.WriteString("</" + n.NodeName + ">")
	case TextNode:
		parent := ""
		if n.ParentNode != nil {
			parent = n.ParentNode.NodeName
		}
		switch parent {
		case "style", "script", "xmp", "iframe", "noembed", "noframes", "plaintext", "noscript":
			sb.WriteString(n.Data)
		default:
			sb.WriteString(escapeString(n.Data, false))
		}
	case CommentNode:
		sb.WriteString("<!--" + n.Data + "-->")
	case DocumentTypeNode:
		sb.WriteString("<!DOCTYPE " + n.NodeName + ">")
	case DocumentNode, DocumentFragmentNode:
		for _, child := range n.ChildNodes {
			child.writeHTML(sb)
		}
	}
}
