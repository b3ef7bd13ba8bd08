package dom

import (
	"sort"
	"strings"
)

type NodeType uint16

const (
	ElementNode NodeType = iota + 1
	TextNode
	CommentNode
	DocumentNode
	DocumentTypeNode
	DocumentFragmentNode
)

// Node is the single node shape used for every node type. Only the fields
// relevant to NodeType are populated.
type Node struct {
	NodeType                                                        NodeType
	NodeName                                                        string
	Attributes                                                      map[string]string
	Data                                                            string
	PublicID, SystemID                                              string
	OwnerDocument                                                   *Node
	ParentNode, FirstChild, LastChild, PreviousSibling, NextSibling *Node
	ChildNodes                                                      []*Node
}

// NewElement returns an element node. The attribute map is copied.
func NewElement(od *Node, name string, attrs map[string]string) *Node {
	n := &Node{
		NodeType:      ElementNode,
		NodeName:      name,
		OwnerDocument: od,
		Attributes:    make(map[string]string, len(attrs)),
	}
	for k, v := range attrs {
		n.Attributes[k] = v
	}
	return n
}

func NewTextNode(od *Node, text string) *Node {
	return &Node{
		NodeType:      TextNode,
		OwnerDocument: od,
		Data:          text,
	}
}

// NewComment returns a comment node with its Data section filled.
func NewComment(od *Node, data string) *Node {
	return &Node{
		NodeType:      CommentNode,
		OwnerDocument: od,
		Data:          data,
	}
}

func NewDocTypeNode(name, pub, sys string) *Node {
	return &Node{
		NodeType: DocumentTypeNode,
		NodeName: name,
		PublicID: pub,
		SystemID: sys,
	}
}

func NewDocumentFragment() *Node {
	return &Node{NodeType: DocumentFragmentNode, NodeName: "#document-fragment"}
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	if n.Attributes == nil {
		return "", false
	}
	v, ok := n.Attributes[name]
	return v, ok
}

func (n *Node) HasChildNodes() bool {
	return len(n.ChildNodes) > 0
}

// AppendChild links on as the last child of n and returns it.
func (n *Node) AppendChild(on *Node) *Node {
	if n.LastChild != nil {
		on.PreviousSibling = n.LastChild
		n.LastChild.NextSibling = on
	} else {
		n.FirstChild = on
	}
	on.ParentNode = n
	n.LastChild = on
	n.ChildNodes = append(n.ChildNodes, on)
	return on
}

// AppendText adds text to the end of n, merging it into a trailing text node
// when there is one.
func (n *Node) AppendText(text string) {
	if text == "" {
		return
	}
	if n.LastChild != nil && n.LastChild.NodeType == TextNode {
		n.LastChild.Data += text
		return
	}
	n.AppendChild(NewTextNode(n.OwnerDocument, text))
}

func (n *Node) RemoveChild(child *Node) *Node {
	idx := -1
	for i, c := range n.ChildNodes {
		if c == child {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	n.ChildNodes = append(n.ChildNodes[:idx], n.ChildNodes[idx+1:]...)
	if child.PreviousSibling != nil {
		child.PreviousSibling.NextSibling = child.NextSibling
	}
	if child.NextSibling != nil {
		child.NextSibling.PreviousSibling = child.PreviousSibling
	}
	if n.FirstChild == child {
		n.FirstChild = child.NextSibling
	}
	if n.LastChild == child {
		n.LastChild = child.PreviousSibling
	}
	child.ParentNode, child.PreviousSibling, child.NextSibling = nil, nil, nil
	return child
}

// TextContent concatenates the data of every descendant text node.
func (n *Node) TextContent() string {
	var sb strings.Builder
	var walk func(*Node)
	walk = func(c *Node) {
		if c.NodeType == TextNode {
			sb.WriteString(c.Data)
		}
		for _, cc := range c.ChildNodes {
			walk(cc)
		}
	}
	walk(n)
	return sb.String()
}

func serializeNodeType(node *Node, ident int) string {
	switch node.NodeType {
	case ElementNode:
		e := "<" + node.NodeName + ">"
		if len(node.Attributes) == 0 {
			return e
		}
		keys := make([]string, 0, len(node.Attributes))
		for name := range node.Attributes {
			keys = append(keys, name)
		}
		sort.Strings(keys)
		spaces := "| "
		for i := 1; i < ident; i++ {
			spaces += "  "
		}
		for _, name := range keys {
			e += "\n" + spaces + name + "=\"" + node.Attributes[name] + "\""
		}
		return e
	case TextNode:
		return "\"" + node.Data + "\""
	case CommentNode:
		return "<!-- " + node.Data + " -->"
	case DocumentTypeNode:
		d := "<!DOCTYPE " + node.NodeName
		if node.PublicID == "" && node.SystemID == "" {
			return d + ">"
		}
		return d + " \"" + node.PublicID + "\" \"" + node.SystemID + "\">"
	case DocumentNode:
		return "#document"
	case DocumentFragmentNode:
		return "#document-fragment"
	default:
		return ""
	}
}

func (node *Node) serialize(ident int) string {
	ser := serializeNodeType(node, ident+1) + "\n"
	if node.NodeType != DocumentNode && node.NodeType != DocumentFragmentNode {
		spaces := "| "
		for i := 1; i < ident; i++ {
			spaces += "  "
		}
		ser = spaces + ser
	}
	for _, child := range node.ChildNodes {
		ser += child.serialize(ident + 1)
	}

	return ser
}

// String dumps the subtree in the html5lib tree-construction test format.
func (node *Node) String() string {
	return strings.TrimRight(node.serialize(0), "\n")
}
