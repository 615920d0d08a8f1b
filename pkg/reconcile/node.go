package reconcile

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Equal reports whether two trees are structurally identical: same node
// types, tags, namespaces, attribute sets and, recursively, children.
// Attribute order is not significant.
func Equal(a, b *html.Node) bool {
	if !sameNode(a, b) {
		return false
	}
	return childrenEqual(a, b)
}

func childrenEqual(a, b *html.Node) bool {
	ca, cb := a.FirstChild, b.FirstChild
	for ca != nil && cb != nil {
		if !Equal(ca, cb) {
			return false
		}
		ca, cb = ca.NextSibling, cb.NextSibling
	}
	return ca == nil && cb == nil
}

func sameNode(a, b *html.Node) bool {
	if a.Type != b.Type || a.Data != b.Data || a.Namespace != b.Namespace {
		return false
	}
	if len(a.Attr) != len(b.Attr) {
		return false
	}
	for _, attr := range a.Attr {
		v, ok := getAttr(b, attr.Namespace, attr.Key)
		if !ok || v != attr.Val {
			return false
		}
	}
	return true
}

func getAttr(n *html.Node, ns, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == ns && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func shallowClone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = make([]html.Attribute, len(n.Attr))
		copy(c.Attr, n.Attr)
	}
	return c
}

// Clone returns a detached deep copy of n.
func Clone(n *html.Node) *html.Node {
	c := shallowClone(n)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(Clone(child))
	}
	return c
}

// ParseFragment parses markup as the content of an element shaped like
// container (same tag and namespace) and returns a new, detached container
// holding the parsed nodes. When container is nil a <div> is used.
func ParseFragment(markup string, container *html.Node) (*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	if container != nil && container.Type == html.ElementNode {
		ctx = shallowClone(container)
		ctx.Attr = nil
		ctx.DataAtom = atom.Lookup([]byte(ctx.Data))
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse replacement markup: %w", err)
	}
	for _, n := range nodes {
		ctx.AppendChild(n)
	}
	return ctx, nil
}

// Render serialises the children of n.
func Render(n *html.Node) (string, error) {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&sb, c); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

// path returns an XPath-like location of n, for mutation records.
func path(n *html.Node) string {
	var parts []string
	for ; n != nil && n.Parent != nil; n = n.Parent {
		name := n.Data
		switch n.Type {
		case html.TextNode:
			name = "text()"
		case html.CommentNode:
			name = "comment()"
		}
		idx := 1
		for s := n.PrevSibling; s != nil; s = s.PrevSibling {
			if s.Type == n.Type && (n.Type != html.ElementNode || s.Data == n.Data) {
				idx++
			}
		}
		parts = append(parts, fmt.Sprintf("%s[%d]", name, idx))
	}
	var sb strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		sb.WriteByte('/')
		sb.WriteString(parts[i])
	}
	if sb.Len() == 0 {
		return "/"
	}
	return sb.String()
}
