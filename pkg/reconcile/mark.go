package reconcile

import (
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// DefaultMarkClass is the class that marks rendered, reconcilable elements.
const DefaultMarkClass = "liquidized"

// Predicate reports whether an element is owned by the rendered region.
type Predicate func(*html.Node) bool

// HasClass returns a Predicate matching elements whose class list contains class.
func HasClass(class string) Predicate {
	return func(n *html.Node) bool {
		if n == nil || n.Type != html.ElementNode {
			return false
		}
		return slices.Contains(classes(n), class)
	}
}

func classes(n *html.Node) []string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == "class" {
			return strings.Fields(a.Val)
		}
	}
	return nil
}

// Mark adds class to every element in the subtree rooted at n, n included.
func Mark(n *html.Node, class string) {
	if n.Type == html.ElementNode {
		addClass(n, class)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Mark(c, class)
	}
}

// MarkChildren marks every element below n but leaves n itself alone.
func MarkChildren(n *html.Node, class string) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Mark(c, class)
	}
}

func addClass(n *html.Node, class string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == "class" {
			list := strings.Fields(a.Val)
			if slices.Contains(list, class) {
				return
			}
			n.Attr[i].Val = strings.Join(append(list, class), " ")
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: "class", Val: class})
}

// Owned returns a deep copy of root that keeps only the content the predicate
// owns: unmarked elements below root are dropped along with their subtrees.
func Owned(root *html.Node, marked Predicate) *html.Node {
	out := shallowClone(root)
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && !marked(c) {
			continue
		}
		out.AppendChild(Owned(c, marked))
	}
	return out
}
