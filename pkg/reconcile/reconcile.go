package reconcile

import (
	"bytes"

	"golang.org/x/net/html"
)

// Op is the type of change applied to the live tree.
type Op string

const (
	OpInsert  Op = "insert"   // node appended (HTML holds the serialised subtree)
	OpRemove  Op = "remove"   // node discarded
	OpText    Op = "text"     // text or comment data replaced
	OpAttr    Op = "attr"     // attribute added or changed
	OpAttrDel Op = "attr_del" // attribute removed
	OpMove    Op = "move"     // keyed element moved to a new position
)

// Mutation records a single change made to the live tree.
type Mutation struct {
	Op       Op     `json:"op"`
	Path     string `json:"path"`
	Tag      string `json:"tag,omitempty"`
	Name     string `json:"name,omitempty"`      // attribute name for attr/attr_del
	Value    string `json:"value,omitempty"`     // new value
	OldValue string `json:"old_value,omitempty"` // previous value
	HTML     string `json:"html,omitempty"`      // serialised subtree for insert
}

// Reconciler walks a live tree and a replacement tree in lock-step.
// The zero value is usable: it marks with DefaultMarkClass and keys on "id".
// A Reconciler holds no state between calls and may be shared, but a given
// live tree must not be mutated by anything else during a call.
type Reconciler struct {
	// Marked reports whether a node is owned by the rendered region.
	Marked Predicate
	// KeyAttr names the attribute giving elements a stable identity.
	KeyAttr string
	// OnMutation, when set, receives every change as it is applied.
	OnMutation func(Mutation)
}

var defaultReconciler = &Reconciler{}

// Reconcile updates live to match replacement using the default Reconciler.
func Reconcile(live, replacement *html.Node) {
	defaultReconciler.Reconcile(live, replacement)
}

// ReconcileMarkup parses markup and reconciles it into live using the default
// Reconciler.
func ReconcileMarkup(live *html.Node, markup string) error {
	return defaultReconciler.ReconcileMarkup(live, markup)
}

// ReconcileMarkup parses markup as the content of live and reconciles it.
// A parse failure is returned before live is touched.
func (r *Reconciler) ReconcileMarkup(live *html.Node, markup string) error {
	replacement, err := ParseFragment(markup, live)
	if err != nil {
		return err
	}
	r.Reconcile(live, replacement)
	return nil
}

// Reconcile makes the reconcilable parts of live equal to replacement.
// The children of live are always reconciled; its own attributes belong to
// the host and are left as they are. replacement is never modified.
func (r *Reconciler) Reconcile(live, replacement *html.Node) {
	if live == nil || replacement == nil {
		return
	}
	if childrenEqual(live, replacement) {
		return
	}
	w := walker{Reconciler: r, marked: r.Marked, key: r.KeyAttr}
	if w.marked == nil {
		w.marked = HasClass(DefaultMarkClass)
	}
	if w.key == "" {
		w.key = "id"
	}
	w.morphChildren(live, replacement)
}

// walker carries the resolved settings of one Reconcile call.
type walker struct {
	*Reconciler
	marked Predicate
	key    string
}

// canUpdate is the update gate for elements below the root.
func (w *walker) canUpdate(n *html.Node) bool {
	return n.Type != html.ElementNode || w.marked(n)
}

// canAddOrDiscard is the gate for inserting and removing nodes: anything
// without attribute identity, or a marked element.
func (w *walker) canAddOrDiscard(n *html.Node) bool {
	return n.Type != html.ElementNode || w.marked(n)
}

func (w *walker) nodeKey(n *html.Node) string {
	if n.Type != html.ElementNode {
		return ""
	}
	v, _ := getAttr(n, "", w.key)
	return v
}

func (w *walker) emit(m Mutation) {
	if w.OnMutation != nil {
		w.OnMutation(m)
	}
}

// morphElement updates an eligible live element in place.
func (w *walker) morphElement(from, to *html.Node) {
	if Equal(from, to) {
		return
	}
	if !w.canUpdate(from) {
		return
	}
	w.morphAttrs(from, to)
	w.morphChildren(from, to)
}

func (w *walker) morphAttrs(from, to *html.Node) {
	for _, a := range to.Attr {
		old, ok := getAttr(from, a.Namespace, a.Key)
		if ok && old == a.Val {
			continue
		}
		setAttr(from, a)
		if w.OnMutation != nil {
			w.emit(Mutation{Op: OpAttr, Path: path(from), Tag: from.Data, Name: a.Key, Value: a.Val, OldValue: old})
		}
	}
	kept := from.Attr[:0]
	for _, a := range from.Attr {
		if _, ok := getAttr(to, a.Namespace, a.Key); ok {
			kept = append(kept, a)
			continue
		}
		if w.OnMutation != nil {
			w.emit(Mutation{Op: OpAttrDel, Path: path(from), Tag: from.Data, Name: a.Key, OldValue: a.Val})
		}
	}
	from.Attr = kept
}

func setAttr(n *html.Node, attr html.Attribute) {
	for i, a := range n.Attr {
		if a.Namespace == attr.Namespace && a.Key == attr.Key {
			n.Attr[i].Val = attr.Val
			return
		}
	}
	n.Attr = append(n.Attr, attr)
}

// morphChildren pairs the children of from and to. from has already passed
// the update gate.
func (w *walker) morphChildren(from, to *html.Node) {
	keyed := map[string]*html.Node{}
	for c := from.FirstChild; c != nil; c = c.NextSibling {
		if k := w.nodeKey(c); k != "" {
			keyed[k] = c
		}
	}
	matched := map[*html.Node]bool{}

	cur := from.FirstChild
outer:
	for toChild := to.FirstChild; toChild != nil; toChild = toChild.NextSibling {
		toKey := w.nodeKey(toChild)
		for cur != nil {
			next := cur.NextSibling
			curKey := w.nodeKey(cur)
			compatible := false

			if cur.Type == toChild.Type {
				switch cur.Type {
				case html.ElementNode:
					if toKey != "" && toKey != curKey {
						if m, ok := keyed[toKey]; ok && !matched[m] && m != next && w.canAddOrDiscard(m) {
							from.InsertBefore(detach(m), cur)
							if w.OnMutation != nil {
								w.emit(Mutation{Op: OpMove, Path: path(m), Tag: m.Data})
							}
							next, cur, curKey = cur, m, toKey
						}
					}
					compatible = toKey == curKey && cur.Data == toChild.Data && cur.Namespace == toChild.Namespace
					// A rendered element never pairs with host scaffolding.
					if compatible && w.marked(toChild) && !w.marked(cur) {
						compatible = false
					}
					if compatible {
						w.morphElement(cur, toChild)
					}
				case html.TextNode, html.CommentNode:
					compatible = true
					if cur.Data != toChild.Data {
						old := cur.Data
						cur.Data = toChild.Data
						if w.OnMutation != nil {
							w.emit(Mutation{Op: OpText, Path: path(cur), Value: cur.Data, OldValue: old})
						}
					}
				default:
					compatible = Equal(cur, toChild)
				}
			}

			if compatible {
				matched[cur] = true
				cur = next
				continue outer
			}
			// Keyed live nodes may still be claimed later; they are cleaned
			// up once every replacement child has been placed.
			if curKey == "" {
				w.discard(from, cur)
			}
			cur = next
		}
		w.insert(from, toChild)
	}

	for cur != nil {
		next := cur.NextSibling
		if w.nodeKey(cur) == "" {
			w.discard(from, cur)
		}
		cur = next
	}
	for _, n := range keyed {
		if !matched[n] && n.Parent == from {
			w.discard(from, n)
		}
	}
}

func detach(n *html.Node) *html.Node {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
	return n
}

// discard removes n from parent when the discard gate allows it.
func (w *walker) discard(parent, n *html.Node) {
	if !w.canAddOrDiscard(n) {
		return
	}
	var p string
	if w.OnMutation != nil {
		p = path(n)
	}
	parent.RemoveChild(n)
	if w.OnMutation != nil {
		w.emit(Mutation{Op: OpRemove, Path: p, Tag: tagOf(n)})
	}
}

// insert appends a copy of n to parent when the add gate allows it.
func (w *walker) insert(parent, n *html.Node) {
	if !w.canAddOrDiscard(n) {
		return
	}
	c := Clone(n)
	parent.AppendChild(c)
	if w.OnMutation != nil {
		var buf bytes.Buffer
		_ = html.Render(&buf, c)
		w.emit(Mutation{Op: OpInsert, Path: path(c), Tag: tagOf(c), HTML: buf.String()})
	}
}

func tagOf(n *html.Node) string {
	if n.Type == html.ElementNode {
		return n.Data
	}
	return ""
}
