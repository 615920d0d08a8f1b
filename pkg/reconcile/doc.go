/*
Package reconcile merges a freshly rendered HTML tree into a live tree in place,
touching only the parts of the live tree that the renderer owns.

Ownership is an explicit mark on each element, by default the "liquidized"
class. The live root passed by the caller may always have its children
reconciled; below it, an element is updated only when it carries the mark, and
an element is inserted or removed only when it carries the mark. Text and
comment nodes have no identity of their own and follow their parent. Anything
the host injected into the region without the mark survives every
reconciliation unchanged, even when the rendered output disagrees with it.

The walk is a keyed morph: children are paired positionally, elements with a
key attribute are matched by key, compatible pairs are updated, unmatched live
nodes are discarded and unmatched replacement nodes appended, each step gated
by the ownership predicate. Subtrees that are already equal are skipped, which
makes a second reconciliation with the same input a no-op.
*/
package reconcile
