package reconcile

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// parseElement parses markup in a <body> context and returns its first node.
func parseElement(tb testing.TB, markup string) *html.Node {
	tb.Helper()
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		tb.Fatalf("Failed to parse %q: %v", markup, err)
	}
	if len(nodes) == 0 {
		tb.Fatalf("No nodes parsed from %q", markup)
	}
	return nodes[0]
}

func renderNode(tb testing.TB, n *html.Node) string {
	tb.Helper()
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		tb.Fatalf("Failed to render node: %v", err)
	}
	return sb.String()
}

// recorder returns a Reconciler with default settings that collects mutations.
func recorder() (*Reconciler, *[]Mutation) {
	var muts []Mutation
	return &Reconciler{OnMutation: func(m Mutation) { muts = append(muts, m) }}, &muts
}

func TestReconcileScenario(t *testing.T) {
	live := parseElement(t, `<div class="markdown-preview-section"><p class="liquidized">A</p><p>HOST</p></div>`)
	repl := parseElement(t, `<div><p class="liquidized">B</p><p>HOST-DIFFERENT</p></div>`)

	Reconcile(live, repl)

	want := `<div class="markdown-preview-section"><p class="liquidized">B</p><p>HOST</p></div>`
	if got := renderNode(t, live); got != want {
		t.Errorf("Unexpected live tree after reconcile:\n got: %s\nwant: %s", got, want)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	live := parseElement(t, `<div class="markdown-preview-section"><p class="liquidized">A</p><p>HOST</p></div>`)
	repl := parseElement(t, `<div><p class="liquidized">B</p><p>HOST-DIFFERENT</p></div>`)
	r, muts := recorder()

	r.Reconcile(live, repl)
	want := []Mutation{{Op: OpText, Path: "/p[1]/text()[1]", Value: "B", OldValue: "A"}}
	if diff := cmp.Diff(want, *muts); diff != "" {
		t.Errorf("First reconcile mutations mismatch (-want +got):\n%s", diff)
	}

	*muts = nil
	before := renderNode(t, live)
	r.Reconcile(live, repl)
	if len(*muts) != 0 {
		t.Errorf("Second reconcile produced %d mutations, want 0: %+v", len(*muts), *muts)
	}
	if after := renderNode(t, live); after != before {
		t.Errorf("Second reconcile changed the tree:\nbefore: %s\n after: %s", before, after)
	}
}

func TestReconcileContainment(t *testing.T) {
	hostMarkup := `<nav data-host="1"><button>copy</button><span>42 words</span></nav>`
	live := parseElement(t, `<div><p class="liquidized">A</p>`+hostMarkup+`<p class="liquidized">B</p></div>`)
	repl := parseElement(t, `<div><p class="liquidized">A2</p><nav><i>other</i></nav><p class="liquidized">B2</p></div>`)
	host := live.FirstChild.NextSibling

	Reconcile(live, repl)

	if got := renderNode(t, host); got != hostMarkup {
		t.Errorf("Host subtree changed:\n got: %s\nwant: %s", got, hostMarkup)
	}
	if host.Parent != live {
		t.Error("Host element was detached from the live tree")
	}
	want := `<div><p class="liquidized">A2</p>` + hostMarkup + `<p class="liquidized">B2</p></div>`
	if got := renderNode(t, live); got != want {
		t.Errorf("Unexpected live tree:\n got: %s\nwant: %s", got, want)
	}
}

func TestReconcileSkipsInjectedHostElement(t *testing.T) {
	live := parseElement(t, `<div><p class="liquidized">A</p><button class="host-ctl">x</button><p class="liquidized">B</p></div>`)
	repl := parseElement(t, `<div><p class="liquidized">A2</p><p class="liquidized">B2</p></div>`)

	Reconcile(live, repl)

	want := `<div><p class="liquidized">A2</p><button class="host-ctl">x</button><p class="liquidized">B2</p></div>`
	if got := renderNode(t, live); got != want {
		t.Errorf("Unexpected live tree:\n got: %s\nwant: %s", got, want)
	}
}

func TestReconcileMarkedNeverPairsWithHost(t *testing.T) {
	live := parseElement(t, `<div><p>host</p><p class="liquidized">A</p></div>`)
	repl := parseElement(t, `<div><p class="liquidized">B</p></div>`)

	Reconcile(live, repl)

	want := `<div><p>host</p><p class="liquidized">B</p></div>`
	if got := renderNode(t, live); got != want {
		t.Errorf("Unexpected live tree:\n got: %s\nwant: %s", got, want)
	}
}

func TestReconcileInsertGate(t *testing.T) {
	live := parseElement(t, `<div></div>`)
	repl := parseElement(t, `<div><p class="liquidized">new</p><p>unmarked</p>text</div>`)
	r, muts := recorder()

	r.Reconcile(live, repl)

	want := `<div><p class="liquidized">new</p>text</div>`
	if got := renderNode(t, live); got != want {
		t.Errorf("Unexpected live tree:\n got: %s\nwant: %s", got, want)
	}
	wantMuts := []Mutation{
		{Op: OpInsert, Path: "/p[1]", Tag: "p", HTML: `<p class="liquidized">new</p>`},
		{Op: OpInsert, Path: "/text()[1]", HTML: "text"},
	}
	if diff := cmp.Diff(wantMuts, *muts); diff != "" {
		t.Errorf("Mutations mismatch (-want +got):\n%s", diff)
	}
	if live.FirstChild == repl.FirstChild {
		t.Error("Inserted node is shared with the replacement tree")
	}
}

func TestReconcileDiscardGate(t *testing.T) {
	live := parseElement(t, `<div><p class="liquidized">old</p><aside>host</aside>stray<!--c--></div>`)
	repl := parseElement(t, `<div></div>`)
	r, muts := recorder()

	r.Reconcile(live, repl)

	want := `<div><aside>host</aside></div>`
	if got := renderNode(t, live); got != want {
		t.Errorf("Unexpected live tree:\n got: %s\nwant: %s", got, want)
	}
	wantMuts := []Mutation{
		{Op: OpRemove, Path: "/p[1]", Tag: "p"},
		{Op: OpRemove, Path: "/text()[1]"},
		{Op: OpRemove, Path: "/comment()[1]"},
	}
	if diff := cmp.Diff(wantMuts, *muts); diff != "" {
		t.Errorf("Mutations mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileAttributes(t *testing.T) {
	live := parseElement(t, `<div><a class="liquidized" href="/a" title="t">x</a></div>`)
	repl := parseElement(t, `<div><a class="liquidized" href="/b" rel="nofollow">x</a></div>`)
	r, muts := recorder()

	r.Reconcile(live, repl)

	want := `<div><a class="liquidized" href="/b" rel="nofollow">x</a></div>`
	if got := renderNode(t, live); got != want {
		t.Errorf("Unexpected live tree:\n got: %s\nwant: %s", got, want)
	}
	wantMuts := []Mutation{
		{Op: OpAttr, Path: "/a[1]", Tag: "a", Name: "href", Value: "/b", OldValue: "/a"},
		{Op: OpAttr, Path: "/a[1]", Tag: "a", Name: "rel", Value: "nofollow"},
		{Op: OpAttrDel, Path: "/a[1]", Tag: "a", Name: "title", OldValue: "t"},
	}
	if diff := cmp.Diff(wantMuts, *muts); diff != "" {
		t.Errorf("Mutations mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileRootAttributesAreHostOwned(t *testing.T) {
	live := parseElement(t, `<div class="markdown-preview-section" data-line="3"><p class="liquidized">a</p></div>`)
	repl := parseElement(t, `<div class="other"><p class="liquidized">b</p></div>`)

	Reconcile(live, repl)

	want := `<div class="markdown-preview-section" data-line="3"><p class="liquidized">b</p></div>`
	if got := renderNode(t, live); got != want {
		t.Errorf("Unexpected live tree:\n got: %s\nwant: %s", got, want)
	}
}

func TestReconcileKeyedReorder(t *testing.T) {
	live := parseElement(t, `<ul><li id="a" class="liquidized">A</li><li id="b" class="liquidized">B</li><li id="c" class="liquidized">C</li></ul>`)
	repl := parseElement(t, `<ul><li id="c" class="liquidized">C</li><li id="a" class="liquidized">A</li><li id="b" class="liquidized">B2</li></ul>`)
	nodeC := live.LastChild
	r, muts := recorder()

	r.Reconcile(live, repl)

	want := `<ul><li id="c" class="liquidized">C</li><li id="a" class="liquidized">A</li><li id="b" class="liquidized">B2</li></ul>`
	if got := renderNode(t, live); got != want {
		t.Errorf("Unexpected live tree:\n got: %s\nwant: %s", got, want)
	}
	if live.FirstChild != nodeC {
		t.Error("Keyed element was recreated instead of moved")
	}
	wantMuts := []Mutation{
		{Op: OpMove, Path: "/li[1]", Tag: "li"},
		{Op: OpText, Path: "/li[3]/text()[1]", Value: "B2", OldValue: "B"},
	}
	if diff := cmp.Diff(wantMuts, *muts); diff != "" {
		t.Errorf("Mutation log mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileKeyedHostStays(t *testing.T) {
	live := parseElement(t, `<ul><li id="a" class="liquidized">A</li><li id="h">host</li></ul>`)
	repl := parseElement(t, `<ul><li id="h">host</li><li id="a" class="liquidized">A</li></ul>`)
	host := live.LastChild

	Reconcile(live, repl)

	want := `<ul><li id="h">host</li><li id="a" class="liquidized">A</li></ul>`
	if got := renderNode(t, live); got != want {
		t.Errorf("Unexpected live tree:\n got: %s\nwant: %s", got, want)
	}
	if live.FirstChild != host {
		t.Error("Host keyed element was replaced")
	}
}

func TestReconcileCustomPredicateAndKey(t *testing.T) {
	r := &Reconciler{Marked: HasClass("mine"), KeyAttr: "data-key"}
	live := parseElement(t, `<div><p class="mine" data-key="1">one</p><p class="liquidized">theirs</p><p class="mine" data-key="2">two</p></div>`)
	repl := parseElement(t, `<div><p class="mine" data-key="2">TWO</p></div>`)

	r.Reconcile(live, repl)

	want := `<div><p class="mine" data-key="2">TWO</p><p class="liquidized">theirs</p></div>`
	if got := renderNode(t, live); got != want {
		t.Errorf("Unexpected live tree:\n got: %s\nwant: %s", got, want)
	}
}

func TestReconcileMarkup(t *testing.T) {
	live := parseElement(t, `<div class="markdown-preview-section"><p class="liquidized">A</p></div>`)

	if err := ReconcileMarkup(live, `<h1 class="liquidized">Title</h1><p class="liquidized">Body</p>`); err != nil {
		t.Fatalf("ReconcileMarkup() failed: %v", err)
	}

	want := `<div class="markdown-preview-section"><h1 class="liquidized">Title</h1><p class="liquidized">Body</p></div>`
	if got := renderNode(t, live); got != want {
		t.Errorf("Unexpected live tree:\n got: %s\nwant: %s", got, want)
	}
}

func TestReconcileMarkupTableContext(t *testing.T) {
	live := parseElement(t, `<table><tbody><tr class="liquidized"><td class="liquidized">1</td></tr></tbody></table>`)
	tbody := live.FirstChild

	if err := ReconcileMarkup(tbody, `<tr class="liquidized"><td class="liquidized">2</td></tr>`); err != nil {
		t.Fatalf("ReconcileMarkup() failed: %v", err)
	}

	want := `<table><tbody><tr class="liquidized"><td class="liquidized">2</td></tr></tbody></table>`
	if got := renderNode(t, live); got != want {
		t.Errorf("Unexpected live tree:\n got: %s\nwant: %s", got, want)
	}
}

func TestReconcileNil(t *testing.T) {
	Reconcile(nil, nil)
	live := parseElement(t, `<div>x</div>`)
	Reconcile(live, nil)
	if got := renderNode(t, live); got != `<div>x</div>` {
		t.Errorf("Reconcile with nil replacement changed the tree: %s", got)
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{`<p class="x" id="y">t</p>`, `<p id="y" class="x">t</p>`, true},
		{`<p>t</p>`, `<p>u</p>`, false},
		{`<p>t</p>`, `<div>t</div>`, false},
		{`<p class="x">t</p>`, `<p>t</p>`, false},
		{`<p><b>t</b></p>`, `<p><b>t</b><i></i></p>`, false},
	}
	for _, tt := range tests {
		if got := Equal(parseElement(t, tt.a), parseElement(t, tt.b)); got != tt.want {
			t.Errorf("Equal(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestMarkAndOwned(t *testing.T) {
	rendered := parseElement(t, `<div><p>a <b>b</b></p><ul><li class="liquidized">c</li></ul></div>`)
	MarkChildren(rendered, DefaultMarkClass)

	want := `<div><p class="liquidized">a <b class="liquidized">b</b></p><ul class="liquidized"><li class="liquidized">c</li></ul></div>`
	if got := renderNode(t, rendered); got != want {
		t.Errorf("Unexpected marked tree:\n got: %s\nwant: %s", got, want)
	}

	live := parseElement(t, `<div class="host"><p class="liquidized">a</p><button>host</button>tail</div>`)
	owned := Owned(live, HasClass(DefaultMarkClass))
	wantOwned := `<div class="host"><p class="liquidized">a</p>tail</div>`
	if got := renderNode(t, owned); got != wantOwned {
		t.Errorf("Unexpected owned tree:\n got: %s\nwant: %s", got, wantOwned)
	}
	if live.LastChild.PrevSibling.Data != "button" {
		t.Error("Owned() modified the source tree")
	}
}

func TestRender(t *testing.T) {
	n, err := ParseFragment(`<p>a</p>b`, nil)
	if err != nil {
		t.Fatalf("ParseFragment() failed: %v", err)
	}
	got, err := Render(n)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}
	if got != `<p>a</p>b` {
		t.Errorf("Render() = %q", got)
	}
}
