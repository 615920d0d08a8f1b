package preview

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/CTAG07/Liquidize/pkg/reconcile"
	"golang.org/x/net/html"
)

// Result is the outcome of one render.
type Result struct {
	// HTML is the whole live root after reconciliation, host overlays included.
	HTML string `json:"html"`
	// Mutations lists the changes applied to the live root, in order.
	Mutations []reconcile.Mutation `json:"mutations"`
}

// Session is the live preview of one document. Its root is the host
// container: rendered content is reconciled into it, and host overlays added
// to it survive every later render.
type Session struct {
	ID       string    `json:"id"`
	Document string    `json:"document"`
	Created  time.Time `json:"created"`

	manager  *Manager
	mu       sync.Mutex
	root     *html.Node
	lastUsed time.Time
	renders  int
}

// Render loads the document, merges overrides over its frontmatter values and
// reconciles the rendered output into the live root. Load and render errors
// are returned before the live root is touched.
func (s *Session) Render(ctx context.Context, overrides map[string]any) (Result, error) {
	m := s.manager
	meta, body, err := m.source.Metadata(ctx, s.Document)
	if err != nil {
		return Result{}, err
	}
	bindings := make(map[string]any, len(meta)+len(overrides))
	maps.Copy(bindings, meta)
	maps.Copy(bindings, overrides)

	s.mu.Lock()
	defer s.mu.Unlock()

	replacement, err := m.renderer.RenderNode(body, bindings, s.root)
	if err != nil {
		return Result{}, fmt.Errorf("failed to render %q: %w", s.Document, err)
	}

	res := Result{Mutations: []reconcile.Mutation{}}
	r := &reconcile.Reconciler{
		Marked:     reconcile.HasClass(m.renderer.MarkClass()),
		OnMutation: func(mu reconcile.Mutation) { res.Mutations = append(res.Mutations, mu) },
	}
	r.Reconcile(s.root, replacement)

	if res.HTML, err = outerHTML(s.root); err != nil {
		return Result{}, err
	}
	s.lastUsed = m.now()
	s.renders++

	m.logger.Debug("Rendered preview", "session", s.ID, "document", s.Document, "mutations", len(res.Mutations))
	return res, nil
}

// Overlay appends host-owned markup to the live root. The nodes are not
// marked, so renders never modify or remove the elements among them.
func (s *Session) Overlay(markup string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	frag, err := reconcile.ParseFragment(markup, s.root)
	if err != nil {
		return err
	}
	for c := frag.FirstChild; c != nil; c = frag.FirstChild {
		frag.RemoveChild(c)
		s.root.AppendChild(c)
	}
	s.lastUsed = s.manager.now()
	return nil
}

// HTML serialises the live root.
func (s *Session) HTML() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return outerHTML(s.root)
}

// Markdown converts the rendered part of the live root back to Markdown.
// Host overlays are left out.
func (s *Session) Markdown() (string, error) {
	s.mu.Lock()
	owned := reconcile.Owned(s.root, reconcile.HasClass(s.manager.renderer.MarkClass()))
	s.mu.Unlock()

	markup, err := reconcile.Render(owned)
	if err != nil {
		return "", err
	}
	md, err := s.manager.converter.ConvertString(markup)
	if err != nil {
		return "", fmt.Errorf("failed to convert preview to markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}

// Renders returns how many times the session was rendered.
func (s *Session) Renders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renders
}

// LastUsed returns the time of the last render or overlay.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func outerHTML(n *html.Node) (string, error) {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return "", fmt.Errorf("failed to serialise preview: %w", err)
	}
	return sb.String(), nil
}
