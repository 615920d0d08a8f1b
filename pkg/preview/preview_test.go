package preview

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CTAG07/Liquidize/pkg/document"
	"github.com/CTAG07/Liquidize/pkg/reconcile"
	"github.com/CTAG07/Liquidize/pkg/templating"
)

var errNoDocument = errors.New("no such document")

// memSource is an in-memory Source keyed by document name.
type memSource struct {
	mu   sync.Mutex
	docs map[string]string
}

func (s *memSource) Metadata(_ context.Context, name string) (map[string]any, string, error) {
	s.mu.Lock()
	content, ok := s.docs[name]
	s.mu.Unlock()
	if !ok {
		return nil, "", errNoDocument
	}
	return document.ParseFrontmatter(content)
}

func (s *memSource) set(name, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[name] = content
}

const greeting = "---\ntitle: Hi\nname: World\n---\n# {{ title }}\n\nHello **{{ name }}**\n"

// setupTestManager creates a Manager over a memSource holding one document
// named "greeting". The returned clock drives the manager's notion of now.
func setupTestManager(tb testing.TB, config Config) (*Manager, *memSource, *time.Time) {
	tb.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tm, err := templating.NewTemplateManager(logger, nil)
	if err != nil {
		tb.Fatalf("NewTemplateManager failed: %v", err)
	}
	src := &memSource{docs: map[string]string{"greeting": greeting}}
	m := NewManager(src, tm, config, logger)
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	return m, src, &clock
}

func TestSessionRender(t *testing.T) {
	m, _, _ := setupTestManager(t, DefaultConfig())
	ctx := context.Background()

	s, err := m.Open(ctx, "greeting")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	first, err := s.Render(ctx, nil)
	if err != nil {
		t.Fatalf("first Render failed: %v", err)
	}
	if len(first.Mutations) == 0 {
		t.Fatal("expected the first render to insert content")
	}
	for _, mu := range first.Mutations {
		if mu.Op != reconcile.OpInsert {
			t.Errorf("expected only inserts on the first render, got %+v", mu)
		}
	}
	for _, want := range []string{
		`<div class="markdown-preview-section">`,
		`<h1 class="liquidized">Hi</h1>`,
		`<strong class="liquidized">World</strong>`,
	} {
		if !strings.Contains(first.HTML, want) {
			t.Errorf("render output is missing %q:\n%s", want, first.HTML)
		}
	}

	again, err := s.Render(ctx, nil)
	if err != nil {
		t.Fatalf("second Render failed: %v", err)
	}
	if again.Mutations == nil || len(again.Mutations) != 0 {
		t.Errorf("expected an empty mutation list for an unchanged render, got %#v", again.Mutations)
	}
	if again.HTML != first.HTML {
		t.Errorf("unchanged render changed the tree:\n%s\n%s", first.HTML, again.HTML)
	}

	changed, err := s.Render(ctx, map[string]any{"name": "Gopher"})
	if err != nil {
		t.Fatalf("Render with overrides failed: %v", err)
	}
	if len(changed.Mutations) != 1 || changed.Mutations[0].Op != reconcile.OpText {
		t.Fatalf("expected a single text mutation, got %+v", changed.Mutations)
	}
	if mu := changed.Mutations[0]; mu.Value != "Gopher" || mu.OldValue != "World" {
		t.Errorf("unexpected text mutation %+v", mu)
	}
	if s.Renders() != 3 {
		t.Errorf("expected 3 renders, got %d", s.Renders())
	}
}

func TestSessionOverlay(t *testing.T) {
	m, _, _ := setupTestManager(t, DefaultConfig())
	ctx := context.Background()

	s, err := m.Open(ctx, "greeting")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err = s.Render(ctx, nil); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if err = s.Overlay(`<aside class="toolbar">edit</aside>`); err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}

	res, err := s.Render(ctx, map[string]any{"title": "Bye"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(res.HTML, `<aside class="toolbar">edit</aside>`) {
		t.Errorf("overlay did not survive the render:\n%s", res.HTML)
	}
	if !strings.Contains(res.HTML, `<h1 class="liquidized">Bye</h1>`) {
		t.Errorf("render did not update the heading:\n%s", res.HTML)
	}
	for _, mu := range res.Mutations {
		if mu.Tag == "aside" {
			t.Errorf("overlay was touched: %+v", mu)
		}
	}

	md, err := s.Markdown()
	if err != nil {
		t.Fatalf("Markdown failed: %v", err)
	}
	if !strings.Contains(md, "# Bye") || !strings.Contains(md, "**World**") {
		t.Errorf("unexpected markdown:\n%s", md)
	}
	if strings.Contains(md, "edit") {
		t.Errorf("markdown contains the overlay:\n%s", md)
	}
}

func TestSessionRenderErrorLeavesTree(t *testing.T) {
	m, src, _ := setupTestManager(t, DefaultConfig())
	ctx := context.Background()

	s, err := m.Open(ctx, "greeting")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err = s.Render(ctx, nil); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	before, _ := s.HTML()

	src.set("greeting", "{% if name %}unclosed")
	if _, err = s.Render(ctx, nil); err == nil {
		t.Fatal("expected a render error for an invalid template")
	}
	after, _ := s.HTML()
	if before != after {
		t.Errorf("failed render modified the tree:\n%s\n%s", before, after)
	}
}

func TestManagerSessions(t *testing.T) {
	ctx := context.Background()

	t.Run("Unknown document", func(t *testing.T) {
		m, _, _ := setupTestManager(t, DefaultConfig())
		if _, err := m.Open(ctx, "missing"); !errors.Is(err, errNoDocument) {
			t.Errorf("expected errNoDocument, got %v", err)
		}
	})

	t.Run("Get and Close", func(t *testing.T) {
		m, _, _ := setupTestManager(t, DefaultConfig())
		s, err := m.Open(ctx, "greeting")
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		got, err := m.Get(s.ID)
		if err != nil || got != s {
			t.Fatalf("Get(%q) = %v, %v", s.ID, got, err)
		}
		if err = m.Close(s.ID); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if _, err = m.Get(s.ID); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound after Close, got %v", err)
		}
		if err = m.Close(s.ID); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound for a second Close, got %v", err)
		}
	})

	t.Run("Prune", func(t *testing.T) {
		m, _, clock := setupTestManager(t, Config{SessionTTL: time.Minute})
		old, _ := m.Open(ctx, "greeting")
		*clock = clock.Add(45 * time.Second)
		fresh, _ := m.Open(ctx, "greeting")

		if n := m.Prune(clock.Add(30 * time.Second)); n != 1 {
			t.Fatalf("expected 1 pruned session, got %d", n)
		}
		if _, err := m.Get(old.ID); !errors.Is(err, ErrSessionNotFound) {
			t.Error("expected the idle session to be pruned")
		}
		if _, err := m.Get(fresh.ID); err != nil {
			t.Errorf("expected the recent session to survive, got %v", err)
		}
	})

	t.Run("MaxSessions", func(t *testing.T) {
		m, _, clock := setupTestManager(t, Config{SessionTTL: time.Minute, MaxSessions: 2})
		for range 2 {
			if _, err := m.Open(ctx, "greeting"); err != nil {
				t.Fatalf("Open failed: %v", err)
			}
		}
		if _, err := m.Open(ctx, "greeting"); !errors.Is(err, ErrTooManySessions) {
			t.Fatalf("expected ErrTooManySessions, got %v", err)
		}

		*clock = clock.Add(2 * time.Minute)
		if _, err := m.Open(ctx, "greeting"); err != nil {
			t.Fatalf("expected Open to prune idle sessions, got %v", err)
		}
		if m.Len() != 1 {
			t.Errorf("expected 1 open session, got %d", m.Len())
		}
	})
}

func TestSessionConcurrentRender(t *testing.T) {
	m, _, _ := setupTestManager(t, DefaultConfig())
	ctx := context.Background()
	s, err := m.Open(ctx, "greeting")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := "odd"
			if i%2 == 0 {
				name = "even"
			}
			if _, err := s.Render(ctx, map[string]any{"name": name}); err != nil {
				t.Errorf("Render failed: %v", err)
			}
		}()
	}
	wg.Wait()

	out, _ := s.HTML()
	if strings.Count(out, "<h1") != 1 {
		t.Errorf("expected a single heading after concurrent renders:\n%s", out)
	}
}
