package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session IDs.
	ErrSessionNotFound = errors.New("preview session not found")
	// ErrTooManySessions is returned by Open when MaxSessions live sessions exist.
	ErrTooManySessions = errors.New("too many preview sessions")
)

// Source loads the metadata and template body of a document.
type Source interface {
	Metadata(ctx context.Context, name string) (map[string]any, string, error)
}

// Renderer renders a template into a marked node tree shaped like container.
type Renderer interface {
	RenderNode(source string, bindings map[string]any, container *html.Node) (*html.Node, error)
	MarkClass() string
}

// Config holds the settings of a Manager.
type Config struct {
	// RootClass is the class of the host container each session renders into.
	RootClass string
	// SessionTTL is how long an unused session survives Prune. Zero keeps
	// sessions until they are closed.
	SessionTTL time.Duration
	// MaxSessions caps the number of open sessions. Zero means no cap.
	MaxSessions int
}

// DefaultConfig returns the Config used when none is given.
func DefaultConfig() Config {
	return Config{
		RootClass:   "markdown-preview-section",
		SessionTTL:  30 * time.Minute,
		MaxSessions: 64,
	}
}

// Manager owns the live preview sessions. All methods are concurrent-safe.
type Manager struct {
	source    Source
	renderer  Renderer
	config    Config
	logger    *slog.Logger
	converter *converter.Converter
	sessions  map[string]*Session
	mu        sync.RWMutex
	now       func() time.Time
}

// NewManager creates a Manager. A nil logger discards all logs.
func NewManager(source Source, renderer Renderer, config Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		source:   source,
		renderer: renderer,
		config:   config,
		logger:   logger,
		converter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// SetConfig replaces the configuration. Existing sessions keep their root.
func (m *Manager) SetConfig(config Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config
}

// Open starts a session for a document. The document must exist; it is not
// rendered until the first call to Session.Render.
func (m *Manager) Open(ctx context.Context, document string) (*Session, error) {
	if _, _, err := m.source.Metadata(ctx, document); err != nil {
		return nil, err
	}

	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.MaxSessions > 0 && len(m.sessions) >= m.config.MaxSessions {
		m.pruneLocked(now)
		if len(m.sessions) >= m.config.MaxSessions {
			return nil, ErrTooManySessions
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	if m.config.RootClass != "" {
		root.Attr = []html.Attribute{{Key: "class", Val: m.config.RootClass}}
	}
	s := &Session{
		ID:       id.String(),
		Document: document,
		Created:  now,
		manager:  m,
		root:     root,
		lastUsed: now,
	}
	m.sessions[s.ID] = s

	m.logger.Info("Opened preview session", "session", s.ID, "document", document)
	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close ends a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	m.logger.Info("Closed preview session", "session", id)
	return nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Prune closes every session unused for longer than SessionTTL as of now and
// returns how many were closed.
func (m *Manager) Prune(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneLocked(now)
}

func (m *Manager) pruneLocked(now time.Time) int {
	if m.config.SessionTTL <= 0 {
		return 0
	}
	pruned := 0
	for id, s := range m.sessions {
		if now.Sub(s.LastUsed()) > m.config.SessionTTL {
			delete(m.sessions, id)
			pruned++
		}
	}
	if pruned > 0 {
		m.logger.Info("Pruned preview sessions", "count", pruned)
	}
	return pruned
}

// Run prunes expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			m.Prune(t)
		}
	}
}
