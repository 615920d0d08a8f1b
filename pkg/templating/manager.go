package templating

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/CTAG07/Liquidize/pkg/reconcile"
	"github.com/microcosm-cc/bluemonday"
	"github.com/osteele/liquid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"
)

var (
	// ErrSourceTooLarge is returned when a template source exceeds MaxSourceBytes.
	ErrSourceTooLarge = errors.New("template source exceeds the configured limit")
	// ErrOutputTooLarge is returned when rendered output exceeds MaxOutputBytes.
	ErrOutputTooLarge = errors.New("rendered output exceeds the configured limit")
	// ErrTemplate wraps every parse and render error reported by the engine.
	ErrTemplate = errors.New("template error")
)

// TemplateManager is the central controller for the templating engine.
// It owns the Liquid engine, the Markdown renderer and the sanitising policy,
// and caches parsed templates by content hash.
// All methods are concurrent-safe.
type TemplateManager struct {
	logger   *slog.Logger
	config   *TemplateConfig
	engine   *liquid.Engine
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
	cache    map[[sha256.Size]byte]*liquid.Template
	mu       sync.RWMutex
}

// NewTemplateManager creates, initializes, and returns a new TemplateManager.
// A nil config means DefaultConfig. It performs an initial Refresh so an
// invalid configuration is reported here.
func NewTemplateManager(logger *slog.Logger, config *TemplateConfig) (*TemplateManager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	tm := &TemplateManager{
		logger: logger,
		config: config,
	}
	if err := tm.Refresh(); err != nil {
		return nil, err
	}

	logger.Info("Template manager initialized", "markdown", config.Markdown, "sanitize", config.Sanitize)
	return tm, nil
}

// SetConfig swaps the configuration. It takes effect on the next Refresh,
// which the caller is expected to run (and roll back on failure).
func (tm *TemplateManager) SetConfig(config *TemplateConfig) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.config = config
}

// GetConfig returns a copy of the current configuration.
func (tm *TemplateManager) GetConfig() TemplateConfig {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return *tm.config
}

// MarkClass returns the class added to rendered elements.
func (tm *TemplateManager) MarkClass() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.config.MarkClass
}

// Refresh validates the configuration, rebuilds the engine, renderer and
// policy, and clears the template cache.
func (tm *TemplateManager) Refresh() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.config == nil {
		return errors.New("invalid template configuration: missing")
	}
	if err := tm.config.Validate(); err != nil {
		tm.logger.Error("Rejected template configuration", "error", err)
		return fmt.Errorf("invalid template configuration: %w", err)
	}

	engine := liquid.NewEngine()
	registerFilters(engine)

	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Globally()

	tm.engine = engine
	tm.policy = policy
	tm.markdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		// Raw HTML is passed through and cleaned by the policy when Sanitize is on.
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)
	tm.cache = make(map[[sha256.Size]byte]*liquid.Template)

	tm.logger.Debug("Template engine refreshed", "cache_size", tm.config.CacheSize)
	return nil
}

// Check parses source without rendering it.
func (tm *TemplateManager) Check(source string) error {
	_, err := tm.parse(source)
	return err
}

func (tm *TemplateManager) parse(source string) (*liquid.Template, error) {
	tm.mu.RLock()
	engine, limit, cacheSize := tm.engine, tm.config.MaxSourceBytes, tm.config.CacheSize
	tm.mu.RUnlock()

	if limit > 0 && len(source) > limit {
		return nil, ErrSourceTooLarge
	}

	sum := sha256.Sum256([]byte(source))
	if cacheSize > 0 {
		tm.mu.RLock()
		tpl, ok := tm.cache[sum]
		tm.mu.RUnlock()
		if ok {
			return tpl, nil
		}
	}

	tpl, srcErr := engine.ParseString(source)
	if srcErr != nil {
		return nil, fmt.Errorf("%w: failed to parse template: %w", ErrTemplate, srcErr)
	}

	if cacheSize > 0 {
		tm.mu.Lock()
		// A Refresh may have happened meanwhile; only cache for the current engine.
		if tm.engine == engine {
			if len(tm.cache) >= cacheSize {
				tm.cache = make(map[[sha256.Size]byte]*liquid.Template)
			}
			tm.cache[sum] = tpl
		}
		tm.mu.Unlock()
	}
	return tpl, nil
}

func (tm *TemplateManager) checkOutput(n int) error {
	tm.mu.RLock()
	limit := tm.config.MaxOutputBytes
	tm.mu.RUnlock()
	if limit > 0 && n > limit {
		return ErrOutputTooLarge
	}
	return nil
}

// RenderString renders source with bindings and returns the Liquid output.
func (tm *TemplateManager) RenderString(source string, bindings map[string]any) (string, error) {
	tpl, err := tm.parse(source)
	if err != nil {
		return "", err
	}
	out, srcErr := tpl.Render(bindings)
	if srcErr != nil {
		return "", fmt.Errorf("%w: failed to render template: %w", ErrTemplate, srcErr)
	}
	if err = tm.checkOutput(len(out)); err != nil {
		return "", err
	}
	return string(out), nil
}

// Render renders source with bindings, writing the Liquid output to w.
func (tm *TemplateManager) Render(w io.Writer, source string, bindings map[string]any) error {
	out, err := tm.RenderString(source, bindings)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// RenderHTML renders source and turns the result into HTML: Markdown is
// converted when enabled and the markup is sanitised when enabled.
func (tm *TemplateManager) RenderHTML(source string, bindings map[string]any) (string, error) {
	out, err := tm.RenderString(source, bindings)
	if err != nil {
		return "", err
	}

	tm.mu.RLock()
	md, policy, cfg := tm.markdown, tm.policy, *tm.config
	tm.mu.RUnlock()

	if cfg.Markdown {
		var buf bytes.Buffer
		if err = md.Convert([]byte(out), &buf); err != nil {
			return "", fmt.Errorf("failed to convert markdown: %w", err)
		}
		out = buf.String()
	}
	if cfg.Sanitize {
		out = policy.Sanitize(out)
	}
	if err = tm.checkOutput(len(out)); err != nil {
		return "", err
	}
	return out, nil
}

// RenderNode renders source to HTML and parses it as the content of a node
// shaped like container. Every element of the result carries the mark class,
// so it can be reconciled into a live tree.
func (tm *TemplateManager) RenderNode(source string, bindings map[string]any, container *html.Node) (*html.Node, error) {
	markup, err := tm.RenderHTML(source, bindings)
	if err != nil {
		return nil, err
	}
	node, err := reconcile.ParseFragment(markup, container)
	if err != nil {
		return nil, err
	}
	reconcile.MarkChildren(node, tm.MarkClass())
	return node, nil
}
