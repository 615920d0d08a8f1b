package templating

import (
	"fmt"
	"strings"

	"github.com/CTAG07/Liquidize/pkg/reconcile"
)

// TemplateConfig holds all configuration options for the templating engine.
type TemplateConfig struct {
	// MarkClass is the class added to every rendered element so the preview
	// reconciler knows which nodes it owns.
	MarkClass string `json:"mark_class"`

	// Markdown controls whether Liquid output is converted from Markdown to HTML
	// before it is sanitised and marked.
	Markdown bool `json:"markdown"`

	// Sanitize runs rendered HTML through a user-generated-content policy.
	Sanitize bool `json:"sanitize"`

	// MaxSourceBytes rejects template sources larger than this. Zero disables the check.
	MaxSourceBytes int `json:"max_source_bytes"`

	// MaxOutputBytes rejects rendered output larger than this. Zero disables the check.
	MaxOutputBytes int `json:"max_output_bytes"`

	// CacheSize is the number of parsed templates kept in memory. The cache is
	// reset once it is full. Zero disables caching.
	CacheSize int `json:"cache_size"`
}

// DefaultConfig returns a TemplateConfig with safe default values.
func DefaultConfig() *TemplateConfig {
	return &TemplateConfig{
		MarkClass:      reconcile.DefaultMarkClass,
		Markdown:       true,
		Sanitize:       true,
		MaxSourceBytes: 1 << 20, // 1MB
		MaxOutputBytes: 4 << 20, // 4MB
		CacheSize:      256,
	}
}

// Validate reports the first setting that cannot be used.
func (c *TemplateConfig) Validate() error {
	switch {
	case c.MarkClass == "" || strings.ContainsAny(c.MarkClass, " \t\r\n\f"):
		return fmt.Errorf("mark_class must be a single class name, got %q", c.MarkClass)
	case c.MaxSourceBytes < 0:
		return fmt.Errorf("max_source_bytes must not be negative")
	case c.MaxOutputBytes < 0:
		return fmt.Errorf("max_output_bytes must not be negative")
	case c.CacheSize < 0:
		return fmt.Errorf("cache_size must not be negative")
	}
	return nil
}
