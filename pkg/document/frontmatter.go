package document

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMalformedFrontmatter is returned when a document opens a frontmatter
// block that is never closed or does not hold a YAML mapping.
var ErrMalformedFrontmatter = errors.New("malformed frontmatter")

const delimiter = "---"

// splitFrontmatter separates the YAML block from the body. ok is false when
// the content has no frontmatter at all.
func splitFrontmatter(content string) (front, body string, ok bool, err error) {
	var rest string
	switch {
	case strings.HasPrefix(content, delimiter+"\n"):
		rest = content[len(delimiter)+1:]
	case strings.HasPrefix(content, delimiter+"\r\n"):
		rest = content[len(delimiter)+2:]
	default:
		return "", content, false, nil
	}

	pos := 0
	for {
		end := strings.IndexByte(rest[pos:], '\n')
		line, next := rest[pos:], len(rest)
		if end >= 0 {
			line, next = rest[pos:pos+end], pos+end+1
		}
		if strings.TrimRight(line, "\r") == delimiter {
			return rest[:pos], rest[next:], true, nil
		}
		if end < 0 {
			return "", "", false, fmt.Errorf("%w: missing closing delimiter", ErrMalformedFrontmatter)
		}
		pos = next
	}
}

// ParseFrontmatter splits content into its metadata and body. Content
// without frontmatter yields an empty map and the whole content as body.
func ParseFrontmatter(content string) (map[string]any, string, error) {
	front, body, ok, err := splitFrontmatter(content)
	if err != nil {
		return nil, "", err
	}
	meta := map[string]any{}
	if !ok || strings.TrimSpace(front) == "" {
		return meta, body, nil
	}
	if err = yaml.Unmarshal([]byte(front), &meta); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformedFrontmatter, err)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return meta, body, nil
}

// SetFrontmatterValue sets key to value in the frontmatter of content and
// returns the new content. Other keys, their order and their comments are
// kept. A frontmatter block is created when content has none.
func SetFrontmatterValue(content, key string, value any) (string, error) {
	front, body, ok, err := splitFrontmatter(content)
	if err != nil {
		return "", err
	}
	if !ok {
		body = content
	}

	var doc yaml.Node
	if strings.TrimSpace(front) != "" {
		if err = yaml.Unmarshal([]byte(front), &doc); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedFrontmatter, err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	mapping := doc.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return "", fmt.Errorf("%w: frontmatter is not a mapping", ErrMalformedFrontmatter)
	}

	var valueNode yaml.Node
	if err = valueNode.Encode(value); err != nil {
		return "", fmt.Errorf("failed to encode value for %q: %w", key, err)
	}

	replaced := false
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			valueNode.LineComment = mapping.Content[i+1].LineComment
			mapping.Content[i+1] = &valueNode
			replaced = true
			break
		}
	}
	if !replaced {
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			&valueNode,
		)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err = enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	if err = enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode frontmatter: %w", err)
	}

	return delimiter + "\n" + buf.String() + delimiter + "\n" + body, nil
}
