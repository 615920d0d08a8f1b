package templating

import (
	"regexp"
	"strings"
)

var (
	markupPattern = regexp.MustCompile(`(?s)\{\{-?(.*?)-?\}\}|\{%-?(.*?)-?%\}`)
	exprToken     = regexp.MustCompile(`'[^']*'|"[^"]*"|[A-Za-z_][\w-]*\??|\d+(?:\.\d+)?|\.\.|\S`)
	forHeader     = regexp.MustCompile(`^([\w-]+)\s+in\s+(.*)$`)
	assignHeader  = regexp.MustCompile(`^([\w-]+)\s*=\s*(.*)$`)
	withClause    = regexp.MustCompile(`\bwith\s+([A-Za-z_][\w-]*)`)
)

// Words that can appear in expression position but never name a variable.
var exprKeywords = map[string]bool{
	"and": true, "or": true, "contains": true, "in": true, "reversed": true,
	"true": true, "false": true, "nil": true, "null": true, "empty": true, "blank": true,
}

// Variables that Liquid provides inside loops.
var loopObjects = map[string]bool{"forloop": true, "tablerowloop": true}

// Variables returns the root names of every variable the template reads that
// it does not bind itself, in order of first occurrence. Names bound by for,
// tablerow, assign, capture, increment and decrement are excluded, as is the
// content of raw and comment blocks.
func Variables(source string) []string {
	s := &varScanner{
		seen:  map[string]bool{},
		bound: map[string]int{},
	}
	for _, m := range markupPattern.FindAllStringSubmatch(source, -1) {
		if strings.HasPrefix(m[0], "{{") {
			if s.skip == "" {
				s.value(m[1])
			}
			continue
		}
		s.tag(strings.TrimSpace(m[2]))
	}
	return s.out
}

type varScanner struct {
	seen  map[string]bool
	bound map[string]int
	loops []string
	out   []string

	// skip names the closing tag of the raw or comment block being skipped.
	skip  string
	depth int
}

func (s *varScanner) ref(name string) {
	if s.seen[name] || s.bound[name] > 0 || loopObjects[name] {
		return
	}
	s.seen[name] = true
	s.out = append(s.out, name)
}

func (s *varScanner) bind(name string) {
	s.bound[strings.Trim(name, `'"`)]++
}

func (s *varScanner) tag(body string) {
	name, rest, _ := strings.Cut(body, " ")
	if i := strings.IndexAny(name, "\t\r\n"); i >= 0 {
		name, rest = name[:i], name[i+1:]+" "+rest
	}
	rest = strings.TrimSpace(rest)

	if s.skip != "" {
		switch name {
		case "end" + s.skip:
			if s.depth--; s.depth == 0 {
				s.skip = ""
			}
		case s.skip:
			s.depth++
		}
		return
	}
	if strings.HasPrefix(name, "#") {
		return
	}

	switch name {
	case "raw", "comment":
		s.skip, s.depth = name, 1
	case "if", "elsif", "unless", "case", "when", "echo", "cycle":
		s.value(rest)
	case "for", "tablerow":
		if m := forHeader.FindStringSubmatch(rest); m != nil {
			s.value(m[2])
			s.bind(m[1])
			s.loops = append(s.loops, m[1])
		}
	case "endfor", "endtablerow":
		if n := len(s.loops); n > 0 {
			s.bound[s.loops[n-1]]--
			s.loops = s.loops[:n-1]
		}
	case "assign":
		if m := assignHeader.FindStringSubmatch(rest); m != nil {
			s.value(m[2])
			s.bind(m[1])
		}
	case "capture", "increment", "decrement":
		s.bind(rest)
	case "include", "render":
		if m := withClause.FindStringSubmatch(rest); m != nil {
			s.ref(m[1])
		}
		if _, args, ok := strings.Cut(rest, ","); ok {
			s.value(args)
		}
	case "liquid":
		for _, line := range strings.Split(rest, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				s.tag(line)
			}
		}
	}
}

// value handles an expression followed by an optional filter chain.
func (s *varScanner) value(markup string) {
	parts := splitFilters(markup)
	s.expr(parts[0])
	for _, f := range parts[1:] {
		f = strings.TrimSpace(f)
		end := 0
		for end < len(f) && (isIdentByte(f[end]) || f[end] == '-') {
			end++
		}
		s.expr(strings.TrimPrefix(strings.TrimSpace(f[end:]), ":"))
	}
}

func (s *varScanner) expr(expr string) {
	toks := exprToken.FindAllString(expr, -1)
	for i, tok := range toks {
		if !isIdentByte(tok[0]) || (tok[0] >= '0' && tok[0] <= '9') {
			continue
		}
		if i > 0 && toks[i-1] == "." {
			continue // property access
		}
		if i+1 < len(toks) && toks[i+1] == ":" {
			continue // keyword argument name
		}
		if exprKeywords[tok] {
			continue
		}
		s.ref(tok)
	}
}

// splitFilters splits markup on pipes outside string literals.
func splitFilters(markup string) []string {
	var parts []string
	var quote byte
	start := 0
	for i := 0; i < len(markup); i++ {
		c := markup[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '|':
			parts = append(parts, markup[start:i])
			start = i + 1
		}
	}
	return append(parts, markup[start:])
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
