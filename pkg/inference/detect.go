package inference

import (
	"regexp"
	"strings"
)

// rank orders evidence by strength. Evidence replaces the current kind only
// when its rank is at least the current one.
type rank int

const (
	rankNone rank = iota
	rankNull
	rankSeed
	rankLiteral
	rankBoolean
	rankStructural
)

// evidence is the partial result of a single detector match.
type evidence struct {
	kind   Kind
	rank   rank
	values []Literal
}

// boundary anchors a variable name so it cannot match as the tail of a longer
// identifier or of a property access. A dash is only accepted when it is the
// trim marker of a tag delimiter.
const boundary = `(?:^|[^\w.\-]|[{%]-)`

// valueGrammar matches the operand side of a comparison.
const valueGrammar = `'[^']*'|"[^"]*"|[+-]?(?:\d+\.?\d*|\.\d+)|(?:true|false|nil|null)\b`

var (
	tagPattern  = regexp.MustCompile(`\{%-?\s*(\w+)((?:'[^']*'|"[^"]*"|[^'"])*?)-?%\}`)
	whenOperand = regexp.MustCompile(`'[^']*'|"[^"]*"|,|[^\s,'"]+`)
)

// detector is one independent pass over the template source.
type detector func(name, source string) []evidence

// detectors run in this order after metadata seeding.
var detectors = []detector{
	detectComparisons,
	detectBooleanContext,
	detectCaseWhen,
}

// literalEvidence wraps a parsed literal. A null literal only replaces an
// unknown kind: a nil check says nothing about what the variable holds.
func literalEvidence(lit Literal) evidence {
	r := rankLiteral
	if lit.Kind() == KindNull {
		r = rankNull
	}
	return evidence{kind: lit.Kind(), rank: r, values: []Literal{lit}}
}

// detectComparisons finds `name <op> literal` for the relational, equality and
// containment operators.
func detectComparisons(name, source string) []evidence {
	re := regexp.MustCompile(boundary + regexp.QuoteMeta(name) +
		`(?:\s*(?:==|!=|>=|<=|>|<)|\s+contains)\s*(` + valueGrammar + `)`)
	var out []evidence
	for _, m := range re.FindAllStringSubmatchIndex(source, -1) {
		lit := ParseLiteral(source[m[2]:m[3]])
		if lit.Kind() == KindNumber && m[3] < len(source) && runsOn(source[m[3]]) {
			continue // 10abc is not the number 10
		}
		out = append(out, literalEvidence(lit))
	}
	return out
}

// runsOn reports whether c continues the token before it.
func runsOn(c byte) bool {
	return c == '_' || c == '.' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// detectBooleanContext finds the variable used on its own as a condition of
// if/unless/elsif, optionally negated or chained with and/or.
func detectBooleanContext(name, source string) []evidence {
	re := regexp.MustCompile(`\{%-?\s*(?:if|unless|elsif)\s+(?:[^%]*?\s(?:and|or)\s+)?(?:not\s+|!\s*)?` +
		regexp.QuoteMeta(name) + `(?:\s*-?%\}|\s+(?:and|or)\s)`)
	if !re.MatchString(source) {
		return nil
	}
	return []evidence{{
		kind:   KindBoolean,
		rank:   rankBoolean,
		values: []Literal{Bool(true), Bool(false)},
	}}
}

// detectCaseWhen collects the operands of the when clauses that belong to
// `case name` blocks. Clauses of nested case blocks are skipped.
func detectCaseWhen(name, source string) []evidence {
	tags := tagPattern.FindAllStringSubmatch(source, -1)
	var out []evidence
	for i, t := range tags {
		if t[1] != "case" || strings.TrimSpace(t[2]) != name {
			continue
		}
		depth := 1
		for _, inner := range tags[i+1:] {
			switch inner[1] {
			case "case":
				depth++
			case "endcase":
				depth--
			case "when":
				if depth == 1 {
					for _, op := range splitWhenOperands(inner[2]) {
						out = append(out, literalEvidence(ParseLiteral(op)))
					}
				}
			}
			if depth == 0 {
				break
			}
		}
	}
	return out
}

// splitWhenOperands splits a when condition on `or` and commas outside quotes.
func splitWhenOperands(cond string) []string {
	var ops []string
	for _, tok := range whenOperand.FindAllString(cond, -1) {
		if tok == "," || tok == "or" {
			continue
		}
		ops = append(ops, tok)
	}
	return ops
}

// seedEvidence is the existing-value detector: the runtime kind of the value
// currently stored in metadata. Arrays and objects are structural evidence and
// outrank anything found in the source; scalars are only a starting point.
func seedEvidence(v any) evidence {
	k := KindOf(v)
	r := rankSeed
	if k == KindArray || k == KindObject {
		r = rankStructural
	}
	return evidence{kind: k, rank: r}
}
