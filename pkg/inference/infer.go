package inference

import (
	"sort"
)

// VariableDescriptor is the inferred type and enumerated value evidence for a
// single template variable.
type VariableDescriptor struct {
	// Key is the variable's identifier.
	Key string `json:"key"`
	// Kind is the strongest kind found for the variable.
	Kind Kind `json:"kind"`
	// PossibleValues lists every literal the variable is compared against,
	// deduplicated by kind and text, in order of first discovery.
	PossibleValues []Literal `json:"possibleValues"`
	// Value is the variable's current metadata value, if one was supplied.
	Value any `json:"value,omitempty"`
}

// builder accumulates evidence for one descriptor.
type builder struct {
	d    VariableDescriptor
	rank rank
	seen map[string]struct{}
}

func newBuilder(key string) *builder {
	return &builder{
		d: VariableDescriptor{
			Key:            key,
			Kind:           KindUnknown,
			PossibleValues: []Literal{},
		},
		seen: map[string]struct{}{},
	}
}

func (b *builder) apply(e evidence) {
	if e.rank >= b.rank && e.kind != "" {
		b.d.Kind = e.kind
		b.rank = e.rank
	}
	for _, v := range e.values {
		k := v.key()
		if _, dup := b.seen[k]; dup {
			continue
		}
		b.seen[k] = struct{}{}
		b.d.PossibleValues = append(b.d.PossibleValues, v)
	}
}

// Infer scans source for every name and returns one descriptor per distinct
// name. Names that never appear in a recognised construct come back as
// KindUnknown with no possible values.
func Infer(names []string, source string) map[string]VariableDescriptor {
	return InferWithValues(names, source, nil)
}

// InferWithValues is Infer with metadata seeding: when values holds an entry
// for a name, the kind of that value seeds the descriptor before the source
// detectors run and the value itself is carried in Value.
//
// Seeded scalar kinds are overridden by anything the source says about the
// variable. Seeded arrays and objects are structural and are never replaced
// by scalar evidence.
func InferWithValues(names []string, source string, values map[string]any) map[string]VariableDescriptor {
	out := make(map[string]VariableDescriptor, len(names))
	for _, name := range names {
		if _, done := out[name]; done {
			continue
		}
		b := newBuilder(name)
		if v, ok := values[name]; ok {
			b.d.Value = v
			b.apply(seedEvidence(v))
		}
		if name != "" {
			for _, detect := range detectors {
				for _, e := range detect(name, source) {
					b.apply(e)
				}
			}
		}
		out[name] = b.d
	}
	return out
}

// Sorted returns the descriptors ordered by key.
func Sorted(m map[string]VariableDescriptor) []VariableDescriptor {
	list := make([]VariableDescriptor, 0, len(m))
	for _, d := range m {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	return list
}
