package editor

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/CTAG07/Liquidize/pkg/inference"
)

// Widget names the control used to edit a variable.
type Widget string

const (
	WidgetText   Widget = "text"
	WidgetNumber Widget = "number"
	WidgetToggle Widget = "toggle"
	WidgetSelect Widget = "select"
	WidgetList   Widget = "list"
	WidgetJSON   Widget = "json"
)

// Option is one choice of a select field. Value is the raw literal text
// submitted by the control; it parses back to the same literal.
type Option struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Selected bool   `json:"selected,omitempty"`
}

// Field describes one editor control for a template variable.
type Field struct {
	Key     string         `json:"key"`
	Label   string         `json:"label"`
	Kind    inference.Kind `json:"kind"`
	Widget  Widget         `json:"widget"`
	Options []Option       `json:"options,omitempty"`
	// Value is the current value formatted for the control.
	Value string `json:"value"`
}

// Fields builds one field per descriptor, keeping their order.
func Fields(ds []inference.VariableDescriptor) []Field {
	fields := make([]Field, 0, len(ds))
	for _, d := range ds {
		fields = append(fields, FieldFor(d))
	}
	return fields
}

// FieldFor picks the widget for a descriptor and formats its current value.
func FieldFor(d inference.VariableDescriptor) Field {
	f := Field{
		Key:    d.Key,
		Label:  label(d.Key),
		Kind:   d.Kind,
		Widget: widgetFor(d),
	}

	switch f.Widget {
	case WidgetToggle:
		f.Value = fmt.Sprint(truthy(d.Value))
	case WidgetSelect:
		f.Options, f.Value = options(d)
	case WidgetList:
		f.Value = formatList(d.Value)
	case WidgetJSON:
		if d.Value != nil {
			data, err := json.MarshalIndent(d.Value, "", "  ")
			if err == nil {
				f.Value = string(data)
			}
		}
	default:
		if d.Value != nil {
			f.Value = fmt.Sprint(d.Value)
		}
	}
	return f
}

func widgetFor(d inference.VariableDescriptor) Widget {
	switch d.Kind {
	case inference.KindArray:
		return WidgetList
	case inference.KindObject:
		return WidgetJSON
	case inference.KindBoolean:
		if onlyBooleans(d.PossibleValues) {
			return WidgetToggle
		}
	}
	if len(d.PossibleValues) > 0 {
		return WidgetSelect
	}
	if d.Kind == inference.KindNumber {
		return WidgetNumber
	}
	return WidgetText
}

func onlyBooleans(values []inference.Literal) bool {
	for _, v := range values {
		if v.Kind() != inference.KindBoolean {
			return false
		}
	}
	return true
}

// label turns a key like "release_date" into "release date".
func label(key string) string {
	return strings.NewReplacer("_", " ", "-", " ").Replace(key)
}

// truthy follows Liquid: only nil and false are falsy.
func truthy(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

// options lists the possible values, plus the current value when it is a
// scalar outside that set, and marks the current one.
func options(d inference.VariableDescriptor) ([]Option, string) {
	values := d.PossibleValues
	current, hasCurrent := literalOf(d.Value)
	if hasCurrent {
		found := false
		for _, v := range values {
			if v.Equal(current) {
				found = true
				break
			}
		}
		if !found {
			values = append(append([]inference.Literal{}, values...), current)
		}
	}

	opts := make([]Option, 0, len(values))
	selected := ""
	for _, v := range values {
		o := Option{Label: v.String(), Value: rawLiteral(v)}
		if hasCurrent && v.Equal(current) {
			o.Selected = true
			selected = o.Value
		}
		opts = append(opts, o)
	}
	return opts, selected
}

// literalOf converts a scalar metadata value to a Literal.
func literalOf(v any) (inference.Literal, bool) {
	switch x := v.(type) {
	case nil:
		return inference.Literal{}, false
	case string:
		return inference.String(x), true
	case bool:
		return inference.Bool(x), true
	case float64:
		return inference.Number(x), true
	case float32:
		return inference.Number(float64(x)), true
	case int:
		return inference.Number(float64(x)), true
	case int64:
		return inference.Number(float64(x)), true
	case uint64:
		return inference.Number(float64(x)), true
	}
	return inference.Literal{}, false
}

// rawLiteral renders l so that inference.ParseLiteral returns it unchanged.
func rawLiteral(l inference.Literal) string {
	switch l.Kind() {
	case inference.KindString:
		return `"` + l.String() + `"`
	case inference.KindNull:
		return "nil"
	default:
		return l.String()
	}
}

func formatList(v any) string {
	items, ok := v.([]any)
	if !ok {
		return ""
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			lines = append(lines, s)
			continue
		}
		data, err := json.Marshal(item)
		if err != nil {
			continue
		}
		lines = append(lines, string(data))
	}
	return strings.Join(lines, "\n")
}

// number returns integral floats as int so they are written back as 3, not 3.0.
func number(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int(f)
	}
	return f
}
