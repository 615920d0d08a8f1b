package editor

import (
	"errors"
	"strings"
	"testing"

	"github.com/CTAG07/Liquidize/pkg/inference"
	"github.com/google/go-cmp/cmp"
)

func TestFieldFor(t *testing.T) {
	tests := []struct {
		name string
		d    inference.VariableDescriptor
		want Field
	}{
		{
			name: "Boolean",
			d: inference.VariableDescriptor{Key: "published", Kind: inference.KindBoolean,
				PossibleValues: []inference.Literal{inference.Bool(true), inference.Bool(false)}, Value: true},
			want: Field{Key: "published", Label: "published", Kind: inference.KindBoolean, Widget: WidgetToggle, Value: "true"},
		},
		{
			name: "Boolean without value",
			d:    inference.VariableDescriptor{Key: "draft", Kind: inference.KindBoolean},
			want: Field{Key: "draft", Label: "draft", Kind: inference.KindBoolean, Widget: WidgetToggle, Value: "false"},
		},
		{
			name: "Enumerated strings",
			d: inference.VariableDescriptor{Key: "release_status", Kind: inference.KindString,
				PossibleValues: []inference.Literal{inference.String("draft"), inference.String("live")}, Value: "live"},
			want: Field{Key: "release_status", Label: "release status", Kind: inference.KindString, Widget: WidgetSelect,
				Options: []Option{
					{Label: "draft", Value: `"draft"`},
					{Label: "live", Value: `"live"`, Selected: true},
				},
				Value: `"live"`},
		},
		{
			name: "Current value outside the options",
			d: inference.VariableDescriptor{Key: "n", Kind: inference.KindNumber,
				PossibleValues: []inference.Literal{inference.Number(1), inference.Null()}, Value: 7},
			want: Field{Key: "n", Label: "n", Kind: inference.KindNumber, Widget: WidgetSelect,
				Options: []Option{
					{Label: "1", Value: "1"},
					{Label: "null", Value: "nil"},
					{Label: "7", Value: "7", Selected: true},
				},
				Value: "7"},
		},
		{
			name: "Mixed booleans are a select",
			d: inference.VariableDescriptor{Key: "m", Kind: inference.KindBoolean,
				PossibleValues: []inference.Literal{inference.Bool(true), inference.String("auto")}},
			want: Field{Key: "m", Label: "m", Kind: inference.KindBoolean, Widget: WidgetSelect,
				Options: []Option{{Label: "true", Value: "true"}, {Label: "auto", Value: `"auto"`}}},
		},
		{
			name: "Number",
			d:    inference.VariableDescriptor{Key: "count", Kind: inference.KindNumber, Value: 2.5},
			want: Field{Key: "count", Label: "count", Kind: inference.KindNumber, Widget: WidgetNumber, Value: "2.5"},
		},
		{
			name: "Array",
			d:    inference.VariableDescriptor{Key: "tags", Kind: inference.KindArray, Value: []any{"a", 2, true}},
			want: Field{Key: "tags", Label: "tags", Kind: inference.KindArray, Widget: WidgetList, Value: "a\n2\ntrue"},
		},
		{
			name: "Object",
			d:    inference.VariableDescriptor{Key: "author", Kind: inference.KindObject, Value: map[string]any{"name": "Ada"}},
			want: Field{Key: "author", Label: "author", Kind: inference.KindObject, Widget: WidgetJSON, Value: "{\n  \"name\": \"Ada\"\n}"},
		},
		{
			name: "Unknown",
			d:    inference.VariableDescriptor{Key: "first-name", Kind: inference.KindUnknown},
			want: Field{Key: "first-name", Label: "first name", Kind: inference.KindUnknown, Widget: WidgetText},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, FieldFor(tt.d)); diff != "" {
				t.Errorf("FieldFor() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFieldsFromInference(t *testing.T) {
	source := `{% if published %}{% endif %}{% case status %}{% when 'draft' or 'live' %}{% endcase %}{{ title }}`
	names := []string{"published", "status", "title", "tags"}
	values := map[string]any{"title": "Hi", "tags": []any{"x"}}

	fields := Fields(inference.Sorted(inference.InferWithValues(names, source, values)))

	got := map[string]Widget{}
	for _, f := range fields {
		got[f.Key] = f.Widget
	}
	want := map[string]Widget{
		"published": WidgetToggle,
		"status":    WidgetSelect,
		"title":     WidgetText,
		"tags":      WidgetList,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("widgets mismatch (-want +got):\n%s", diff)
	}
	if fields[0].Key != "published" || fields[3].Key != "title" {
		t.Errorf("expected fields in descriptor order, got %v", fields)
	}
}

func TestCoerce(t *testing.T) {
	sel := Field{Key: "s", Widget: WidgetSelect, Options: []Option{
		{Value: `"draft"`}, {Value: `"12"`}, {Value: "3"}, {Value: "true"}, {Value: "nil"},
	}}
	tests := []struct {
		name    string
		field   Field
		raw     string
		want    any
		wantErr bool
	}{
		{"Toggle on", Field{Widget: WidgetToggle}, "on", true, false},
		{"Toggle true", Field{Widget: WidgetToggle}, "true", true, false},
		{"Toggle empty", Field{Widget: WidgetToggle}, "", false, false},
		{"Toggle invalid", Field{Widget: WidgetToggle}, "maybe", nil, true},
		{"Number int", Field{Widget: WidgetNumber}, " 42 ", 42, false},
		{"Number float", Field{Widget: WidgetNumber}, "2.5", 2.5, false},
		{"Number invalid", Field{Widget: WidgetNumber}, "abc", nil, true},
		{"Select string", sel, `"draft"`, "draft", false},
		{"Select quoted number stays string", sel, `'12'`, "12", false},
		{"Select number", sel, "3", 3, false},
		{"Select bool", sel, "true", true, false},
		{"Select null", sel, "null", nil, false},
		{"Select unknown", sel, `"other"`, nil, true},
		{"List", Field{Widget: WidgetList}, "a\n\n 2 \n'3'\n", []any{"a", 2, "3"}, false},
		{"List empty", Field{Widget: WidgetList}, "", []any{}, false},
		{"JSON", Field{Widget: WidgetJSON}, `{"a":[1]}`, map[string]any{"a": []any{1.0}}, false},
		{"JSON not object", Field{Widget: WidgetJSON}, `[1]`, nil, true},
		{"Text", Field{Widget: WidgetText}, " keep spaces ", " keep spaces ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.field, tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidValue) {
					t.Fatalf("expected ErrInvalidValue, got %v (value %v)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce() failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Coerce() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSelectOptionsRoundtrip(t *testing.T) {
	d := inference.VariableDescriptor{Key: "v", Kind: inference.KindString, PossibleValues: []inference.Literal{
		inference.String("true"), inference.String("  padded "), inference.String(`say "hi"`), inference.Number(1.5),
	}}
	f := FieldFor(d)
	for i, o := range f.Options {
		got, err := Coerce(f, o.Value)
		if err != nil {
			t.Fatalf("Coerce(%q) failed: %v", o.Value, err)
		}
		if want := d.PossibleValues[i].Value(); got != want {
			t.Errorf("option %d: Coerce(%q) = %#v, want %#v", i, o.Value, got, want)
		}
	}
}

func TestRenderForm(t *testing.T) {
	fields := []Field{
		{Key: "published", Label: "published", Widget: WidgetToggle, Value: "true"},
		{Key: "status", Label: "status", Widget: WidgetSelect, Options: []Option{
			{Label: "draft", Value: `"draft"`}, {Label: "live", Value: `"live"`, Selected: true},
		}, Value: `"live"`},
		{Key: "count", Label: "count", Widget: WidgetNumber, Value: "3"},
		{Key: "tags", Label: "tags", Widget: WidgetList, Value: "a\nb"},
		{Key: `x"><script>`, Label: "<b>hostile</b>", Widget: WidgetText, Value: `"><img>`},
	}

	var sb strings.Builder
	if err := RenderForm(&sb, fields); err != nil {
		t.Fatalf("RenderForm() failed: %v", err)
	}
	out := sb.String()

	for _, want := range []string{
		`<input type="checkbox" id="var-published" name="published" value="true" checked>`,
		`<option value="&#34;live&#34;" selected>live</option>`,
		`<input type="number" step="any" id="var-count" name="count" value="3">`,
		"<textarea id=\"var-tags\" name=\"tags\" rows=\"4\">a\nb</textarea>",
		`&lt;b&gt;hostile&lt;/b&gt;`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("form is missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "<script>") || strings.Contains(out, "<img>") {
		t.Errorf("form contains unescaped input:\n%s", out)
	}
}
