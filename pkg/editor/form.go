package editor

import (
	"html/template"
	"io"
)

var formTemplate = template.Must(template.New("form").Parse(`<form class="liquidize-variables" method="post">
{{- range . }}
<div class="field field-{{ .Widget }}" data-kind="{{ .Kind }}">
<label for="var-{{ .Key }}">{{ .Label }}</label>
{{- if eq .Widget "toggle" }}
<input type="checkbox" id="var-{{ .Key }}" name="{{ .Key }}" value="true"{{ if eq .Value "true" }} checked{{ end }}>
{{- else if eq .Widget "number" }}
<input type="number" step="any" id="var-{{ .Key }}" name="{{ .Key }}" value="{{ .Value }}">
{{- else if eq .Widget "select" }}
<select id="var-{{ .Key }}" name="{{ .Key }}">
{{- if not .Value }}<option value="" selected></option>{{ end }}
{{- range .Options }}<option value="{{ .Value }}"{{ if .Selected }} selected{{ end }}>{{ .Label }}</option>{{ end -}}
</select>
{{- else if eq .Widget "list" }}
<textarea id="var-{{ .Key }}" name="{{ .Key }}" rows="4">{{ .Value }}</textarea>
{{- else if eq .Widget "json" }}
<textarea id="var-{{ .Key }}" name="{{ .Key }}" rows="6" spellcheck="false">{{ .Value }}</textarea>
{{- else }}
<input type="text" id="var-{{ .Key }}" name="{{ .Key }}" value="{{ .Value }}">
{{- end }}
</div>
{{- end }}
</form>
`))

// RenderForm writes an HTML form with one control per field.
func RenderForm(w io.Writer, fields []Field) error {
	return formTemplate.Execute(w, fields)
}
