// Command inspect prints the inferred variable table of a template document.
//
//	inspect [-json] FILE
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/CTAG07/Liquidize/pkg/document"
	"github.com/CTAG07/Liquidize/pkg/editor"
	"github.com/CTAG07/Liquidize/pkg/inference"
	"github.com/CTAG07/Liquidize/pkg/templating"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
)

func main() {
	terminal := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, terminal))
}

// row is one line of the variable table.
type row struct {
	Key    string              `json:"key"`
	Kind   inference.Kind      `json:"kind"`
	Widget editor.Widget       `json:"widget"`
	Values []inference.Literal `json:"possibleValues"`
	Value  any                 `json:"value,omitempty"`
}

func run(args []string, stdout, stderr io.Writer, terminal bool) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asJSON := fs.Bool("json", false, "print the descriptors as JSON")
	fs.Usage = func() {
		_, _ = fmt.Fprintln(stderr, "usage: inspect [-json] FILE")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	rows, err := inspectFile(fs.Arg(0))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "inspect: %v\n", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err = enc.Encode(rows); err != nil {
			_, _ = fmt.Fprintf(stderr, "inspect: %v\n", err)
			return 1
		}
		return 0
	}
	printTable(stdout, rows, terminal)
	return 0
}

// inspectFile reads a document and infers every variable of its template and
// frontmatter, template variables first.
func inspectFile(path string) ([]row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	meta, body, err := document.ParseFrontmatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	names := templating.Variables(body)
	var extra []string
	for k := range meta {
		if !slices.Contains(names, k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	names = append(names, extra...)

	inferred := inference.InferWithValues(names, body, meta)
	rows := make([]row, 0, len(names))
	for _, n := range names {
		d := inferred[n]
		rows = append(rows, row{
			Key:    d.Key,
			Kind:   d.Kind,
			Widget: editor.FieldFor(d).Widget,
			Values: d.PossibleValues,
			Value:  d.Value,
		})
	}
	return rows, nil
}

func printTable(w io.Writer, rows []row, bold bool) {
	header := []string{"VARIABLE", "KIND", "WIDGET", "VALUES", "CURRENT"}
	cells := [][]string{header}
	for _, r := range rows {
		values := make([]string, len(r.Values))
		for i, v := range r.Values {
			values[i] = v.String()
		}
		current := ""
		if r.Value != nil {
			current = fmt.Sprint(r.Value)
		}
		cells = append(cells, []string{r.Key, string(r.Kind), string(r.Widget), strings.Join(values, ", "), current})
	}

	widths := make([]int, len(header))
	for _, line := range cells {
		for i, c := range line {
			widths[i] = max(widths[i], runewidth.StringWidth(c))
		}
	}

	for n, line := range cells {
		var sb strings.Builder
		for i, c := range line {
			if i == len(line)-1 {
				sb.WriteString(c)
				break
			}
			sb.WriteString(runewidth.FillRight(c, widths[i]+2))
		}
		out := strings.TrimRight(sb.String(), " ")
		if n == 0 && bold {
			out = "\x1b[1m" + out + "\x1b[0m"
		}
		_, _ = fmt.Fprintln(w, out)
	}
}
