// Package render formats jsbridge CLI output.
//
// Format selection:
//   - a TTY defaults to table, anything else to json
//   - --format always overrides the default
//   - unknown formats are errors
//
// --no-color affects table output only: without it the outcome column is
// colored the way the TUI colors it.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/jsbridge/cli/tui"
	"github.com/pithecene-io/jsbridge/types"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string, returning an error for invalid formats.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil // caller picks the default
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer handles output formatting.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer creates a renderer from the --format and --no-color flags.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	formatStr := c.String("format")
	format, err := ParseFormat(formatStr)
	if err != nil {
		return nil, err
	}

	if format == "" {
		if isTTY(os.Stdout) {
			format = FormatTable
		} else {
			format = FormatJSON
		}
	}

	return &Renderer{
		format:  format,
		noColor: c.Bool("no-color"),
		out:     os.Stdout,
	}, nil
}

// NewRendererWithWriter creates a renderer with a custom writer (for testing).
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{
		format:  format,
		noColor: noColor,
		out:     out,
	}
}

// Render outputs the data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(data)
	case FormatTable:
		return r.renderTable(data)
	case FormatYAML:
		return r.renderYAML(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// Format returns the resolved output format.
func (r *Renderer) Format() Format {
	return r.format
}

// RenderTUI opens the interactive view for viewType. Only inspect and stats
// views have one.
func (r *Renderer) RenderTUI(viewType string, data any) error {
	if !tui.IsTUISupported(viewType) {
		return fmt.Errorf("--tui is not supported for %s", viewType)
	}
	return tui.Run(viewType, data)
}

func (r *Renderer) renderJSON(data any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (r *Renderer) renderYAML(data any) error {
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	return enc.Encode(data)
}

// renderTable lays data out as rows. Tabular payloads pick their own
// columns; slices get one row per element; structs and maps print one
// "name: value" line per field.
func (r *Renderer) renderTable(data any) error {
	if t, ok := data.(Tabular); ok {
		return r.writeRows(t.Columns(), t.Rows())
	}

	v := indirect(reflect.ValueOf(data))
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return r.writeRows(nil, nil)
		}
		cols := columnsOf(v.Index(0))
		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = c.name
		}
		rows := make([][]string, v.Len())
		for i := range v.Len() {
			elem := indirect(v.Index(i))
			row := make([]string, len(cols))
			for j, c := range cols {
				row[j] = r.cell(c.name, c.get(elem))
			}
			rows[i] = row
		}
		return r.writeRows(names, rows)
	case reflect.Struct, reflect.Map:
		w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
		defer w.Flush()
		for _, c := range columnsOf(v) {
			fmt.Fprintf(w, "%s:\t%s\n", c.name, r.cell(c.name, c.get(v)))
		}
		return nil
	default:
		_, err := fmt.Fprintf(r.out, "%v\n", data)
		return err
	}
}

// Tabular is implemented by payloads that pick their own table columns.
// JSON and YAML output ignore it.
type Tabular interface {
	Columns() []string
	Rows() [][]string
}

func (r *Renderer) writeRows(columns []string, rows [][]string) error {
	if len(rows) == 0 {
		fmt.Fprintln(r.out, "(no results)")
		return nil
	}
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, strings.Join(columns, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return nil
}

// column reads one named value out of a struct or map.
type column struct {
	name string
	get  func(reflect.Value) reflect.Value
}

// columnsOf lists the columns of a struct (json tag names, "-" skipped) or
// of a string-keyed map (keys in order).
func columnsOf(v reflect.Value) []column {
	v = indirect(v)
	var cols []column
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			f := t.Field(i)
			name, ok := fieldName(f)
			if !ok {
				continue
			}
			cols = append(cols, column{name: name, get: func(s reflect.Value) reflect.Value {
				return s.Field(i)
			}})
		}
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil
		}
		keys := make([]string, 0, v.Len())
		for _, k := range v.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		for _, key := range keys {
			cols = append(cols, column{name: key, get: func(m reflect.Value) reflect.Value {
				return m.MapIndex(reflect.ValueOf(key).Convert(m.Type().Key()))
			}})
		}
	}
	return cols
}

func fieldName(f reflect.StructField) (string, bool) {
	if !f.IsExported() {
		return "", false
	}
	if tag := f.Tag.Get("json"); tag != "" {
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return "", false
		}
		if name != "" {
			return name, true
		}
	}
	return strings.ToLower(f.Name), true
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && !v.IsNil() {
		v = v.Elem()
	}
	return v
}

var (
	envelopeType = reflect.TypeFor[types.Envelope]()
	timeType     = reflect.TypeFor[time.Time]()
)

// cell formats one table value. Absent envelope fields (nil *string) show
// as "-" so they stay distinct from an empty string.
func (r *Renderer) cell(name string, v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	if v.Kind() == reflect.Pointer && v.IsNil() {
		if v.Type().Elem().Kind() == reflect.String {
			return "-"
		}
		return ""
	}
	v = indirect(v)

	switch {
	case v.Type() == envelopeType:
		return describeEnvelope(v.Interface().(types.Envelope))
	case v.Type() == timeType:
		return v.Interface().(time.Time).Format(time.RFC3339)
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		return "{...}"
	case reflect.String:
		if name == "outcome" && !r.noColor {
			return tui.OutcomeStyle(v.String()).Render(v.String())
		}
		return v.String()
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// describeEnvelope is the one-line form of an envelope: "call <handler>"
// with its callback id, or "reply <responseId>".
func describeEnvelope(env types.Envelope) string {
	if env.IsReply() {
		return "reply " + types.Value(env.ResponseID)
	}
	desc := "call " + types.Value(env.HandlerName)
	if env.CallbackID != nil {
		desc += " cb=" + *env.CallbackID
	}
	return desc
}

// isTTY returns true if the writer is a TTY.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
