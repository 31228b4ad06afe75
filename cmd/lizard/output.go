package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/Sternrassler/lizard-client/pkg/endpoint"
	"github.com/Sternrassler/lizard-client/pkg/parser"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// maxCell limits nested values rendered into a table cell.
const maxCell = 60

// leadingColumns are shown first when present.
var leadingColumns = []string{"timestamp", "value", "uuid", "id", "name", "code"}

func encode(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return true, encoder.Encode(v)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		return true, encoder.Encode(v)
	case "table", "":
		return false, nil
	}
	return false, fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
}

func renderRecords(w io.Writer, format string, records []parser.Record) error {
	rows := make([]map[string]any, len(records))
	for i, r := range records {
		rows[i] = parser.ToMap(r)
	}

	if done, err := encode(w, format, rows); done || err != nil {
		return err
	}

	if len(rows) == 0 {
		fmt.Fprintln(w, "No records found")
		return nil
	}

	columns := recordColumns(rows)
	table := tablewriter.NewWriter(w)
	table.Header(anyRow(columns)...)
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = cell(row[col])
		}
		_ = table.Append(anyRow(cells)...)
	}
	return table.Render()
}

// recordColumns returns the union of keys, leading columns first.
func recordColumns(rows []map[string]any) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for k := range row {
			seen[k] = true
		}
	}

	columns := make([]string, 0, len(seen))
	for _, k := range leadingColumns {
		if seen[k] {
			columns = append(columns, k)
			delete(seen, k)
		}
	}
	rest := make([]string, 0, len(seen))
	for k := range seen {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	return append(columns, rest...)
}

func anyRow(vals []string) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	s := string(b)
	if len(s) > maxCell {
		s = s[:maxCell-3] + "..."
	}
	return s
}

func renderEndpoints(w io.Writer, format string, eps []endpoint.Endpoint) error {
	if done, err := encode(w, format, endpoint.File{Endpoints: eps}); done || err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("Name", "Path", "Kind", "Detail", "Page Size", "Description")
	for _, ep := range eps {
		_ = table.Append(
			ep.Name,
			ep.Path,
			string(ep.Kind),
			strconv.FormatBool(ep.Detail),
			strconv.Itoa(ep.PageSize),
			ep.Description,
		)
	}
	return table.Render()
}
