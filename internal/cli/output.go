package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb"
)

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printValue prints a single stored value. Strings are printed verbatim in
// table mode.
func (a *app) printValue(v any) error {
	if a.jsonOutput() {
		return a.printJSON(v)
	}
	_, err := fmt.Fprintln(a.out, cell(v))
	return err
}

func (a *app) printKeys(keys []string) error {
	if a.jsonOutput() {
		return a.printJSON(keys)
	}
	t := newTable()
	t.AppendHeader(table.Row{"#", "Key"})
	for i, k := range keys {
		t.AppendRow(table.Row{i + 1, k})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d keys", len(keys))})
	return a.render(t)
}

func (a *app) printRecords(records []kvdb.Record) error {
	if a.jsonOutput() {
		return a.printJSON(records)
	}
	t := newTable()
	t.AppendHeader(table.Row{"ID", "Type", "Data"})
	for _, r := range records {
		t.AppendRow(table.Row{r.ID, valueType(r.Data), cell(r.Data)})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d records", len(records))})
	return a.render(t)
}

func (a *app) printImport(res *kvdb.ImportResult) error {
	if a.jsonOutput() {
		type row struct {
			ID    string `json:"id"`
			Error string `json:"error,omitempty"`
		}
		rows := make([]row, len(res.Results))
		for i, r := range res.Results {
			rows[i].ID = r.ID
			if r.Err != nil {
				rows[i].Error = r.Err.Error()
			}
		}
		return a.printJSON(rows)
	}
	t := newTable()
	t.AppendHeader(table.Row{"ID", "Status", "Error"})
	for _, r := range res.Results {
		if r.Err != nil {
			t.AppendRow(table.Row{r.ID, "failed", r.Err.Error()})
			continue
		}
		t.AppendRow(table.Row{r.ID, "ok", ""})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d/%d written", len(res.Succeeded()), len(res.Results)), ""})
	return a.render(t)
}

func (a *app) printLatency(seq int, l *kvdb.Latency) error {
	w, r, d, avg := l.Milliseconds()
	if a.jsonOutput() {
		out, err := json.Marshal(map[string]int64{"seq": int64(seq), "write_ms": w, "read_ms": r, "delete_ms": d, "average_ms": avg})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.out, string(out))
		return err
	}
	_, err := fmt.Fprintf(a.out, "ping %d: %s\n", seq, l)
	return err
}

func (a *app) render(t table.Writer) error {
	_, err := fmt.Fprintln(a.out, t.Render())
	return err
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	return t
}

// cell renders a decoded value on one line.
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func valueType(v any) kvdb.ValueType {
	switch v.(type) {
	case nil:
		return kvdb.TypeNull
	case bool:
		return kvdb.TypeBoolean
	case float64:
		return kvdb.TypeNumber
	case string:
		return kvdb.TypeString
	case []any:
		return kvdb.TypeArray
	default:
		return kvdb.TypeObject
	}
}
