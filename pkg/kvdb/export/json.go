package export

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb"
)

// JSONWriter streams records as a JSON array of {"id", "data"} objects, the
// format accepted by kvdb.Client.ImportJSON. Call Close to terminate the
// array.
type JSONWriter struct {
	mu     sync.Mutex
	w      *bufio.Writer
	count  int
	indent bool
	closed bool
}

var _ kvdb.Setter = (*JSONWriter)(nil)

// NewJSONWriter writes to w. With indent each record goes on its own line.
func NewJSONWriter(w io.Writer, indent bool) *JSONWriter {
	return &JSONWriter{w: bufio.NewWriter(w), indent: indent}
}

// Set appends one record.
func (j *JSONWriter) Set(ctx context.Context, key string, value any, _ *kvdb.Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !kvdb.IsValidValue(value) {
		return fmt.Errorf("export: %q: %w", key, kvdb.ErrInvalidValue)
	}
	data, err := json.Marshal(kvdb.Record{ID: key, Data: value})
	if err != nil {
		return fmt.Errorf("export: encode %q: %w", key, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return fmt.Errorf("export: writer closed")
	}
	sep := ","
	if j.count == 0 {
		sep = "["
	}
	if j.indent {
		sep += "\n  "
	}
	if _, err := j.w.WriteString(sep); err != nil {
		return err
	}
	if _, err := j.w.Write(data); err != nil {
		return err
	}
	j.count++
	return nil
}

// Count returns the number of records written.
func (j *JSONWriter) Count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}

// Close terminates the array and flushes. It does not close the underlying
// writer.
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	end := "]\n"
	switch {
	case j.count == 0:
		end = "[]\n"
	case j.indent:
		end = "\n]\n"
	}
	if _, err := j.w.WriteString(end); err != nil {
		return err
	}
	return j.w.Flush()
}
