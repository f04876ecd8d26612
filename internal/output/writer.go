// Package output renders check reports in machine-readable formats.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rrx/ssl-expiration/internal/emit"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

type Writer struct {
	format    Format
	w         io.Writer
	csvWriter *csv.Writer
	mu        sync.Mutex
	hasHeader bool
}

func NewWriter(format string, w io.Writer) (*Writer, error) {
	var f Format
	switch strings.ToLower(format) {
	case "json":
		f = FormatJSON
	case "jsonl", "ndjson":
		f = FormatJSONL
	case "csv":
		f = FormatCSV
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}

	writer := &Writer{format: f, w: w}
	if f == FormatCSV {
		writer.csvWriter = csv.NewWriter(w)
	}
	return writer, nil
}

func NewStdoutWriter(format string) (*Writer, error) {
	return NewWriter(format, os.Stdout)
}

func (w *Writer) WriteReport(r emit.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.format {
	case FormatJSON:
		enc := json.NewEncoder(w.w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)

	case FormatJSONL:
		return json.NewEncoder(w.w).Encode(r)

	case FormatCSV:
		if !w.hasHeader {
			w.csvWriter.Write([]string{
				"target", "checked_at", "remaining_seconds", "remaining_days", "expired", "alt_names", "error",
			})
			w.hasHeader = true
		}
		w.csvWriter.Write([]string{
			r.Target,
			r.CheckedAt.Format(time.RFC3339),
			strconv.FormatInt(r.RemainingSeconds, 10),
			strconv.FormatInt(r.RemainingDays, 10),
			strconv.FormatBool(r.Expired),
			strings.Join(r.AltNames, ";"),
			r.Error,
		})
		return w.csvWriter.Error()

	default:
		return fmt.Errorf("unsupported format: %s", w.format)
	}
}

func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.csvWriter != nil {
		w.csvWriter.Flush()
		return w.csvWriter.Error()
	}
	return nil
}
