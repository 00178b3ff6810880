package report

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/wingbywings/telegroup/internal"
	"github.com/wingbywings/telegroup/internal/metrics"
)

// Write renders r with exp into dir and returns the file path. name is the
// configured chat name used in the file name, possibly empty.
func Write(r *Report, dir, name string, exp Exporter) (string, error) {
	path := filepath.Join(dir, Filename(r.Date, name, r.ChatID, exp.Extension()))

	var buf bytes.Buffer
	if err := exp.Export(r, &buf); err != nil {
		return "", &internal.ExportError{Format: exp.Extension(), Path: path, Err: err}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &internal.ExportError{Format: exp.Extension(), Path: path, Err: err}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", &internal.ExportError{Format: exp.Extension(), Path: path, Err: err}
	}

	metrics.ReportsGenerated.WithLabelValues(exp.Extension()).Inc()
	return path, nil
}
