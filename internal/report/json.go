package report

import (
	"encoding/json"
	"io"
)

// JSONExporter writes the whole report as indented JSON
type JSONExporter struct{}

// Export writes r as one JSON document
func (e *JSONExporter) Export(r *Report, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	return enc.Encode(r)
}

// Extension returns the file extension for this format
func (e *JSONExporter) Extension() string {
	return "json"
}
