package report

import (
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLExporter writes the report as YAML
type YAMLExporter struct{}

// Export writes r as one YAML document
func (e *YAMLExporter) Export(r *Report, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()

	return enc.Encode(r)
}

// Extension returns the file extension for this format
func (e *YAMLExporter) Extension() string {
	return "yaml"
}
