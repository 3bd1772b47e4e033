package output

import (
	"encoding/json"
	"io"
)

// JSONFormatter renders the result as JSON
type JSONFormatter struct {
	indent bool
}

// NewJSONFormatter creates a JSON formatter
func NewJSONFormatter(indent bool) *JSONFormatter {
	return &JSONFormatter{indent: indent}
}

// Format returns FormatJSON
func (f *JSONFormatter) Format() Format {
	return FormatJSON
}

// Render writes the result
func (f *JSONFormatter) Render(w io.Writer, result *CalculationResult) error {
	enc := json.NewEncoder(w)
	if f.indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(result)
}
