// Package output provides output formatting for calculation results.
// This package produces human and machine-readable outputs.
package output

import (
	"fmt"
	"io"
	"sort"

	"sda-calculator/core/pricing"
)

// Format represents output format type
type Format string

const (
	// FormatCLI is a human-readable CLI table
	FormatCLI Format = "cli"

	// FormatJSON is machine-readable JSON
	FormatJSON Format = "json"
)

// Formatter produces output in a specific format
type Formatter interface {
	// Format returns the format type
	Format() Format

	// Render produces output for the given result
	Render(w io.Writer, result *CalculationResult) error
}

// CalculationResult contains the complete calculation output
type CalculationResult struct {
	// Request echoes the priced inputs
	Request RequestSummary `json:"request"`

	// Breakdown is the computed payment breakdown
	Breakdown *pricing.Breakdown `json:"breakdown"`

	// Metadata contains execution context
	Metadata CalculationMetadata `json:"metadata"`
}

// RequestSummary echoes the inputs a breakdown was computed for
type RequestSummary struct {
	StockType      string `json:"stock_type"`
	BuildingType   string `json:"building_type"`
	DesignCategory string `json:"design_category"`
	OOAStatus      string `json:"ooa_status"`
	FireSprinklers bool   `json:"fire_sprinklers"`
	ITCClaimed     *bool  `json:"itc_claimed,omitempty"`
	SA4Region      string `json:"sa4_region"`
}

// CalculationMetadata contains execution context
type CalculationMetadata struct {
	// Timestamp is when the calculation was performed
	Timestamp string `json:"timestamp"`

	// Duration is how long the calculation took
	Duration string `json:"duration"`

	// Source is "local" or the remote API base URL
	Source string `json:"source"`

	// Version is the tool version
	Version string `json:"version"`
}

// Registry holds formatters by format
type Registry struct {
	formatters map[Format]Formatter
}

// NewRegistry creates a registry with the built-in formatters
func NewRegistry() *Registry {
	r := &Registry{formatters: make(map[Format]Formatter)}
	r.Register(NewCLIFormatter(true))
	r.Register(NewJSONFormatter(true))
	return r
}

// Register adds or replaces a formatter
func (r *Registry) Register(f Formatter) {
	r.formatters[f.Format()] = f
}

// Get returns the formatter for a format
func (r *Registry) Get(format Format) (Formatter, error) {
	f, ok := r.formatters[format]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (available: %v)", format, r.Formats())
	}
	return f, nil
}

// Formats lists registered formats
func (r *Registry) Formats() []Format {
	formats := make([]Format, 0, len(r.formatters))
	for f := range r.formatters {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}
