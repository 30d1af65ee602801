package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is plain text output (default).
	FormatText OutputFormat = "text"
	// FormatJSON is JSON output.
	FormatJSON OutputFormat = "json"
	// FormatCSV is CSV output.
	FormatCSV OutputFormat = "csv"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatCSV:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("invalid output format %q (must be text, json or csv)", s)
	}
}

// Table is implemented by results that render as rows. Text and CSV output
// use it; JSON output encodes the value itself.
type Table interface {
	Header() []string
	Rows() [][]string
}

// Formatter formats command output.
type Formatter interface {
	Format(data any) ([]byte, error)
	FormatTo(w io.Writer, data any) error
}

// TextFormatter formats output as plain text. Tables are aligned in columns.
type TextFormatter struct{}

// Format converts data to text format.
func (f *TextFormatter) Format(data any) ([]byte, error) {
	var sb strings.Builder
	if err := f.FormatTo(&sb, data); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// FormatTo writes data to writer in text format.
func (f *TextFormatter) FormatTo(w io.Writer, data any) error {
	table, ok := data.(Table)
	if !ok {
		_, err := fmt.Fprintf(w, "%v\n", data)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if header := table.Header(); len(header) > 0 {
		fmt.Fprintln(tw, strings.Join(header, "\t"))
	}
	for _, row := range table.Rows() {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// JSONFormatter formats output as JSON.
type JSONFormatter struct {
	Indent bool
}

// Format converts data to JSON format.
func (f *JSONFormatter) Format(data any) ([]byte, error) {
	if f.Indent {
		return json.MarshalIndent(data, "", "  ")
	}
	return json.Marshal(data)
}

// FormatTo writes data to writer in JSON format.
func (f *JSONFormatter) FormatTo(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// CSVFormatter formats tables as CSV.
type CSVFormatter struct{}

// Format converts data to CSV format.
func (f *CSVFormatter) Format(data any) ([]byte, error) {
	var sb strings.Builder
	if err := f.FormatTo(&sb, data); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// FormatTo writes data to writer in CSV format. Only Table values are
// supported.
func (f *CSVFormatter) FormatTo(w io.Writer, data any) error {
	table, ok := data.(Table)
	if !ok {
		return fmt.Errorf("CSV output is not supported for %T", data)
	}

	csvWriter := csv.NewWriter(w)
	if header := table.Header(); len(header) > 0 {
		if err := csvWriter.Write(header); err != nil {
			return err
		}
	}
	if err := csvWriter.WriteAll(table.Rows()); err != nil {
		return err
	}
	return csvWriter.Error()
}

// NewFormatter creates a new formatter for the specified format.
func NewFormatter(format OutputFormat) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatCSV:
		return &CSVFormatter{}
	default:
		return &TextFormatter{}
	}
}
