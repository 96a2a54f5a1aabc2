package format

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/kestrelsec/huntkit/pkg/tables"
)

// Formatter converts a result table to an output format.
type Formatter interface {
	Format(t *tables.Table, writer io.Writer) error
}

// FormatterOptions contains configuration options for formatters
type FormatterOptions struct {
	// CSV options
	CSVDelimiter rune

	// JSON options
	JSONPretty bool
	JSONIndent string

	// Table options
	TableMaxWidth int
	TablePadding  int

	// Common options
	NullValue      string
	EmptyValue     string
	TruncateValues bool
	MaxValueLength int
}

// getTerminalWidth tries to determine terminal width from environment, defaults to 80
func getTerminalWidth() int {
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if width, err := strconv.Atoi(cols); err == nil && width > 0 {
			return width
		}
	}
	return 80
}

// DefaultFormatterOptions returns sensible default options
func DefaultFormatterOptions() *FormatterOptions {
	return &FormatterOptions{
		CSVDelimiter:   ',',
		JSONPretty:     true,
		JSONIndent:     "  ",
		TableMaxWidth:  getTerminalWidth(),
		TablePadding:   1,
		NullValue:      "NULL",
		EmptyValue:     "",
		TruncateValues: true,
		MaxValueLength: 100,
	}
}

// New returns the formatter for a format name ("table", "csv", "json").
func New(name string, opts *FormatterOptions) (Formatter, error) {
	switch strings.ToLower(name) {
	case "", "table":
		return NewTableFormatter(opts), nil
	case "csv":
		return NewCSVFormatter(opts), nil
	case "json":
		return NewJSONFormatter(opts), nil
	}
	return nil, fmt.Errorf("unknown output format %q", name)
}

// formatValue consistently formats values according to options
func formatValue(value interface{}, opts *FormatterOptions) string {
	if value == nil {
		return opts.NullValue
	}

	var str string
	switch v := value.(type) {
	case string:
		if v == "" {
			return opts.EmptyValue
		}
		str = v
	case []byte:
		if len(v) == 0 {
			return opts.EmptyValue
		}
		str = string(v)
	case bool:
		str = strconv.FormatBool(v)
	case int, int8, int16, int32, int64:
		str = fmt.Sprintf("%d", v)
	case uint, uint8, uint16, uint32, uint64:
		str = fmt.Sprintf("%d", v)
	case float32, float64:
		str = fmt.Sprintf("%g", v)
	default:
		str = fmt.Sprintf("%v", v)
	}

	if opts.TruncateValues && len(str) > opts.MaxValueLength {
		if utf8.ValidString(str) {
			runes := []rune(str)
			if len(runes) > opts.MaxValueLength-3 {
				str = string(runes[:opts.MaxValueLength-3]) + "..."
			}
		} else if len(str) > opts.MaxValueLength-3 {
			str = str[:opts.MaxValueLength-3] + "..."
		}
	}

	return str
}

// CSVFormatter implements CSV output formatting
type CSVFormatter struct {
	Options *FormatterOptions
}

// NewCSVFormatter creates a new CSV formatter with options
func NewCSVFormatter(opts *FormatterOptions) *CSVFormatter {
	if opts == nil {
		opts = DefaultFormatterOptions()
	}
	return &CSVFormatter{Options: opts}
}

// Format formats a table as CSV
func (f *CSVFormatter) Format(t *tables.Table, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = f.Options.CSVDelimiter

	cols := t.Columns()
	if err := csvWriter.Write(cols); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range t.Rows() {
		record := make([]string, len(cols))
		for i, col := range cols {
			record[i] = formatValue(row[col], f.Options)
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// JSONFormatter implements JSON output formatting
type JSONFormatter struct {
	Options *FormatterOptions
}

// NewJSONFormatter creates a new JSON formatter with options
func NewJSONFormatter(opts *FormatterOptions) *JSONFormatter {
	if opts == nil {
		opts = DefaultFormatterOptions()
	}
	return &JSONFormatter{Options: opts}
}

// Format formats a table as JSON
func (f *JSONFormatter) Format(t *tables.Table, writer io.Writer) error {
	output := map[string]interface{}{
		"columns": t.Columns(),
		"rows":    t.Rows(),
	}

	encoder := json.NewEncoder(writer)
	if f.Options.JSONPretty {
		encoder.SetIndent("", f.Options.JSONIndent)
	}

	if err := encoder.Encode(output); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// TableFormatter renders an aligned text table
type TableFormatter struct {
	Options *FormatterOptions
}

// NewTableFormatter creates a new text table formatter with options
func NewTableFormatter(opts *FormatterOptions) *TableFormatter {
	if opts == nil {
		opts = DefaultFormatterOptions()
	}
	return &TableFormatter{Options: opts}
}

// Format formats a table as aligned text columns
func (f *TableFormatter) Format(t *tables.Table, writer io.Writer) error {
	w := tabwriter.NewWriter(writer, 0, 4, f.Options.TablePadding+1, ' ', 0)

	cols := t.Columns()
	fmt.Fprintln(w, strings.Join(cols, "\t"))

	underlines := make([]string, len(cols))
	for i, col := range cols {
		underlines[i] = strings.Repeat("-", len(col))
	}
	fmt.Fprintln(w, strings.Join(underlines, "\t"))

	for _, row := range t.Rows() {
		cells := make([]string, len(cols))
		for i, col := range cols {
			cells[i] = formatValue(row[col], f.Options)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}

	return w.Flush()
}
