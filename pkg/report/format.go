package report

import "fmt"

// Format selects the report encoding. It implements the pflag.Value
// interface so it can back a --output-format flag directly.
type Format string

const (
	// FormatTable renders a human-readable summary table.
	FormatTable Format = "table"
	// FormatCSV writes one comma-separated row per repository.
	FormatCSV Format = "csv"
	// FormatJSON writes the rows as a JSON array.
	FormatJSON Format = "json"
)

func (f Format) String() string {
	return string(f)
}

// Set validates and stores a flag value.
func (f *Format) Set(v string) error {
	switch Format(v) {
	case FormatTable, FormatCSV, FormatJSON:
		*f = Format(v)
		return nil
	default:
		return fmt.Errorf("invalid format %q, options: table|csv|json", v)
	}
}

// Type returns the flag type name shown in usage text.
func (f *Format) Type() string {
	return "Format"
}
