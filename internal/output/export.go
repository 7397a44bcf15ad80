package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
)

// Format selects how a report is written.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatCSV, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want table, json, csv or yaml)", s)
	}
}

// CSVHeader is the first record of every CSV export.
var CSVHeader = []string{"Finding Title", "Details", "Recommended Fix", "Status", "Account ID", "Account Name"}

// WriteCSV writes rows with CSVHeader. Fields containing a comma, quote or
// line break are quoted and inner quotes doubled.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		rec := []string{r.Title, r.Details, r.RecommendedFix, string(r.Status), r.AccountID, r.AccountName}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// WriteYAML writes v as a YAML document.
func WriteYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// Render writes the outcome of a run in the requested format.
//
// Table and CSV output are row based and include the discovery failure row
// when runErr is set and nothing was assessed. JSON and YAML serialise the
// full result.
func Render(w io.Writer, format Format, res *models.AssessmentResult, runErr error, opts TableOptions) error {
	switch format {
	case FormatTable, "":
		RenderTable(w, ResultRows(res, runErr), opts)
		return nil
	case FormatCSV:
		return WriteCSV(w, ResultRows(res, runErr))
	case FormatJSON:
		return WriteJSON(w, res)
	case FormatYAML:
		return WriteYAML(w, res)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
