package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
)

// ANSI color codes for status output (used when Colored=true).
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[0;31m"
	ansiYellow = "\033[0;33m"
	ansiGreen  = "\033[0;32m"
)

// TableOptions controls which columns RenderTable renders and how status is coloured.
type TableOptions struct {
	// Colored wraps status labels with ANSI codes. Default false (CI-safe).
	Colored bool

	// IncludeFix adds a RECOMMENDED FIX column.
	IncludeFix bool

	// HidePassed drops PASS rows.
	HidePassed bool

	// DetailsWidth is the maximum rune width of the DETAILS column.
	// Defaults to 70.
	DetailsWidth int
}

func statusColor(st models.Status) string {
	switch st {
	case models.StatusFail:
		return ansiRed
	case models.StatusWarn:
		return ansiYellow
	case models.StatusPass:
		return ansiGreen
	default:
		return ""
	}
}

// ColorStatus wraps a status with ANSI codes when colored is true.
// When colored is false the string is returned unchanged (CI-safe default).
func ColorStatus(st models.Status, colored bool) string {
	s := string(st)
	code := statusColor(st)
	if !colored || code == "" {
		return s
	}
	return code + s + ansiReset
}

// ShortenMessage truncates msg to at most max runes, appending "..." when truncated.
// max is treated as at least 4 to guarantee space for the ellipsis.
func ShortenMessage(msg string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(msg)
	if len(runes) <= max {
		return msg
	}
	return string(runes[:max-3]) + "..."
}

// statusCell returns the status padded to width characters.
// ANSI codes wrap only the text so trailing padding stays plain and columns
// line up on terminals that do not render colour.
func statusCell(st models.Status, width int, colored bool) string {
	text := string(st)
	code := statusColor(st)
	if !colored || code == "" {
		return fmt.Sprintf("%-*s", width, text)
	}
	spaces := max(width-len(text), 0)
	return code + text + ansiReset + strings.Repeat(" ", spaces)
}

// truncateField shortens s to at most max runes for ID/label columns.
func truncateField(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

// RenderTable writes a formatted findings table to w.
//
// Column order:
//
//	STATUS  ACCOUNT ID  ACCOUNT NAME  CHECK  DETAILS  [RECOMMENDED FIX]
func RenderTable(w io.Writer, rows []Row, opts TableOptions) {
	if opts.DetailsWidth <= 0 {
		opts.DetailsWidth = 70
	}

	if opts.HidePassed {
		kept := rows[:0:0]
		for _, r := range rows {
			if r.Status != models.StatusPass {
				kept = append(kept, r)
			}
		}
		rows = kept
	}

	if len(rows) == 0 {
		fmt.Fprintln(w, "No findings.")
		return
	}

	const (
		wStatus    = 6
		wAccountID = 12
		wName      = 20
		wCheck     = 20
	)

	var hb strings.Builder
	hb.WriteString(fmt.Sprintf("%-*s", wStatus, "STATUS"))
	hb.WriteString(fmt.Sprintf("  %-*s", wAccountID, "ACCOUNT ID"))
	hb.WriteString(fmt.Sprintf("  %-*s", wName, "ACCOUNT NAME"))
	hb.WriteString(fmt.Sprintf("  %-*s", wCheck, "CHECK"))
	hb.WriteString(fmt.Sprintf("  %-*s", opts.DetailsWidth, "DETAILS"))
	if opts.IncludeFix {
		hb.WriteString("  RECOMMENDED FIX")
	}
	header := strings.TrimRight(hb.String(), " ")

	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, r := range rows {
		var rb strings.Builder
		rb.WriteString(statusCell(r.Status, wStatus, opts.Colored))
		rb.WriteString(fmt.Sprintf("  %-*s", wAccountID, truncateField(r.AccountID, wAccountID)))
		rb.WriteString(fmt.Sprintf("  %-*s", wName, truncateField(r.AccountName, wName)))
		rb.WriteString(fmt.Sprintf("  %-*s", wCheck, truncateField(checkLabel(r), wCheck)))
		rb.WriteString(fmt.Sprintf("  %-*s", opts.DetailsWidth, ShortenMessage(r.Details, opts.DetailsWidth)))
		if opts.IncludeFix {
			rb.WriteString("  " + r.RecommendedFix)
		}
		fmt.Fprintln(w, strings.TrimRight(rb.String(), " "))
	}
}

// checkLabel recovers the check name from a row title of the form
// "[STATUS] CHECK - Name (ID)". Rows without that shape use the title as is.
func checkLabel(r Row) string {
	t := r.Title
	if i := strings.Index(t, "] "); strings.HasPrefix(t, "[") && i >= 0 {
		t = t[i+2:]
		if j := strings.Index(t, " - "); j >= 0 {
			t = t[:j]
		}
	}
	return t
}
