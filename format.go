package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/tonimelisma/cloudexplorer/internal/entity"
	"github.com/tonimelisma/cloudexplorer/internal/provider"
)

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	if !cc.Flags.Quiet {
		fmt.Fprintf(cc.Err, format, args...)
	}
}

// Size unit constants for human-readable formatting.
const (
	sizeKB = 1024
	sizeMB = 1024 * 1024
	sizeGB = 1024 * 1024 * 1024
	sizeTB = 1024 * 1024 * 1024 * 1024
)

// formatSize returns a human-readable size string (e.g. "1.2 MB").
func formatSize(bytes int64) string {
	switch {
	case bytes >= sizeTB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/float64(sizeTB))
	case bytes >= sizeGB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(sizeGB))
	case bytes >= sizeMB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(sizeMB))
	case bytes >= sizeKB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(sizeKB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// formatTime returns a compact timestamp for display, or "-" when unset.
func formatTime(t time.Time, ok bool) string {
	if !ok {
		return "-"
	}

	if t.Year() == time.Now().Year() {
		return t.Local().Format("Jan _2 15:04")
	}

	return t.Local().Format("Jan _2  2006")
}

// printTable writes aligned columns to w. headers and each row must have
// the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = visibleLen(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], visibleLen(cell))
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = cell + strings.Repeat(" ", widths[i]-visibleLen(cell))
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}

// visibleLen counts the runes of s outside ANSI escape sequences.
func visibleLen(s string) int {
	n := 0
	inEscape := false

	for _, r := range s {
		switch {
		case inEscape:
			inEscape = r != 'm'
		case r == '\x1b':
			inEscape = true
		default:
			n++
		}
	}

	return n
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

// entryJSON is the JSON output schema for one entry.
type entryJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	Kind        string `json:"kind"`
	ReadOnly    bool   `json:"read_only"`
	Size        *int64 `json:"size,omitempty"`
	ETag        string `json:"etag,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	ModifiedAt  string `json:"modified_at,omitempty"`
}

func toEntryJSON(e entity.Entry) entryJSON {
	out := entryJSON{
		ID:       e.ID(),
		Name:     e.Name(),
		Path:     e.FullPath(),
		Kind:     e.Kind().String(),
		ReadOnly: e.IsReadOnly(),
	}

	if t, ok := e.CreatedAt(); ok {
		out.CreatedAt = t.UTC().Format(time.RFC3339)
	}

	if t, ok := e.ModifiedAt(); ok {
		out.ModifiedAt = t.UTC().Format(time.RFC3339)
	}

	if f, ok := entity.AsFile(e); ok {
		size := f.Size()
		out.Size = &size
		out.ETag = f.ETag()
		out.ContentType = f.ContentType()
		out.Description, _ = f.Field(entity.FieldDescription)
	}

	return out
}

// entryRow formats e for the ls table.
func entryRow(e entity.Entry) []string {
	name := e.Name()
	size := "-"

	if e.IsDir() {
		name += "/"
	} else if f, ok := entity.AsFile(e); ok {
		size = formatSize(f.Size())
	}

	mode := "rw"
	if e.IsReadOnly() {
		mode = "r-"
	}

	return []string{mode, name, size, formatTime(e.ModifiedAt())}
}

// isTerminal reports whether w writes to a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// swatch renders text in c using ANSI truecolor when color is enabled.
// NO_COLOR disables it.
func swatch(text string, c provider.Color, color bool) string {
	if !color || os.Getenv("NO_COLOR") != "" {
		return text
	}

	return fmt.Sprintf("\x1b[38;2;%d;%d;%dm%s\x1b[0m", c.R, c.G, c.B, text)
}
