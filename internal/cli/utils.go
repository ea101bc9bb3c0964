// Package cli provides CLI utilities for pdfmark.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/hyperjump/pdfmark/internal/models"
	"github.com/hyperjump/pdfmark/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json"; anything else is an error.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// WriteDocuments writes a document listing to w in the given format.
func WriteDocuments(w io.Writer, docs []*models.Document, format OutputFormat) error {
	if format == OutputJSON {
		if docs == nil {
			docs = []*models.Document{}
		}
		return writeJSON(w, map[string]interface{}{"documents": docs})
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents.")
		return nil
	}
	fmt.Fprintf(w, "%-36s  %-19s  %5s  %s\n", "ID", "UPLOADED", "NOTES", "NAME")
	for _, d := range docs {
		fmt.Fprintf(w, "%-36s  %-19s  %5d  %s\n",
			d.ID, d.UploadedAt.Local().Format("2006-01-02 15:04:05"), d.AnnotationMap.Count(), utils.Truncate(d.OriginalName, 60))
	}
	return nil
}

// WriteDocument writes the details of one document, including per-page annotation counts.
func WriteDocument(w io.Writer, doc *models.Document, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, doc)
	}
	fmt.Fprintf(w, "ID:        %s\n", doc.ID)
	fmt.Fprintf(w, "Name:      %s\n", doc.OriginalName)
	fmt.Fprintf(w, "Uploaded:  %s\n", doc.UploadedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Location:  %s\n", doc.PublicURL)
	pages := make([]int, 0, len(doc.AnnotationMap))
	for p := range doc.AnnotationMap {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	fmt.Fprintf(w, "Notes:     %d\n", doc.AnnotationMap.Count())
	for _, p := range pages {
		fmt.Fprintf(w, "  page %-4d %d\n", p, len(doc.AnnotationMap[p]))
	}
	return nil
}

// Status is the server's status report.
type Status struct {
	Documents      int64                  `json:"documents"`
	Config         map[string]interface{} `json:"config,omitempty"`
	DiskUsageBytes int64                  `json:"disk_usage_bytes,omitempty"`
}

// WriteStatus writes a status report to w in the given format.
func WriteStatus(w io.Writer, s *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "Documents:   %d\n", s.Documents)
	if s.DiskUsageBytes > 0 {
		fmt.Fprintf(w, "Disk usage:  %s\n", FormatBytes(s.DiskUsageBytes))
	}
	if len(s.Config) > 0 {
		keys := make([]string, 0, len(s.Config))
		for k := range s.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "Config:")
		for _, k := range keys {
			fmt.Fprintf(w, "  %-16s %v\n", k+":", s.Config[k])
		}
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
