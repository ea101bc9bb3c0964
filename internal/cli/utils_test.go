package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/pdfmark/internal/models"
)

func sampleDocs() []*models.Document {
	return []*models.Document{
		{
			ID:           "0b6c1a52-3f1e-4d7a-9c55-2a1f0e2d9a10",
			OriginalName: "report.pdf",
			UploadedAt:   time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
			AnnotationMap: models.AnnotationMap{
				1: {{X: 1, Y: 2, Width: 10, Height: 10, Kind: models.KindHighlight}},
				3: {{X: 5, Y: 5, Width: 6, Height: 6, Kind: models.KindMarker}, {X: 9, Y: 9, Width: 6, Height: 6, Kind: models.KindMarker}},
			},
		},
		{
			ID:            "doc-2",
			OriginalName:  strings.Repeat("x", 80) + ".pdf",
			UploadedAt:    time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC),
			AnnotationMap: models.AnnotationMap{},
		},
	}
}

func TestWriteDocuments_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDocuments(&buf, sampleDocs(), OutputJSON); err != nil {
		t.Fatalf("WriteDocuments(json): %v", err)
	}
	var decoded struct {
		Documents []*models.Document `json:"documents"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if len(decoded.Documents) != 2 || decoded.Documents[0].OriginalName != "report.pdf" {
		t.Errorf("decoded documents = %+v", decoded.Documents)
	}
	if got := decoded.Documents[0].AnnotationMap.Count(); got != 3 {
		t.Errorf("annotation count = %d, want 3", got)
	}
}

func TestWriteDocuments_JSON_empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDocuments(&buf, nil, OutputJSON); err != nil {
		t.Fatalf("WriteDocuments(json): %v", err)
	}
	if !strings.Contains(buf.String(), `"documents": []`) {
		t.Errorf("nil listing should encode as an empty array; got %s", buf.String())
	}
}

func TestWriteDocuments_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDocuments(&buf, sampleDocs(), OutputText); err != nil {
		t.Fatalf("WriteDocuments(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{"ID", "NOTES", "0b6c1a52-3f1e-4d7a-9c55-2a1f0e2d9a10", "report.pdf", "doc-2", "..."} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines != 3 {
		t.Errorf("expected header plus 2 rows, got %d lines:\n%s", lines, out)
	}
}

func TestWriteDocuments_text_empty(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteDocuments(&buf, nil, OutputText)
	if got := buf.String(); got != "No documents.\n" {
		t.Errorf("got %q", got)
	}
}

func TestWriteDocument_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDocument(&buf, sampleDocs()[0], OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"Name:      report.pdf", "Notes:     3", "page 1    1", "page 3    2"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
	if strings.Index(out, "page 1") > strings.Index(out, "page 3") {
		t.Errorf("pages should be listed in order:\n%s", out)
	}
}

func TestWriteStatus(t *testing.T) {
	s := &Status{
		Documents:      4,
		DiskUsageBytes: 3 * 1024 * 1024,
		Config:         map[string]interface{}{"storage_driver": "sqlite", "auth_mode": "local"},
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, s, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"Documents:   4", "Disk usage:  3.0 MiB", "auth_mode:", "storage_driver:", "sqlite"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
	if strings.Index(out, "auth_mode") > strings.Index(out, "storage_driver") {
		t.Errorf("config keys should be sorted:\n%s", out)
	}

	buf.Reset()
	if err := WriteStatus(&buf, s, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded Status
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Documents != 4 || decoded.DiskUsageBytes != s.DiskUsageBytes {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"text", OutputText, false},
		{"json", OutputJSON, false},
		{"yaml", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOutputFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOutputFormat(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024 * 1024, "5.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
