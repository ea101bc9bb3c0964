package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		s      string
		maxLen int
		want   string
	}{
		{"empty", "", 5, ""},
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"long", "hello world.pdf", 5, "hello..."},
		{"maxLen zero", "x", 0, "x"},
		{"maxLen negative", "ab", -1, "ab"},
		{"multibyte kept whole", "日本語の資料.pdf", 3, "日本語..."},
		{"multibyte fits in runes", "résumé", 6, "résumé"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.s, tt.maxLen); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
			}
		})
	}
}
