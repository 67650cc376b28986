package ui

import (
	"strings"
	"testing"
)

func TestPalette(t *testing.T) {
	p := Plain()

	t.Run("Progress", func(t *testing.T) {
		tests := []struct {
			step, total int
			want        string
		}{
			{step: 2, total: 5, want: "[2/5] syncing"},
			{step: 0, total: 0, want: "syncing"},
		}
		for _, tt := range tests {
			if got := p.Progress(tt.step, tt.total, "syncing"); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		}
	})

	t.Run("Outcome pads labels", func(t *testing.T) {
		if got := p.Outcome("added"); got != "added    " {
			t.Errorf("unexpected label %q", got)
		}
		if got := p.Outcome("not found"); got != "not found" {
			t.Errorf("unexpected label %q", got)
		}
	})

	t.Run("KeyValue aligns keys", func(t *testing.T) {
		got := p.KeyValue([2]string{"Added", "3"}, [2]string{"Not found", "1"})
		want := "Added:     3\nNot found: 1\n"
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("Header underlines the title", func(t *testing.T) {
		lines := strings.Split(p.Header("Sync"), "\n")
		if len(lines) != 2 || lines[1] != "────" {
			t.Errorf("unexpected header %q", lines)
		}
	})

	t.Run("Default keeps the text", func(t *testing.T) {
		if got := Default.Success("ok"); !strings.Contains(got, "ok") {
			t.Errorf("expected text to survive styling, got %q", got)
		}
	})
}
