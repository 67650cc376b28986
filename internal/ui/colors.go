package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Painter colors text with [lipgloss] styles.
type Painter interface {
	On(string, lipgloss.Color) string // background
	As(string, lipgloss.Color) string // foreground
}

// Palette is a stylesheet built with named [lipgloss.Style] fields.
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	plain bool
}

// Default is the palette used by the CLI.
var Default = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// Plain returns a palette that leaves text untouched.
func Plain() *Palette {
	return &Palette{plain: true}
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

func (p *Palette) render(s lipgloss.Style, text string) string {
	if p.plain {
		return text
	}
	return s.Render(text)
}

func (p *Palette) On(text string, c lipgloss.Color) string {
	if p.plain {
		return text
	}
	return lipgloss.NewStyle().Background(c).Render(text)
}

func (p *Palette) As(text string, c lipgloss.Color) string {
	if p.plain {
		return text
	}
	return lipgloss.NewStyle().Foreground(c).Render(text)
}

func (p *Palette) Title(text string) string   { return p.render(p.title, text) }
func (p *Palette) Success(text string) string { return p.render(p.ok, text) }
func (p *Palette) Error(text string) string   { return p.render(p.err, text) }
func (p *Palette) Warn(text string) string    { return p.render(p.warn, text) }
func (p *Palette) Help(text string) string    { return p.render(p.help, text) }

// Header renders title underlined to its own width.
func (p *Palette) Header(title string) string {
	return p.Title(title) + "\n" + p.Help(strings.Repeat("─", lipgloss.Width(title)))
}

// Progress renders "[step/total] message". A zero total drops the counter.
func (p *Palette) Progress(step, total int, message string) string {
	if total <= 0 {
		return message
	}
	return p.Help(fmt.Sprintf("[%d/%d]", step, total)) + " " + message
}

// Outcome colors a sync outcome name.
func (p *Palette) Outcome(outcome string) string {
	label := fmt.Sprintf("%-9s", outcome)
	switch outcome {
	case "added", "liked":
		return p.Success(label)
	case "not found", "skipped":
		return p.Warn(label)
	case "failed":
		return p.Error(label)
	default:
		return p.Help(label)
	}
}

// KeyValue renders aligned "key: value" lines.
func (p *Palette) KeyValue(pairs ...[2]string) string {
	width := 0
	for _, kv := range pairs {
		width = max(width, len(kv[0]))
	}

	var b strings.Builder
	for _, kv := range pairs {
		b.WriteString(p.Help(fmt.Sprintf("%-*s", width+1, kv[0]+":")))
		b.WriteString(" ")
		b.WriteString(kv[1])
		b.WriteString("\n")
	}
	return b.String()
}
var _ Painter = (*Palette)(nil)
