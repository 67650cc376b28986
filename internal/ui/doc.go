// Package ui styles console output with lipgloss.
//
// [Palette] is a small stylesheet: titles, success, error, warning and help text, plus
// progress lines of the form "[step/total] message" and colored sync outcomes.
// [Default] is used by the CLI; [Plain] renders without escape codes for tests and pipes.
package ui
