// Package cli renders run output for the terminal: summaries, progress bars
// and interrupt notices.
package cli

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette. Outcome colors follow the run grading: teal for successful,
// amber for degraded, red for failed.
var (
	AccentColor   = lipgloss.Color("#5B8DEF")
	HealthyColor  = lipgloss.Color("#4ECDC4")
	DegradedColor = lipgloss.Color("#FFE66D")
	FailedColor   = lipgloss.Color("#FF6B6B")
	NoticeColor   = lipgloss.Color("#95E1D3")
	MutedColor    = lipgloss.Color("#666666")
	FrameColor    = lipgloss.Color("#333")
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(AccentColor).MarginBottom(1)
	SuccessStyle = lipgloss.NewStyle().Foreground(HealthyColor)
	WarningStyle = lipgloss.NewStyle().Foreground(DegradedColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(FailedColor)
	InfoStyle    = lipgloss.NewStyle().Foreground(NoticeColor)
	SubtleStyle  = lipgloss.NewStyle().Foreground(MutedColor)
	BoldStyle    = lipgloss.NewStyle().Bold(true)

	// BoxStyle frames the run summary.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(FrameColor).
			Padding(1, 2)

	// TableHeaderStyle underlines the first row of a table.
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(FrameColor)

	TableCellStyle = lipgloss.NewStyle().PaddingRight(2)
)

// Icons.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	FlowIcon    = "🏦"
	ChartIcon   = "📊"
	FolderIcon  = "🗄️"
)

func badge(style lipgloss.Style, icon, message string) string {
	return style.Render(icon + " " + message)
}

// FormatSuccess prefixes message with a check mark.
func FormatSuccess(message string) string { return badge(SuccessStyle, SuccessIcon, message) }

// FormatError prefixes message with a cross.
func FormatError(message string) string { return badge(ErrorStyle, ErrorIcon, message) }

// FormatWarning prefixes message with a warning sign.
func FormatWarning(message string) string { return badge(WarningStyle, WarningIcon, message) }

// FormatInfo prefixes message with an info sign.
func FormatInfo(message string) string { return badge(InfoStyle, InfoIcon, message) }

// FormatTitle renders a section title with the bank icon.
func FormatTitle(title string) string { return badge(TitleStyle, FlowIcon, title) }

// RenderBox frames content under a title.
func RenderBox(title, content string) string {
	heading := TitleStyle.UnsetMargins().Render(title)
	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, heading, content))
}
