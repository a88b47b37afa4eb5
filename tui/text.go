package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	textStyleColor  = lipgloss.AdaptiveColor{Light: "#36EEE0", Dark: "#00FFFF"}
	mutedStyleColor = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"}
	titleStyleColor = lipgloss.AdaptiveColor{Light: "#071330", Dark: "#F652A0"}
)

func Title(text string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(titleStyleColor).Render(text)
}

func Bold(text string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(textStyleColor).Render(text)
}

func Muted(text string) string {
	return lipgloss.NewStyle().Foreground(mutedStyleColor).Render(text)
}

// PadLeft right-aligns str in a column of length characters.
func PadLeft(str string, length int) string {
	if n := lipgloss.Width(str); n < length {
		return strings.Repeat(" ", length-n) + str
	}
	return str
}

// MaxWidth cuts text to width display columns, marking the cut with "...".
func MaxWidth(text string, width int) string {
	if lipgloss.Width(text) <= width {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 && lipgloss.Width(string(runes))+3 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
