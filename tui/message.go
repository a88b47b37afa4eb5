package tui

import (
	"fmt"
	"io"

	"github.com/agentuity/steam-mirror/logger"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

var (
	messageOKColor      = lipgloss.AdaptiveColor{Light: "#009900", Dark: "#00FF00"}
	messageOKStyle      = lipgloss.NewStyle().Foreground(messageOKColor)
	messageTextColor    = lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"}
	messageTextStyle    = lipgloss.NewStyle().Foreground(messageTextColor)
	messageWarningColor = lipgloss.AdaptiveColor{Light: "#990000", Dark: "#FF0000"}
	messageWarningStyle = lipgloss.NewStyle().Foreground(messageWarningColor)
	messageSkipColor    = lipgloss.AdaptiveColor{Light: "#DE970B", Dark: "#F6BE00"}
	messageSkipStyle    = lipgloss.NewStyle().Foreground(messageSkipColor)
)

func ShowSuccess(w io.Writer, msg string, args ...any) {
	fmt.Fprintln(w, messageOKStyle.Render(" ✓ ")+messageTextStyle.Render(fmt.Sprintf(msg, args...)))
}

// ShowSkipped reports work that was not needed, usually a cache hit.
func ShowSkipped(w io.Writer, msg string, args ...any) {
	fmt.Fprintln(w, messageSkipStyle.Render(" » ")+messageTextStyle.Render(fmt.Sprintf(msg, args...)))
}

func ShowWarning(w io.Writer, msg string, args ...any) {
	fmt.Fprintln(w, messageWarningStyle.Render(" ✕ ")+messageTextStyle.Render(fmt.Sprintf(msg, args...)))
}

func ShowError(w io.Writer, msg string, args ...any) {
	fmt.Fprintln(w, messageWarningStyle.Render(" ⚠ ")+messageTextStyle.Render(fmt.Sprintf(msg, args...)))
}

// Ask asks a yes/no question. Without a terminal the default is returned.
func Ask(logger logger.Logger, title string, defaultValue bool) bool {
	if !HasTTY {
		return defaultValue
	}
	confirm := defaultValue
	if err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes!").
		Negative("No").
		Value(&confirm).
		Inline(false).
		Run(); err != nil {
		logger.Fatal("%s", err)
	}
	return confirm
}
