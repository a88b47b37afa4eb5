// Package tui renders the terminal output of the steam-mirror commands.
package tui

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

var (
	HasTTY = isatty.IsTerminal(os.Stdout.Fd())
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
