package tui

import (
	"context"

	"github.com/charmbracelet/huh/spinner"
)

// ShowSpinner displays a spinner titled title while action runs. Without a
// terminal action just runs.
func ShowSpinner(ctx context.Context, title string, action func() error) error {
	if !HasTTY {
		return action()
	}
	var actionErr error
	err := spinner.New().
		Context(ctx).
		Title(title).
		Action(func() { actionErr = action() }).
		Run()
	if err != nil {
		return err
	}
	return actionErr
}
