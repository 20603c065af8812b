package main

import (
	"errors"
	"os/exec"

	"github.com/fatih/color"
)

// FormatUserError turns an error chain into a single user-facing line,
// highlighting the part the user can act on.
func FormatUserError(err error) string {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return color.RedString("command not found: %s", execErr.Name)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return color.YellowString("child exited: %s", exitErr.String())
	}
	return err.Error()
}
