package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// InitColor picks the lipgloss color profile from the environment.
// NO_COLOR disables styling; CLICOLOR_FORCE=1 or COLORTERM=truecolor forces
// full color even when stdout is not a terminal, e.g. under `watch` or in CI.
// Without any of them the profile is detected from the terminal.
func InitColor() {
	switch {
	case os.Getenv("NO_COLOR") != "":
		lipgloss.SetColorProfile(termenv.Ascii)
	case os.Getenv("CLICOLOR_FORCE") == "1" || os.Getenv("COLORTERM") == "truecolor":
		lipgloss.SetColorProfile(termenv.TrueColor)
	}
}
