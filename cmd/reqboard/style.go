package main

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var colorOnce sync.Once

// setupColor drops to plain text when stdout is not a terminal.
func setupColor() {
	colorOnce.Do(func() {
		if !isTerminal(os.Stdout) {
			lipgloss.SetColorProfile(termenv.Ascii)
		}
	})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func headerStyle() lipgloss.Style {
	setupColor()
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
}

func doneStyle() lipgloss.Style {
	setupColor()
	return lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
}

func mutedStyle() lipgloss.Style {
	setupColor()
	return lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
}

func errorStyle() lipgloss.Style {
	setupColor()
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
}
