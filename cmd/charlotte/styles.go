package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/haasonsaas/charlotte/pkg/models"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	personaStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	toolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

// printMessage renders one chat message for the terminal.
func printMessage(w io.Writer, personaName string, m models.ChatMessage) {
	switch m.Origin {
	case models.OriginTool:
		if m.ToolCall == nil {
			return
		}
		fmt.Fprintln(w, toolStyle.Render(fmt.Sprintf("  [%s %s] %s", m.ToolCall.Name, m.ToolCall.Input, oneLine(m.ToolCall.Output, 120))))
	case models.OriginUser:
		fmt.Fprintf(w, "%s %s\n", userStyle.Render("you:"), m.Content)
	case models.OriginSystem:
		fmt.Fprintln(w, toolStyle.Render(m.Content))
	default:
		fmt.Fprintf(w, "%s %s\n", personaStyle.Render(personaName+":"), m.Content)
	}
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		return string(r[:max]) + "..."
	}
	return s
}

// newTable returns a tabwriter for aligned list output.
func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printPage(w io.Writer, page, totalPages int) {
	if totalPages > 1 {
		fmt.Fprintln(w, idStyle.Render(fmt.Sprintf("page %d of %d", page, totalPages)))
	}
}
