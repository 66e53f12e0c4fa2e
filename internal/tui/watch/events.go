package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/runlet/internal/events"
)

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENTS"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 6 {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENTS"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.TypeRunStarted:
		typeStyle = theme.StatusRunning
	case events.TypeRunFinished:
		typeStyle = theme.StatusOK
	case events.TypeRunFailed:
		typeStyle = theme.StatusFailed
	default:
		typeStyle = theme.Dim
	}
	typeName := typeStyle.Render(fmt.Sprintf("%-13s", e.Type))

	return fmt.Sprintf("%s %s %s", ts, typeName, eventDesc(e))
}

// eventDesc pulls a short human line out of the payload.
func eventDesc(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string
	if runID, ok := data["run_id"].(string); ok {
		if len(runID) > 8 {
			runID = runID[:8]
		}
		parts = append(parts, fmt.Sprintf("[%s]", runID))
	}
	if stream, ok := data["stream"].(string); ok {
		parts = append(parts, stream)
	}
	if code, ok := data["exit_code"].(float64); ok {
		parts = append(parts, fmt.Sprintf("exit=%d", int(code)))
	}
	if errText, ok := data["error"].(string); ok {
		parts = append(parts, errText)
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "…"
		}
		return raw
	}
	return strings.Join(parts, " ")
}
