package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState tracks service health from /healthz polling.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	Connected     bool
	LastCheck     time.Time
}

func renderHeader(health HealthState, hb Heartbeat, pulse Pulse, theme Theme, width int) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("HEALTHY")
	if !health.Connected {
		statusText = theme.StatusFailed.Render("CONNECTING")
	} else if health.Status != "ok" && health.Status != "" {
		statusText = theme.StatusFailed.Render("DEGRADED")
	}

	uptimeStr := formatDuration(time.Duration(health.UptimeSeconds) * time.Second)

	lastEventStr := "never"
	if !pulse.LastEvent().IsZero() {
		lastEventStr = fmt.Sprintf("%s ago", time.Since(pulse.LastEvent()).Round(time.Second))
	}

	beat := theme.Highlight.Render(hb.Current())
	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" RUNLET WATCH %s", beat)

	pad := innerWidth - lipgloss.Width(titleText) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s  up %s  last event: %s %s",
		statusText, uptimeStr, lastEventStr, pulse.Render(theme))

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
