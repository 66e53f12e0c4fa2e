package watch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/runlet/internal/events"
)

// maxOutputTail caps how much per-run output the TUI retains.
const maxOutputTail = 64 * 1024

// RunState is the watcher's view of one run, assembled from events.
type RunState struct {
	ID        string
	Argv      []string
	Status    string // running, succeeded, failed, timed out
	ExitCode  int
	Error     string
	StartedAt time.Time
	Duration  string
	Output    []byte
}

// runList holds runs newest-first with a stable order for selection.
type runList struct {
	byID  map[string]*RunState
	order []string
}

func newRunList() *runList {
	return &runList{byID: make(map[string]*RunState)}
}

func (l *runList) get(id string) *RunState { return l.byID[id] }

func (l *runList) at(i int) *RunState {
	if i < 0 || i >= len(l.order) {
		return nil
	}
	return l.byID[l.order[i]]
}

func (l *runList) len() int { return len(l.order) }

// apply folds one event into the run list. Reports whether the run with
// the given ID changed, so the model can refresh the output viewport.
func (l *runList) apply(e events.Event) string {
	switch e.Type {
	case events.TypeRunStarted:
		var p events.RunStarted
		if json.Unmarshal(e.Data, &p) != nil || p.RunID == "" {
			return ""
		}
		if _, ok := l.byID[p.RunID]; !ok {
			l.order = append([]string{p.RunID}, l.order...)
		}
		l.byID[p.RunID] = &RunState{
			ID:        p.RunID,
			Argv:      p.Argv,
			Status:    "running",
			StartedAt: e.At,
		}
		return p.RunID

	case events.TypeRunOutput:
		var p events.RunOutput
		if json.Unmarshal(e.Data, &p) != nil {
			return ""
		}
		run := l.byID[p.RunID]
		if run == nil {
			return ""
		}
		run.Output = append(run.Output, p.Chunk...)
		if len(run.Output) > maxOutputTail {
			run.Output = run.Output[len(run.Output)-maxOutputTail:]
		}
		return p.RunID

	case events.TypeRunFinished:
		var p events.RunFinished
		if json.Unmarshal(e.Data, &p) != nil {
			return ""
		}
		run := l.byID[p.RunID]
		if run == nil {
			return ""
		}
		run.ExitCode = p.ExitCode
		run.Duration = p.Duration
		if p.ExitCode == 0 {
			run.Status = "succeeded"
		} else {
			run.Status = "failed"
		}
		return p.RunID

	case events.TypeRunFailed:
		var p events.RunFailed
		if json.Unmarshal(e.Data, &p) != nil {
			return ""
		}
		run := l.byID[p.RunID]
		if run == nil {
			return ""
		}
		run.Error = p.Error
		if strings.Contains(p.Error, "deadline exceeded") {
			run.Status = "timed out"
		} else {
			run.Status = "failed"
		}
		return p.RunID
	}
	return ""
}

func renderRuns(l *runList, selected int, theme Theme, width int) string {
	innerWidth := width - 4

	if l.len() == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("RUNS"),
			theme.Dim.Render("  No runs yet. Submit one with: runlet run -- <command>"),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i := 0; i < l.len() && i < 8; i++ {
		run := l.at(i)
		line := formatRunLine(run, theme)
		if i == selected {
			line = theme.Selected.Render("▸ " + run.summary())
		}
		lines = append(lines, line)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("RUNS"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatRunLine(run *RunState, theme Theme) string {
	var statusStyle lipgloss.Style
	switch run.Status {
	case "running":
		statusStyle = theme.StatusRunning
	case "succeeded":
		statusStyle = theme.StatusOK
	default:
		statusStyle = theme.StatusFailed
	}
	return fmt.Sprintf("  %s %s", statusStyle.Render(fmt.Sprintf("%-10s", run.Status)), run.summary())
}

func (run *RunState) summary() string {
	id := run.ID
	if len(id) > 8 {
		id = id[:8]
	}
	cmd := strings.Join(run.Argv, " ")
	if len(cmd) > 48 {
		cmd = cmd[:48] + "…"
	}
	extra := ""
	switch {
	case run.Error != "":
		extra = " " + run.Error
	case run.Status != "running":
		extra = fmt.Sprintf(" exit=%d %s", run.ExitCode, run.Duration)
	}
	return fmt.Sprintf("[%s] %s%s", id, cmd, extra)
}
