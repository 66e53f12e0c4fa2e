package watch

import (
	"strings"
	"time"
)

// Pulse is an activity indicator driven by incoming events. It lights up
// when events arrive and fades as the stream goes quiet.
type Pulse struct {
	level     int
	lastEvent time.Time
}

func (p *Pulse) OnEvent() {
	p.level = 4
	p.lastEvent = time.Now()
}

// Decay fades the pulse based on time since the last event.
func (p *Pulse) Decay() {
	if p.level == 0 {
		return
	}
	elapsed := time.Since(p.lastEvent)
	switch {
	case elapsed > 8*time.Second:
		p.level = 0
	case elapsed > 6*time.Second:
		p.level = 1
	case elapsed > 4*time.Second:
		p.level = 2
	case elapsed > 2*time.Second:
		p.level = 3
	}
}

func (p Pulse) Render(theme Theme) string {
	var b strings.Builder
	for i := 0; i < 4; i++ {
		if i < p.level {
			b.WriteString(theme.TickerActive.Render("●"))
		} else {
			b.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return b.String()
}

func (p Pulse) LastEvent() time.Time {
	return p.lastEvent
}

// Heartbeat alternates frames once per second so a frozen UI is visible.
type Heartbeat struct {
	frames []string
	index  int
}

func NewHeartbeat() Heartbeat {
	return Heartbeat{frames: []string{"◐", "◓", "◑", "◒"}}
}

func (h *Heartbeat) Beat() {
	h.index = (h.index + 1) % len(h.frames)
}

func (h Heartbeat) Current() string {
	return h.frames[h.index]
}
