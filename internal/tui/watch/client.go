package watch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/runlet/internal/events"
)

// --- Message types ---

type eventMsg events.Event

type healthMsg struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{}
type reconnectMsg struct{}

// --- Commands ---

// subscribeToEvents connects to the SSE /v1/events endpoint and feeds parsed
// events into ch. Delivers sseDisconnectedMsg when the connection drops.
// lastID resumes the stream so a reconnect replays missed events.
func subscribeToEvents(apiURL, apiKey string, lastID int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequest(http.MethodGet, apiURL+"/v1/events", nil)
		if err != nil {
			return errMsg(err)
		}
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}
		if lastID > 0 {
			req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return sseDisconnectedMsg{}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg(fmt.Errorf("event stream: HTTP %d", resp.StatusCode))
		}

		scanner := bufio.NewScanner(resp.Body)
		var id int64
		var typ, data string

		for scanner.Scan() {
			line := scanner.Text()

			if line == "" {
				if data != "" {
					ch <- events.Event{
						ID:   id,
						Type: typ,
						At:   time.Now(),
						Data: []byte(data),
					}
					id, typ, data = 0, "", ""
				}
				continue
			}

			switch {
			case strings.HasPrefix(line, "id: "):
				if n, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
					id = n
				}
			case strings.HasPrefix(line, "event: "):
				typ = line[7:]
			case strings.HasPrefix(line, "data: "):
				data = line[6:]
			}
		}

		return sseDisconnectedMsg{}
	}
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

// fetchHealth queries the /healthz endpoint.
func fetchHealth(apiURL, apiKey string) tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequest(http.MethodGet, apiURL+"/healthz", nil)
	if err != nil {
		return errMsg(err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg(err)
	}
	return h
}
