package events

import (
	"encoding/json"
	"testing"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewHub(8)

	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(TypeRunStarted, RunStarted{RunID: "r1", Argv: []string{"true"}})

	ev := <-ch
	if ev.Type != TypeRunStarted {
		t.Errorf("type = %q", ev.Type)
	}
	var payload RunStarted
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.RunID != "r1" {
		t.Errorf("run_id = %q", payload.RunID)
	}
}

func TestSnapshotSince(t *testing.T) {
	h := NewHub(4)

	for i := 0; i < 6; i++ {
		h.Publish(TypeRunOutput, RunOutput{RunID: "r1", Stream: "stdout", Chunk: "x"})
	}

	// Ring holds the last 4; IDs 3..6.
	all := h.SnapshotSince(0)
	if len(all) != 4 {
		t.Fatalf("snapshot size = %d, want 4", len(all))
	}
	if all[0].ID != 3 || all[3].ID != 6 {
		t.Errorf("snapshot ids = %d..%d, want 3..6", all[0].ID, all[3].ID)
	}

	since := h.SnapshotSince(5)
	if len(since) != 1 || since[0].ID != 6 {
		t.Errorf("SnapshotSince(5) = %+v", since)
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	h := NewHub(4)

	_, cancel := h.Subscribe()
	defer cancel()

	// Never read from ch; publishing more than the channel buffer must
	// not deadlock.
	for i := 0; i < 300; i++ {
		h.Publish(TypeRunOutput, nil)
	}
}
