package relay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nidhogg/minuku/internal/event"
	"github.com/nidhogg/minuku/internal/record"
)

func TestFromAction(t *testing.T) {
	home := record.NewSemanticLocation("home", nil)
	a := event.NewAction("ASK_ABOUT_PLACE", "place_changed", home)
	m := FromAction(a)

	if m.ID != a.ID() || m.Name != a.Name || m.Situation != a.Situation || !m.OccurredAt.Equal(a.OccurredAt()) {
		t.Fatalf("message = %+v", m)
	}
	if len(m.Records) != 1 || m.Records[0].Data["place"] != "home" {
		t.Fatalf("records = %+v", m.Records)
	}
}

func TestMessageJSONOmitsStreamID(t *testing.T) {
	m := &Message{ID: "x", Name: "REPORT_MOOD", OccurredAt: time.Unix(0, 0).UTC(), StreamID: "1-0"}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	json.Unmarshal(data, &raw)
	if _, ok := raw["StreamID"]; ok {
		t.Fatalf("stream id serialised: %s", data)
	}
	if raw["name"] != "REPORT_MOOD" {
		t.Fatalf("json = %s", data)
	}
}
