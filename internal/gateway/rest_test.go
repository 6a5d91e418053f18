package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nidhogg/minuku/internal/record"
	"go.uber.org/zap"
)

func TestRESTAdapterReplies(t *testing.T) {
	a := NewRESTAdapter(time.Second, zap.NewNop())
	a.OnMessage(func(msg *InboundMessage) {
		a.Send(context.Background(), &OutboundMessage{
			Platform:  "rest",
			ChannelID: msg.ChannelID,
			Content:   "echo: " + msg.Content,
		})
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(`{"user_id":"u1","content":"hello"}`))
	a.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var out OutboundMessage
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Content != "echo: hello" {
		t.Fatalf("reply = %q", out.Content)
	}
}

func TestRESTAdapterTimeout(t *testing.T) {
	a := NewRESTAdapter(20*time.Millisecond, zap.NewNop())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(`{"content":"anyone?"}`))
	a.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRESTAdapterRejectsEmpty(t *testing.T) {
	a := NewRESTAdapter(0, zap.NewNop())
	for _, body := range []string{`{}`, `not json`} {
		rec := httptest.NewRecorder()
		a.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", body, rec.Code)
		}
	}
	if err := a.Send(context.Background(), &OutboundMessage{ChannelID: "gone"}); err == nil {
		t.Fatal("send to unknown channel accepted")
	}
}

func moodReplyAdapter(t *testing.T) *RESTAdapter {
	t.Helper()
	m, err := record.NewMood(80, 52, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	a := NewRESTAdapter(time.Second, zap.NewNop())
	a.OnMessage(func(msg *InboundMessage) {
		a.Send(context.Background(), &OutboundMessage{
			Platform:  "rest",
			ChannelID: msg.ChannelID,
			Content:   "Recorded mood 80, energy 52.",
			Records:   []record.Envelope{record.Wrap(m)},
		})
	})
	return a
}

func TestRESTAdapterSummarisesRecords(t *testing.T) {
	a := moodReplyAdapter(t)
	rec := httptest.NewRecorder()
	a.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(`{"content":"/mood 80 52"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	var out RESTReply
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Records) != 1 || out.Records[0].Type != record.TypeMood {
		t.Fatalf("records = %+v", out.Records)
	}
	if len(out.Summary) != 1 || out.Summary[0] != "mood 80, energy 52 (Mar 1 12:00)" {
		t.Fatalf("summary = %q", out.Summary)
	}
}

func TestRESTAdapterTextFormat(t *testing.T) {
	a := moodReplyAdapter(t)
	rec := httptest.NewRecorder()
	a.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/message?format=text", strings.NewReader(`{"content":"/mood 80 52"}`)))

	want := "Recorded mood 80, energy 52.\n  mood 80, energy 52 (Mar 1 12:00)\n"
	if rec.Body.String() != want {
		t.Fatalf("body = %q, want %q", rec.Body.String(), want)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
}

func TestRESTAdapterDeliversPromptsToWaitingCallers(t *testing.T) {
	a := NewRESTAdapter(time.Second, zap.NewNop())
	place := record.NewSemanticLocation("work", nil)
	a.OnMessage(func(*InboundMessage) {
		if st := a.Status(); st.Details != "1 waiting" {
			t.Errorf("status = %+v", st)
		}
		a.Broadcast(context.Background(), &BroadcastMessage{
			Type:    BroadcastAction,
			Title:   "New place",
			Content: "You arrived at work. What brings you here?",
			Records: []record.Envelope{record.Wrap(place)},
		})
	})

	rec := httptest.NewRecorder()
	a.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(`{"content":"anything new?"}`)))
	var out RESTReply
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.Content, "[action] New place") {
		t.Fatalf("content = %q", out.Content)
	}
	if len(out.Summary) != 1 || !strings.HasPrefix(out.Summary[0], "at work (") {
		t.Fatalf("summary = %q", out.Summary)
	}
	if st := a.Status(); st.Details != "0 waiting" {
		t.Fatalf("status after reply = %+v", st)
	}
}
