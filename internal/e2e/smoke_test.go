//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("MINUKU_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "server at %s not ready after 30s\n", baseURL)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

type messageRequest struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Content  string `json:"content"`
}

type messageResponse struct {
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

type action struct {
	Name    string `json:"name"`
	Records []struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	} `json:"records"`
}

func do(t *testing.T, method, path string, body interface{}) []byte {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, baseURL+path, r)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if resp.StatusCode >= 300 {
		t.Fatalf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, raw)
	}
	return raw
}

// sendMessage POSTs a chat message through the REST gateway and returns the reply.
func sendMessage(t *testing.T, content string) string {
	t.Helper()
	raw := do(t, http.MethodPost, "/api/gateway/rest/message", messageRequest{
		UserID:   "smoke-test",
		UserName: "smokebot",
		Content:  content,
	})
	var msg messageResponse
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal response: %v (body: %s)", err, raw)
	}
	return msg.Content
}

func TestSlashHelp(t *testing.T) {
	reply := sendMessage(t, "/help")
	for _, cmd := range []string{"/mood", "/where", "/streams"} {
		if !strings.Contains(reply, cmd) {
			t.Errorf("expected /help to list %s, got: %s", cmd, reply)
		}
	}
}

func TestSlashMood(t *testing.T) {
	reply := sendMessage(t, "/mood 55 60")
	if reply != "Recorded mood 55, energy 60." {
		t.Errorf("unexpected reply: %s", reply)
	}
}

func TestSlashStreams(t *testing.T) {
	reply := sendMessage(t, "/streams")
	if !strings.Contains(reply, "mood") || !strings.Contains(reply, "semantic_location") {
		t.Errorf("expected core streams, got: %s", reply)
	}
}

func TestPlainMessageIsNoted(t *testing.T) {
	reply := sendMessage(t, "long day at the office")
	if reply != "Thanks, noted." {
		t.Errorf("unexpected reply: %s", reply)
	}
}

func TestMoodChangeFiresAction(t *testing.T) {
	// Stamped now: the server rejects records older than the newest mood.
	do(t, http.MethodPost, "/api/records/mood", map[string]interface{}{"mood": 50, "energy": 50})
	do(t, http.MethodPost, "/api/records/mood", map[string]interface{}{"mood": 80, "energy": 52})

	// Actions reach the log asynchronously.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var actions []action
		if err := json.Unmarshal(do(t, http.MethodGet, "/api/actions?limit=5", nil), &actions); err != nil {
			t.Fatalf("decode actions: %v", err)
		}
		for _, a := range actions {
			if a.Name == "EXPLAIN_MOOD_CHANGES" && len(a.Records) == 2 &&
				a.Records[0].Data["mood"] == float64(80) && a.Records[1].Data["mood"] == float64(50) {
				return
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatal("EXPLAIN_MOOD_CHANGES not observed")
}
