package livechat

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lumalaser/concierge/internal/conversation"
)

type captureMessenger struct {
	mu   sync.Mutex
	to   []string
	sent []string
}

func (c *captureMessenger) SendText(_ context.Context, to, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.to = append(c.to, to)
	c.sent = append(c.sent, body)
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *Hub, *captureMessenger, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	hub := NewHub()
	messenger := &captureMessenger{}
	h := NewHandler(
		hub,
		messenger,
		conversation.NewTranscriptStore(client),
		conversation.NewHistoryStore(client, nil),
		conversation.NewProfileStore(client, nil),
		nil,
	)
	return h, hub, messenger, client
}

func TestHandleSendDeliversAndRecords(t *testing.T) {
	h, hub, messenger, client := newTestHandler(t)

	events, cancel := hub.Subscribe("wa:9715550001")
	defer cancel()

	body := `{"conversation_id":"wa:9715550001","text":"The doctor will see you at 6pm.","agent":"maha"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/live/send", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleSend(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	messenger.mu.Lock()
	if len(messenger.sent) != 1 || messenger.to[0] != "9715550001" {
		t.Errorf("messenger sent %v to %v", messenger.sent, messenger.to)
	}
	messenger.mu.Unlock()

	select {
	case evt := <-events:
		if evt.Role != "agent" {
			t.Errorf("event role = %q, want agent", evt.Role)
		}
	case <-time.After(time.Second):
		t.Fatal("no live event published for agent message")
	}

	ctx := context.Background()
	transcript, err := conversation.NewTranscriptStore(client).List(ctx, "wa:9715550001", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(transcript) != 1 || transcript[0].Role != "agent" {
		t.Errorf("transcript = %+v", transcript)
	}

	history, err := conversation.NewHistoryStore(client, nil).Load(ctx, "wa:9715550001")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(history) != 1 || history[0].Role != conversation.ChatRoleAssistant {
		t.Errorf("history = %+v", history)
	}
}

func TestHandleSendValidation(t *testing.T) {
	h, _, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/live/send", strings.NewReader(`{"conversation_id":"","text":""}`))
	rec := httptest.NewRecorder()
	h.HandleSend(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTakeoverAndRelease(t *testing.T) {
	h, _, _, client := newTestHandler(t)
	ctx := context.Background()
	profiles := conversation.NewProfileStore(client, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/live/takeover",
		strings.NewReader(`{"conversation_id":"wa:9715550002","reason":"complex pricing question"}`))
	rec := httptest.NewRecorder()
	h.HandleTakeover(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("takeover status = %d", rec.Code)
	}

	profile, err := profiles.Load(ctx, "wa:9715550002")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !profile.Handoff || profile.HandoffReason != "complex pricing question" {
		t.Errorf("profile after takeover = %+v", profile)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/live/release",
		strings.NewReader(`{"conversation_id":"wa:9715550002"}`))
	rec = httptest.NewRecorder()
	h.HandleRelease(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("release status = %d", rec.Code)
	}

	profile, err = profiles.Load(ctx, "wa:9715550002")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if profile.Handoff {
		t.Error("handoff still active after release")
	}
}

func TestHandleStreamDeliversSSE(t *testing.T) {
	h, hub, _, _ := newTestHandler(t)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleStream))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?conversation=wa:9715550003", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	// Give the handler time to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	hub.PublishMessage("wa:9715550003", "user", "anyone there?", "")

	reader := bufio.NewReader(resp.Body)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			if !strings.Contains(line, "anyone there?") {
				t.Errorf("data line = %q", line)
			}
			return
		}
	}
	t.Fatal("no data line received")
}
