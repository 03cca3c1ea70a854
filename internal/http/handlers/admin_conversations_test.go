package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/lumalaser/concierge/internal/conversation"
	"github.com/lumalaser/concierge/internal/http/middleware"
)

type fakeExportPublisher struct {
	mu       sync.Mutex
	jobs     []string
	requests []conversation.ExportRequest
	err      error
}

func (f *fakeExportPublisher) EnqueueExport(ctx context.Context, jobID string, req conversation.ExportRequest, opts ...conversation.PublishOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, jobID)
	f.requests = append(f.requests, req)
	return nil
}

type fakeJobRecorder struct {
	mu      sync.Mutex
	records map[string]*conversation.JobRecord
}

func newFakeJobRecorder() *fakeJobRecorder {
	return &fakeJobRecorder{records: map[string]*conversation.JobRecord{}}
}

func (f *fakeJobRecorder) PutPending(ctx context.Context, job *conversation.JobRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job.Status = conversation.JobStatusPending
	f.records[job.JobID] = job
	return nil
}

func (f *fakeJobRecorder) GetJob(ctx context.Context, jobID string) (*conversation.JobRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.records[jobID]
	if !ok {
		return nil, conversation.ErrJobNotFound
	}
	return job, nil
}

func newConversationsFixture(t *testing.T) (*AdminConversationsHandler, *conversation.TranscriptStore, *fakeExportPublisher, *fakeJobRecorder) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	transcripts := conversation.NewTranscriptStore(client)
	profiles := conversation.NewProfileStore(client, nil)
	publisher := &fakeExportPublisher{}
	jobs := newFakeJobRecorder()
	h := NewAdminConversationsHandler(transcripts, profiles, jobs, publisher, nil)
	return h, transcripts, publisher, jobs
}

func conversationsRouter(h *AdminConversationsHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/admin/conversations", h.ListConversations)
	r.Get("/admin/conversations/{conversationID}", h.GetConversation)
	r.Post("/admin/conversations/{conversationID}/export", h.ExportConversation)
	r.Get("/admin/jobs/{jobID}", h.GetJob)
	return r
}

func TestListConversations(t *testing.T) {
	h, transcripts, _, _ := newConversationsFixture(t)
	router := conversationsRouter(h)
	ctx := context.Background()

	for _, id := range []string{"wa:9715550001", "wa:9715550002"} {
		err := transcripts.Append(ctx, id, conversation.TranscriptMessage{
			Role:      "guest",
			Body:      "hello",
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("seed transcript: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Conversations []conversationListItem `json:"conversations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Conversations) != 2 {
		t.Errorf("conversations = %d, want 2", len(resp.Conversations))
	}
}

func TestGetConversationWithEncodedID(t *testing.T) {
	h, transcripts, _, _ := newConversationsFixture(t)
	router := conversationsRouter(h)
	ctx := context.Background()

	const conversationID = "wa:9715550001"
	err := transcripts.Append(ctx, conversationID, conversation.TranscriptMessage{
		Role: "guest",
		Body: "how much is a session",
	})
	if err != nil {
		t.Fatalf("seed transcript: %v", err)
	}

	path := "/admin/conversations/" + url.PathEscape(conversationID)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		ConversationID string                           `json:"conversation_id"`
		Messages       []conversation.TranscriptMessage `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ConversationID != conversationID {
		t.Errorf("conversation_id = %q, want %q", resp.ConversationID, conversationID)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Body != "how much is a session" {
		t.Errorf("messages = %+v", resp.Messages)
	}
}

func TestExportConversationEnqueuesJob(t *testing.T) {
	h, _, publisher, jobs := newConversationsFixture(t)
	router := conversationsRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/admin/conversations/"+url.PathEscape("wa:9715550001")+"/export", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID == "" || resp.Status != "pending" {
		t.Errorf("response = %+v", resp)
	}

	publisher.mu.Lock()
	enqueued := len(publisher.jobs)
	publisher.mu.Unlock()
	if enqueued != 1 {
		t.Errorf("enqueued jobs = %d, want 1", enqueued)
	}
	if _, err := jobs.GetJob(context.Background(), resp.JobID); err != nil {
		t.Errorf("job record missing: %v", err)
	}
}

func TestExportConversationAttributesStaffSubject(t *testing.T) {
	const secret = "test-secret"
	h, _, publisher, _ := newConversationsFixture(t)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminJWT(secret))
		r.Post("/admin/conversations/{conversationID}/export", h.ExportConversation)
	})

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "reception",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/conversations/"+url.PathEscape("wa:9715550001")+"/export", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if len(publisher.requests) != 1 {
		t.Fatalf("enqueued %d exports, want 1", len(publisher.requests))
	}
	if got := publisher.requests[0].RequestedBy; got != "reception" {
		t.Errorf("RequestedBy = %q, want token subject", got)
	}
}

func TestGetJobNotFound(t *testing.T) {
	h, _, _, _ := newConversationsFixture(t)
	router := conversationsRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/admin/jobs/no-such-job", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
