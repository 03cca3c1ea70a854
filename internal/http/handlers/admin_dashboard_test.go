package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lumalaser/concierge/internal/analytics"
	"github.com/lumalaser/concierge/internal/conversation"
)

type fakeAnalytics struct {
	summary    *analytics.Summary
	summaryErr error
	intents    []analytics.BucketCount
	intentsErr error
	lastSince  time.Time
}

func (f *fakeAnalytics) Summary(ctx context.Context, since time.Time) (*analytics.Summary, error) {
	f.lastSince = since
	return f.summary, f.summaryErr
}

func (f *fakeAnalytics) IntentBreakdown(ctx context.Context, since time.Time) ([]analytics.BucketCount, error) {
	return f.intents, f.intentsErr
}

func (f *fakeAnalytics) LanguageBreakdown(ctx context.Context, since time.Time) ([]analytics.BucketCount, error) {
	return nil, nil
}

func (f *fakeAnalytics) GenderBreakdown(ctx context.Context, since time.Time) ([]analytics.BucketCount, error) {
	return nil, nil
}

func (f *fakeAnalytics) DailyVolume(ctx context.Context, days int) ([]analytics.DailyCount, error) {
	return nil, nil
}

type fakeAppointments struct {
	recent []conversation.AppointmentRequest
}

func (f *fakeAppointments) ListRecent(ctx context.Context, limit int) ([]conversation.AppointmentRequest, error) {
	return f.recent, nil
}

func TestGetDashboard(t *testing.T) {
	fa := &fakeAnalytics{
		summary: &analytics.Summary{Inbound: 40, Outbound: 38, Conversations: 12},
		intents: []analytics.BucketCount{{Bucket: "llm", Count: 30}, {Bucket: "appointment", Count: 8}},
	}
	appts := &fakeAppointments{recent: []conversation.AppointmentRequest{{Service: "laser hair removal"}}}
	h := NewAdminDashboardHandler(fa, appts, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard?period=day", nil)
	rec := httptest.NewRecorder()
	h.GetDashboard(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp DashboardResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Period != "day" {
		t.Errorf("period = %q, want day", resp.Period)
	}
	if resp.Summary == nil || resp.Summary.Inbound != 40 {
		t.Errorf("summary = %+v", resp.Summary)
	}
	if len(resp.Intents) != 2 {
		t.Errorf("intents = %+v", resp.Intents)
	}
	if len(resp.Appointments) != 1 {
		t.Errorf("appointments = %+v", resp.Appointments)
	}

	if age := time.Since(fa.lastSince); age < 23*time.Hour || age > 25*time.Hour {
		t.Errorf("since = %v, want about one day ago", fa.lastSince)
	}
}

func TestGetDashboardRejectsUnknownPeriod(t *testing.T) {
	h := NewAdminDashboardHandler(&fakeAnalytics{summary: &analytics.Summary{}}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard?period=year", nil)
	rec := httptest.NewRecorder()
	h.GetDashboard(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetDashboardPartialOnBreakdownFailure(t *testing.T) {
	fa := &fakeAnalytics{
		summary:    &analytics.Summary{Inbound: 5},
		intentsErr: errors.New("query timeout"),
	}
	h := NewAdminDashboardHandler(fa, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	rec := httptest.NewRecorder()
	h.GetDashboard(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp DashboardResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Summary == nil || resp.Summary.Inbound != 5 {
		t.Errorf("summary = %+v", resp.Summary)
	}
	if len(resp.Intents) != 0 {
		t.Errorf("intents should be empty on breakdown failure, got %+v", resp.Intents)
	}
}

func TestGetDashboardSummaryFailure(t *testing.T) {
	h := NewAdminDashboardHandler(&fakeAnalytics{summaryErr: errors.New("db down")}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	rec := httptest.NewRecorder()
	h.GetDashboard(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
