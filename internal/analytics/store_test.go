package analytics

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/lumalaser/concierge/internal/conversation"
)

func TestRecordMessage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	at := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO conversation_events").
		WithArgs("wa:9715550001", "outbound", "llm", "en", "female", 120, 45, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewStoreWithDB(mock, nil)
	err = store.RecordMessage(context.Background(), conversation.UsageEvent{
		ConversationID: "wa:9715550001",
		Direction:      "outbound",
		Intent:         "llm",
		Language:       "en",
		Gender:         "female",
		TokensIn:       120,
		TokensOut:      45,
		At:             at,
	})
	if err != nil {
		t.Fatalf("RecordMessage() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSummary(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	since := time.Now().UTC().Add(-24 * time.Hour)
	mock.ExpectQuery("SELECT").
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{
			"inbound", "outbound", "conversations", "handoffs", "appointments", "tokens_in", "tokens_out",
		}).AddRow(int64(42), int64(40), int64(12), int64(3), int64(5), int64(9000), int64(3200)))

	store := NewStoreWithDB(mock, nil)
	got, err := store.Summary(context.Background(), since)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if got.Inbound != 42 || got.Handoffs != 3 || got.Appointments != 5 {
		t.Errorf("unexpected summary: %+v", got)
	}
	if got.TokensOut != 3200 {
		t.Errorf("TokensOut = %d, want 3200", got.TokensOut)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestIntentBreakdown(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	since := time.Now().UTC().Add(-7 * 24 * time.Hour)
	mock.ExpectQuery("SELECT intent, COUNT").
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"intent", "count"}).
			AddRow("llm", int64(30)).
			AddRow("trained_pair", int64(8)).
			AddRow("appointment", int64(5)))

	store := NewStoreWithDB(mock, nil)
	got, err := store.IntentBreakdown(context.Background(), since)
	if err != nil {
		t.Fatalf("IntentBreakdown() error = %v", err)
	}
	if len(got) != 3 || got[0].Bucket != "llm" || got[0].Count != 30 {
		t.Errorf("unexpected breakdown: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDailyVolume(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	day := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT date_trunc").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"day", "count"}).AddRow(day, int64(17)))

	store := NewStoreWithDB(mock, nil)
	got, err := store.DailyVolume(context.Background(), 14)
	if err != nil {
		t.Fatalf("DailyVolume() error = %v", err)
	}
	if len(got) != 1 || !got[0].Day.Equal(day) || got[0].Count != 17 {
		t.Errorf("unexpected volume: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
