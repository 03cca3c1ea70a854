package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumalaser/concierge/internal/conversation"
	"github.com/lumalaser/concierge/pkg/logging"
)

// analyticsDB is the pgx surface the store needs, mockable in tests.
type analyticsDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists per-message usage events in Postgres and answers the
// dashboard's aggregate queries.
type Store struct {
	db     analyticsDB
	logger *logging.Logger
}

var _ conversation.UsageRecorder = (*Store)(nil)

func NewStore(pool *pgxpool.Pool, logger *logging.Logger) *Store {
	if pool == nil {
		panic("analytics: pgx pool cannot be nil")
	}
	return newStore(pool, logger)
}

// NewStoreWithDB allows injecting a mock database for testing.
func NewStoreWithDB(db analyticsDB, logger *logging.Logger) *Store {
	return newStore(db, logger)
}

func newStore(db analyticsDB, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{db: db, logger: logger}
}

// RecordMessage inserts one usage event.
func (s *Store) RecordMessage(ctx context.Context, evt conversation.UsageEvent) error {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO conversation_events
			(conversation_id, direction, intent, language, gender, tokens_in, tokens_out, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		evt.ConversationID, evt.Direction, evt.Intent, evt.Language, evt.Gender,
		evt.TokensIn, evt.TokensOut, evt.At,
	)
	if err != nil {
		return fmt.Errorf("analytics: failed to record event: %w", err)
	}
	return nil
}

// Summary aggregates traffic since the given time.
type Summary struct {
	Since         time.Time `json:"since"`
	Inbound       int64     `json:"inbound"`
	Outbound      int64     `json:"outbound"`
	Conversations int64     `json:"conversations"`
	Handoffs      int64     `json:"handoffs"`
	Appointments  int64     `json:"appointments"`
	TokensIn      int64     `json:"tokens_in"`
	TokensOut     int64     `json:"tokens_out"`
}

func (s *Store) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	summary := &Summary{Since: since}

	err := s.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE direction = 'inbound'),
			COUNT(*) FILTER (WHERE direction = 'outbound'),
			COUNT(DISTINCT conversation_id),
			COUNT(*) FILTER (WHERE intent = 'handoff'),
			COUNT(*) FILTER (WHERE intent = 'appointment'),
			COALESCE(SUM(tokens_in), 0),
			COALESCE(SUM(tokens_out), 0)
		FROM conversation_events
		WHERE created_at >= $1`,
		since,
	).Scan(
		&summary.Inbound,
		&summary.Outbound,
		&summary.Conversations,
		&summary.Handoffs,
		&summary.Appointments,
		&summary.TokensIn,
		&summary.TokensOut,
	)
	if err != nil {
		return nil, fmt.Errorf("analytics: summary query failed: %w", err)
	}
	return summary, nil
}

// BucketCount is one row of a grouped breakdown.
type BucketCount struct {
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}

// IntentBreakdown counts outbound replies by intent.
func (s *Store) IntentBreakdown(ctx context.Context, since time.Time) ([]BucketCount, error) {
	return s.breakdown(ctx, `
		SELECT intent, COUNT(*)
		FROM conversation_events
		WHERE direction = 'outbound' AND intent <> '' AND created_at >= $1
		GROUP BY intent
		ORDER BY COUNT(*) DESC`, since)
}

// LanguageBreakdown counts outbound replies by guest language.
func (s *Store) LanguageBreakdown(ctx context.Context, since time.Time) ([]BucketCount, error) {
	return s.breakdown(ctx, `
		SELECT language, COUNT(*)
		FROM conversation_events
		WHERE direction = 'outbound' AND language <> '' AND created_at >= $1
		GROUP BY language
		ORDER BY COUNT(*) DESC`, since)
}

// GenderBreakdown counts outbound replies by inferred guest gender.
func (s *Store) GenderBreakdown(ctx context.Context, since time.Time) ([]BucketCount, error) {
	return s.breakdown(ctx, `
		SELECT gender, COUNT(*)
		FROM conversation_events
		WHERE direction = 'outbound' AND gender <> '' AND created_at >= $1
		GROUP BY gender
		ORDER BY COUNT(*) DESC`, since)
}

func (s *Store) breakdown(ctx context.Context, query string, since time.Time) ([]BucketCount, error) {
	rows, err := s.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("analytics: breakdown query failed: %w", err)
	}
	defer rows.Close()

	var out []BucketCount
	for rows.Next() {
		var bc BucketCount
		if err := rows.Scan(&bc.Bucket, &bc.Count); err != nil {
			return nil, fmt.Errorf("analytics: breakdown scan failed: %w", err)
		}
		out = append(out, bc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("analytics: breakdown rows failed: %w", err)
	}
	return out, nil
}

// DailyCount is inbound message volume for one day.
type DailyCount struct {
	Day   time.Time `json:"day"`
	Count int64     `json:"count"`
}

// DailyVolume returns inbound message counts per day for the last N days.
func (s *Store) DailyVolume(ctx context.Context, days int) ([]DailyCount, error) {
	if days <= 0 {
		days = 14
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	rows, err := s.db.Query(ctx, `
		SELECT date_trunc('day', created_at) AS day, COUNT(*)
		FROM conversation_events
		WHERE direction = 'inbound' AND created_at >= $1
		GROUP BY day
		ORDER BY day`, since)
	if err != nil {
		return nil, fmt.Errorf("analytics: daily volume query failed: %w", err)
	}
	defer rows.Close()

	var out []DailyCount
	for rows.Next() {
		var dc DailyCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, fmt.Errorf("analytics: daily volume scan failed: %w", err)
		}
		out = append(out, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("analytics: daily volume rows failed: %w", err)
	}
	return out, nil
}
