package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vansales/internal/archive"
	"vansales/internal/report"
)

// Summaries archives daily summaries in the same database as the records.
type Summaries struct {
	s *Store
}

var _ archive.Archive = (*Summaries)(nil)

// Summaries returns the daily summary archive backed by this database.
func (s *Store) Summaries() *Summaries {
	return &Summaries{s: s}
}

func (a *Summaries) Save(ctx context.Context, sum report.DailySummary) error {
	payload, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode daily summary: %w", err)
	}
	_, err = a.s.db.ExecContext(ctx, `
		INSERT INTO daily_summaries (day, payload, created_at) VALUES (?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at`,
		sum.Date, string(payload), a.s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save daily summary %s: %w", sum.Date, err)
	}
	return nil
}

func (a *Summaries) List(ctx context.Context, limit int) ([]report.DailySummary, error) {
	if limit <= 0 {
		limit = archive.DefaultLimit
	}
	rows, err := a.s.db.QueryContext(ctx,
		`SELECT payload FROM daily_summaries ORDER BY day DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list daily summaries: %w", err)
	}
	defer rows.Close()

	out := []report.DailySummary{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan daily summary: %w", err)
		}
		var sum report.DailySummary
		if err := json.Unmarshal([]byte(payload), &sum); err != nil {
			return nil, fmt.Errorf("decode daily summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
