package storage

import (
	"context"
	"fmt"
	"time"

	"chatrelay/internal/models"
)

// InsertCall stores one call record and returns its id.
func (db *DB) InsertCall(ctx context.Context, rec models.CallRecord) (int64, error) {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	args := []any{
		rec.RequestID,
		rec.ClientKey,
		rec.Family,
		rec.Outcome,
		rec.Status,
		rec.LatencyMS,
		rec.PromptLen,
		createdAt.UTC(),
	}
	query := `INSERT INTO call_log (request_id, client_key, family, outcome, status, latency_ms, prompt_len, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	if db.Dialect == DialectPostgres {
		var id int64
		if err := db.QueryRowContext(ctx, db.Rebind(query+` RETURNING id`), args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("insert call: %w", err)
		}
		return id, nil
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert call: %w", err)
	}
	return res.LastInsertId()
}

// DeleteCallsBefore removes call records created before cutoff.
func (db *DB) DeleteCallsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM call_log WHERE created_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune calls: %w", err)
	}
	return res.RowsAffected()
}

// CountCallsByOutcome returns the number of stored calls per outcome.
func (db *DB) CountCallsByOutcome(ctx context.Context) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM call_log GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("count calls: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			outcome string
			n       int64
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// RecentCalls lists the newest call records first.
func (db *DB) RecentCalls(ctx context.Context, limit int) ([]models.CallRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, db.Rebind(`
		SELECT id, request_id, client_key, family, outcome, status, latency_ms, prompt_len, created_at
		FROM call_log ORDER BY created_at DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var out []models.CallRecord
	for rows.Next() {
		var rec models.CallRecord
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.ClientKey, &rec.Family, &rec.Outcome,
			&rec.Status, &rec.LatencyMS, &rec.PromptLen, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
