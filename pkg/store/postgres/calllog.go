package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/natserract/sailthru/pkg/sailthru"
	"go.uber.org/zap"
)

const callLogSchema = `
CREATE TABLE IF NOT EXISTS sailthru_api_calls (
	id          UUID PRIMARY KEY,
	action      TEXT NOT NULL,
	method      TEXT NOT NULL,
	url         TEXT NOT NULL,
	status_code INTEGER NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL,
	error       TEXT,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS sailthru_api_calls_created_at_idx ON sailthru_api_calls (created_at DESC);
`

const insertCallSQL = `
INSERT INTO sailthru_api_calls (id, action, method, url, status_code, duration_ms, error, created_at)
VALUES (@id, @action, @method, @url, @status_code, @duration_ms, @error, @created_at)`

const recentCallsSQL = `
SELECT id, action, method, url, status_code, duration_ms, COALESCE(error, ''), created_at
FROM sailthru_api_calls
ORDER BY created_at DESC
LIMIT $1`

// CallLog persists API call records. It implements sailthru.Recorder.
type CallLog struct {
	db     *DB
	logger *zap.Logger
}

// NewCallLog creates a new call log backed by db
func NewCallLog(db *DB, logger *zap.Logger) *CallLog {
	return &CallLog{db: db, logger: logger}
}

var _ sailthru.Recorder = (*CallLog)(nil)

// InitSchema creates the call log table if it does not exist
func (l *CallLog) InitSchema(ctx context.Context) error {
	l.logger.Info("Initializing call log schema")
	if _, err := l.db.Pool().Exec(ctx, callLogSchema); err != nil {
		return fmt.Errorf("failed to initialize call log schema: %w", err)
	}
	return nil
}

func (l *CallLog) RecordCall(ctx context.Context, rec sailthru.CallRecord) error {
	_, err := l.db.Pool().Exec(ctx, insertCallSQL, callArgs(rec))
	if err != nil {
		return fmt.Errorf("failed to insert call record %s: %w", rec.ID, err)
	}
	l.logger.Debug("Recorded API call",
		zap.String("call_id", rec.ID.String()),
		zap.String("action", rec.Action.String()))
	return nil
}

// Recent returns up to limit records, newest first
func (l *CallLog) Recent(ctx context.Context, limit int) ([]sailthru.CallRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.Pool().Query(ctx, recentCallsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query call records: %w", err)
	}

	records, err := pgx.CollectRows(rows, scanCallRecord)
	if err != nil {
		return nil, fmt.Errorf("failed to read call records: %w", err)
	}
	return records, nil
}

func callArgs(rec sailthru.CallRecord) pgx.NamedArgs {
	var errText *string
	if rec.Error != "" {
		errText = &rec.Error
	}
	return pgx.NamedArgs{
		"id":          rec.ID,
		"action":      rec.Action.String(),
		"method":      rec.Method,
		"url":         rec.URL,
		"status_code": rec.StatusCode,
		"duration_ms": rec.Duration.Milliseconds(),
		"error":       errText,
		"created_at":  rec.CreatedAt,
	}
}

func scanCallRecord(row pgx.CollectableRow) (sailthru.CallRecord, error) {
	var (
		rec        sailthru.CallRecord
		id         uuid.UUID
		action     string
		durationMs int64
	)
	err := row.Scan(&id, &action, &rec.Method, &rec.URL, &rec.StatusCode, &durationMs, &rec.Error, &rec.CreatedAt)
	if err != nil {
		return sailthru.CallRecord{}, err
	}
	rec.ID = id
	rec.Action = sailthru.Action(action)
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	return rec, nil
}
