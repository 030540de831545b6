// ABOUTME: Audit persistence for published lifecycle events
// ABOUTME: Implements event.Recorder so the store can serve as the bus's audit sink

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/hive-orchestrator/internal/event"
)

// RecordEvent persists a published lifecycle event to the audit table.
// The type-specific payload is stored as JSON.
func (s *SQLiteStore) RecordEvent(ctx context.Context, ev event.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("encoding event data: %w", err)
	}

	query := `
		INSERT INTO lifecycle_events (id, type, source, subject, correlation_id, time, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		ev.ID,
		string(ev.Type),
		ev.Source,
		ev.Subject,
		ev.CorrelationID,
		ev.Time.UTC().Format(time.RFC3339Nano),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	s.logger.Debug("recorded lifecycle event",
		"event_id", ev.ID,
		"type", ev.Type,
		"subject", ev.Subject,
	)
	return nil
}

// ListEventsByTask returns the audit trail for a task subject, oldest
// first, limited to the given count.
func (s *SQLiteStore) ListEventsByTask(ctx context.Context, subject string, limit int) ([]*StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, source, subject, correlation_id, time, data
		FROM lifecycle_events
		WHERE subject = ?
		ORDER BY time ASC
		LIMIT ?
	`, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []*StoredEvent
	for rows.Next() {
		ev := &StoredEvent{}
		var correlationID sql.NullString
		var timeStr, data string

		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Source, &ev.Subject, &correlationID, &timeStr, &data); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}

		if correlationID.Valid {
			ev.CorrelationID = correlationID.String
		}
		ts, err := time.Parse(time.RFC3339Nano, timeStr)
		if err != nil {
			return nil, fmt.Errorf("parsing event timestamp: %w", err)
		}
		ev.Time = ts
		ev.Data = json.RawMessage(data)
		events = append(events, ev)
	}

	return events, rows.Err()
}
