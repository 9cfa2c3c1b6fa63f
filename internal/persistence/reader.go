package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// EventLogReader reads back the event log for restart and audit.
type EventLogReader struct {
	db *sql.DB
}

// ChainTip is the last persisted position of the hash chain.
type ChainTip struct {
	Sequence  int64
	StateHash [32]byte
}

func NewEventLogReader(db *sql.DB) *EventLogReader {
	return &EventLogReader{db: db}
}

// LoadChainTip returns the highest persisted sequence and its hash, or nil
// when the log is empty.
func (r *EventLogReader) LoadChainTip(ctx context.Context) (*ChainTip, error) {
	var (
		tip  ChainTip
		hash []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT sequence, state_hash FROM event_log.events
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&tip.Sequence, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load chain tip: %w", err)
	}
	if len(hash) != len(tip.StateHash) {
		return nil, fmt.Errorf("chain tip at %d has %d-byte hash", tip.Sequence, len(hash))
	}
	copy(tip.StateHash[:], hash)
	return &tip, nil
}

// LoadEventsFrom loads events from a given sequence in order.
func (r *EventLogReader) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, owner, payload,
		       state_hash, prev_hash, timestamp
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Owner,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// RecentIdempotencyKeys returns up to limit "EventType:key" pairs, newest
// first, for warming the in-memory dedup tier.
func (r *EventLogReader) RecentIdempotencyKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_type, idempotency_key FROM event_log.events
		WHERE idempotency_key <> ''
		ORDER BY sequence DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var et, key string
		if err := rows.Scan(&et, &key); err != nil {
			return nil, err
		}
		keys = append(keys, et+":"+key)
	}
	return keys, rows.Err()
}
