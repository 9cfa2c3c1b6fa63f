package projection

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"VaultLedger/internal/observability"
	"VaultLedger/internal/persistence"

	"github.com/rs/zerolog"
)

const workerID = "vault"

// EventSource yields committed event log rows in sequence order.
type EventSource interface {
	LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]persistence.EventRow, error)
}

// ProjectionWorker folds the event log into the history tables. It tails
// the log rather than the live pipeline, so it can fall behind or be rebuilt
// without touching the core.
type ProjectionWorker struct {
	db        *sql.DB
	source    EventSource
	interval  time.Duration
	batchSize int
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewProjectionWorker(
	db *sql.DB,
	source EventSource,
	interval time.Duration,
	batchSize int,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *ProjectionWorker {
	if batchSize <= 0 {
		batchSize = 500
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProjectionWorker{
		db:        db,
		source:    source,
		interval:  interval,
		batchSize: batchSize,
		metrics:   metrics,
		logger:    logger.With().Str("component", "projection").Logger(),
	}
}

// Run catches up every interval until ctx is cancelled. Failed passes are
// logged and retried on the next tick.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	for {
		if _, err := pw.CatchUp(ctx); err != nil && ctx.Err() == nil {
			pw.logger.Warn().Err(err).Msg("projection pass failed")
			if pw.metrics != nil {
				pw.metrics.ProjectionErrors.Inc()
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// CatchUp folds every event after the watermark and returns how many rows
// it consumed.
func (pw *ProjectionWorker) CatchUp(ctx context.Context) (int, error) {
	total := 0
	for {
		last, err := loadWatermark(ctx, pw.db)
		if err != nil {
			return total, err
		}
		rows, err := pw.source.LoadEventsFrom(ctx, last+1, pw.batchSize)
		if err != nil {
			return total, fmt.Errorf("load events after %d: %w", last, err)
		}
		if len(rows) == 0 {
			return total, nil
		}
		if err := pw.apply(ctx, rows); err != nil {
			return total, err
		}
		total += len(rows)
		if len(rows) < pw.batchSize {
			return total, nil
		}
	}
}

// Rebuild clears the history tables and refolds the whole event log.
func (pw *ProjectionWorker) Rebuild(ctx context.Context) (int, error) {
	for _, stmt := range []string{
		`TRUNCATE projections.rate_history`,
		`TRUNCATE projections.ledger_activity`,
		`DELETE FROM projections.watermark WHERE worker_id = '` + workerID + `'`,
	} {
		if _, err := pw.db.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("reset projections: %w", err)
		}
	}

	n, err := pw.CatchUp(ctx)
	if err != nil {
		return n, err
	}
	pw.logger.Info().Int("events", n).Msg("projection rebuild complete")
	return n, nil
}

func (pw *ProjectionWorker) apply(ctx context.Context, rows []persistence.EventRow) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, row := range rows {
		point, activity, err := Project(row)
		if err != nil {
			return err
		}
		if point != nil {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO projections.rate_history
					(sequence, previous_rate, rate, elapsed, last_update_time, recorded_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (sequence) DO NOTHING
			`, point.Sequence, u64(point.PreviousRate), u64(point.Rate), u64(point.Elapsed),
				point.LastUpdateTime, point.RecordedAt); err != nil {
				return fmt.Errorf("rate history: %w", err)
			}
		}
		if activity != nil {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO projections.ledger_activity
					(sequence, owner, kind, amount, shares, rate, share_amount, recorded_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (sequence) DO NOTHING
			`, activity.Sequence, activity.Owner, activity.Kind, u64(activity.Amount), u64(activity.Shares),
				u64(activity.Rate), u64(activity.ShareAmount), activity.RecordedAt); err != nil {
				return fmt.Errorf("ledger activity: %w", err)
			}
		}
	}

	last := rows[len(rows)-1].Sequence
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $2, updated_at = NOW()
	`, workerID, last); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	if pw.metrics != nil {
		pw.metrics.ProjectionLastSequence.Set(float64(last))
	}
	return nil
}

// u64 renders amounts for NUMERIC(20) columns; lib/pq has no uint64 encoding
// above MaxInt64.
func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}
