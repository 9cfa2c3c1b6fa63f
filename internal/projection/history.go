package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"VaultLedger/internal/event"
	"VaultLedger/internal/persistence"

	"github.com/google/uuid"
)

// Activity kinds recorded in projections.ledger_activity.
const (
	KindDeposit  = "deposit"
	KindWithdraw = "withdraw"
)

// RatePoint is one committed UpdatePrice.
type RatePoint struct {
	Sequence       int64
	PreviousRate   uint64
	Rate           uint64
	Elapsed        uint64
	LastUpdateTime int64
	RecordedAt     time.Time
}

// LedgerActivity is one deposit or withdrawal against an owner's ledger.
// Amount is base tokens in for a deposit and base tokens out for a
// withdrawal.
type LedgerActivity struct {
	Sequence    int64
	Owner       uuid.UUID
	Kind        string
	Amount      uint64
	Shares      uint64
	Rate        uint64
	ShareAmount uint64
	RecordedAt  time.Time
}

// Project maps an event log row onto the history it contributes. Events
// that do not touch either history return two nils.
func Project(row persistence.EventRow) (*RatePoint, *LedgerActivity, error) {
	et := event.ParseEventType(row.EventType)
	switch et {
	case event.EventTypePriceUpdated, event.EventTypeDeposited, event.EventTypeWithdrawn:
	default:
		return nil, nil, nil
	}

	evt, err := event.Decode(et, row.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("sequence %d: %w", row.Sequence, err)
	}

	switch e := evt.(type) {
	case *event.PriceUpdated:
		return &RatePoint{
			Sequence:       row.Sequence,
			PreviousRate:   e.PreviousRate,
			Rate:           e.Rate,
			Elapsed:        e.Elapsed,
			LastUpdateTime: e.LastUpdateTime,
			RecordedAt:     row.Timestamp,
		}, nil, nil
	case *event.Deposited:
		return nil, &LedgerActivity{
			Sequence:    row.Sequence,
			Owner:       e.Holder,
			Kind:        KindDeposit,
			Amount:      e.Amount,
			Shares:      e.Shares,
			Rate:        e.Rate,
			ShareAmount: e.ShareAmount,
			RecordedAt:  row.Timestamp,
		}, nil
	case *event.Withdrawn:
		return nil, &LedgerActivity{
			Sequence:    row.Sequence,
			Owner:       e.Holder,
			Kind:        KindWithdraw,
			Amount:      e.BaseAmount,
			Shares:      e.Shares,
			Rate:        e.Rate,
			ShareAmount: e.ShareAmount,
			RecordedAt:  row.Timestamp,
		}, nil
	}
	return nil, nil, nil
}

// HistoryReader serves the projection tables.
type HistoryReader struct {
	db *sql.DB
}

func NewHistoryReader(db *sql.DB) *HistoryReader {
	return &HistoryReader{db: db}
}

// RateHistory returns up to limit rate updates, newest first.
func (h *HistoryReader) RateHistory(ctx context.Context, limit int) ([]RatePoint, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT sequence, previous_rate::TEXT, rate::TEXT, elapsed::TEXT, last_update_time, recorded_at
		FROM projections.rate_history
		ORDER BY sequence DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query rate history: %w", err)
	}
	defer rows.Close()

	var points []RatePoint
	for rows.Next() {
		var (
			p                   RatePoint
			prev, rate, elapsed string
		)
		if err := rows.Scan(&p.Sequence, &prev, &rate, &elapsed, &p.LastUpdateTime, &p.RecordedAt); err != nil {
			return nil, err
		}
		if err := parseAll(map[*uint64]string{&p.PreviousRate: prev, &p.Rate: rate, &p.Elapsed: elapsed}); err != nil {
			return nil, fmt.Errorf("rate history %d: %w", p.Sequence, err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// LedgerActivity returns up to limit entries for owner, newest first.
func (h *HistoryReader) LedgerActivity(ctx context.Context, owner uuid.UUID, limit int) ([]LedgerActivity, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT sequence, owner, kind, amount::TEXT, shares::TEXT, rate::TEXT, share_amount::TEXT, recorded_at
		FROM projections.ledger_activity
		WHERE owner = $1
		ORDER BY sequence DESC
		LIMIT $2
	`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger activity: %w", err)
	}
	defer rows.Close()

	var out []LedgerActivity
	for rows.Next() {
		var (
			a                                LedgerActivity
			amount, shares, rate, shareTotal string
		)
		if err := rows.Scan(&a.Sequence, &a.Owner, &a.Kind, &amount, &shares, &rate, &shareTotal, &a.RecordedAt); err != nil {
			return nil, err
		}
		if err := parseAll(map[*uint64]string{&a.Amount: amount, &a.Shares: shares, &a.Rate: rate, &a.ShareAmount: shareTotal}); err != nil {
			return nil, fmt.Errorf("ledger activity %d: %w", a.Sequence, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Watermark returns the last folded sequence, or -1 before the first pass.
func (h *HistoryReader) Watermark(ctx context.Context) (int64, error) {
	return loadWatermark(ctx, h.db)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func loadWatermark(ctx context.Context, q queryRower) (int64, error) {
	var seq int64
	err := q.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = $1
	`, workerID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load watermark: %w", err)
	}
	return seq, nil
}

func parseAll(fields map[*uint64]string) error {
	for dst, s := range fields {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}
