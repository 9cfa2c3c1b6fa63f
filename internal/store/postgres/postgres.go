package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"VaultLedger/internal/vault"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store keeps vault records in Postgres. Each update is one transaction that
// locks the target row with SELECT ... FOR UPDATE, so writers to the same
// record queue on the row lock and writers to different ledgers do not
// contend.
type Store struct {
	db *sql.DB
}

var _ vault.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const uniqueViolation = "23505"

func (s *Store) CreateOracle(ctx context.Context, o vault.PriceOracle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vault.price_oracle (id, administrator, rate, last_update_time, version)
		VALUES (1, $1, $2, $3, $4)`,
		o.Administrator, formatAmount(o.Rate), o.LastUpdateTime, int64(o.Version),
	)
	if isUniqueViolation(err) {
		return vault.ErrAlreadyInitialized
	}
	if err != nil {
		return fmt.Errorf("insert oracle: %w", err)
	}
	return nil
}

func (s *Store) GetOracle(ctx context.Context) (vault.PriceOracle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT administrator, rate, last_update_time, version
		FROM vault.price_oracle WHERE id = 1`)
	return scanOracle(row)
}

func (s *Store) UpdateOracle(ctx context.Context, fn vault.OracleMutation) (vault.PriceOracle, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return vault.PriceOracle{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT administrator, rate, last_update_time, version
		FROM vault.price_oracle WHERE id = 1 FOR UPDATE`)
	current, err := scanOracle(row)
	if err != nil {
		return vault.PriceOracle{}, err
	}

	next := current
	change, err := fn(&next)
	if err != nil {
		return vault.PriceOracle{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE vault.price_oracle
		SET rate = $1, last_update_time = $2, version = $3, updated_at = NOW()
		WHERE id = 1`,
		formatAmount(next.Rate), next.LastUpdateTime, int64(next.Version),
	); err != nil {
		return vault.PriceOracle{}, fmt.Errorf("update oracle: %w", err)
	}

	if err := change.Run(ctx, commit(tx, "oracle")); err != nil {
		return vault.PriceOracle{}, err
	}
	return next, nil
}

func (s *Store) CreateLedger(ctx context.Context, l vault.DepositLedger) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vault.deposit_ledgers (owner, deposited_amount, share_amount, version)
		VALUES ($1, $2, $3, $4)`,
		l.Owner, formatAmount(l.DepositedAmount), formatAmount(l.ShareAmount), int64(l.Version),
	)
	if isUniqueViolation(err) {
		return vault.ErrAlreadyInitialized
	}
	if err != nil {
		return fmt.Errorf("insert ledger: %w", err)
	}
	return nil
}

func (s *Store) GetLedger(ctx context.Context, owner uuid.UUID) (vault.DepositLedger, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT owner, deposited_amount, share_amount, version
		FROM vault.deposit_ledgers WHERE owner = $1`, owner)
	return scanLedger(row)
}

func (s *Store) UpdateLedger(ctx context.Context, owner uuid.UUID, fn vault.LedgerMutation) (vault.DepositLedger, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return vault.DepositLedger{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT owner, deposited_amount, share_amount, version
		FROM vault.deposit_ledgers WHERE owner = $1 FOR UPDATE`, owner)
	current, err := scanLedger(row)
	if err != nil {
		return vault.DepositLedger{}, err
	}

	next := current
	change, err := fn(&next)
	if err != nil {
		return vault.DepositLedger{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE vault.deposit_ledgers
		SET deposited_amount = $2, share_amount = $3, version = $4, updated_at = NOW()
		WHERE owner = $1`,
		owner, formatAmount(next.DepositedAmount), formatAmount(next.ShareAmount), int64(next.Version),
	); err != nil {
		return vault.DepositLedger{}, fmt.Errorf("update ledger: %w", err)
	}

	// The row write has succeeded; only COMMIT remains after the effect, and
	// a failed COMMIT reverts it.
	if err := change.Run(ctx, commit(tx, "ledger")); err != nil {
		return vault.DepositLedger{}, err
	}
	return next, nil
}

func commit(tx *sql.Tx, record string) func() error {
	return func() error {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", record, err)
		}
		return nil
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOracle(row rowScanner) (vault.PriceOracle, error) {
	var (
		o       vault.PriceOracle
		rate    string
		version int64
	)
	err := row.Scan(&o.Administrator, &rate, &o.LastUpdateTime, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return vault.PriceOracle{}, vault.ErrNotFound
	}
	if err != nil {
		return vault.PriceOracle{}, fmt.Errorf("scan oracle: %w", err)
	}
	if o.Rate, err = parseAmount(rate); err != nil {
		return vault.PriceOracle{}, fmt.Errorf("parse rate: %w", err)
	}
	o.Version = uint64(version)
	return o, nil
}

func scanLedger(row rowScanner) (vault.DepositLedger, error) {
	var (
		l                 vault.DepositLedger
		deposited, shares string
		version           int64
	)
	err := row.Scan(&l.Owner, &deposited, &shares, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return vault.DepositLedger{}, vault.ErrNotFound
	}
	if err != nil {
		return vault.DepositLedger{}, fmt.Errorf("scan ledger: %w", err)
	}
	if l.DepositedAmount, err = parseAmount(deposited); err != nil {
		return vault.DepositLedger{}, fmt.Errorf("parse deposited_amount: %w", err)
	}
	if l.ShareAmount, err = parseAmount(shares); err != nil {
		return vault.DepositLedger{}, fmt.Errorf("parse share_amount: %w", err)
	}
	l.Version = uint64(version)
	return l, nil
}

// Amounts are NUMERIC(20,0) so the full uint64 range round-trips as text.
func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseAmount(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
