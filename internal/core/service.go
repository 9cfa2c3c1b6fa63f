package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"VaultLedger/internal/event"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/vault"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Request carries the transport-level metadata of one call.
type Request struct {
	Caller         uuid.UUID
	IdempotencyKey string
}

// Options configure a Service.
type Options struct {
	// Sequence assigned to the next event.
	StartSequence int64
	// Chain tip to resume from; nil starts at the genesis hash.
	ChainTip *[32]byte

	LRUCapacity int
	DBChecker   DBIdempotencyChecker

	// Persist receives every envelope with a blocking send. Publish receives
	// them with a non-blocking send and drops when full. Either may be nil.
	Persist chan<- *event.EventEnvelope
	Publish chan<- *event.EventEnvelope

	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// Service wraps the vault engine with request deduplication, event emission
// and the hash chain. Operations on different records run concurrently. An
// operation holds its record's lock from the engine call until its event has
// a sequence, so events of one record are sequenced in commit order.
type Service struct {
	engine      *vault.Engine
	idempotency *IdempotencyChecker

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	mu       sync.Mutex
	sequence int64
	hasher   *StateHasher

	persist chan<- *event.EventEnvelope
	publish chan<- *event.EventEnvelope

	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewService(engine *vault.Engine, opts Options) (*Service, error) {
	logger := opts.Logger.With().Str("component", "core").Logger()

	idem, err := NewIdempotencyChecker(opts.LRUCapacity, opts.DBChecker, opts.Metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("create idempotency checker: %w", err)
	}

	hasher := NewStateHasher()
	if opts.ChainTip != nil {
		hasher = NewStateHasherFrom(*opts.ChainTip)
	}

	return &Service{
		engine:      engine,
		idempotency: idem,
		locks:       make(map[string]*sync.Mutex),
		sequence:    opts.StartSequence,
		hasher:      hasher,
		persist:     opts.Persist,
		publish:     opts.Publish,
		metrics:     opts.Metrics,
		logger:      logger,
	}, nil
}

func (s *Service) InitializeOracle(ctx context.Context, req Request) (vault.PriceOracle, error) {
	var oracle vault.PriceOracle
	err := s.run(ctx, "initialize_oracle", event.EventTypeOracleInitialized, oracleRecord, req.IdempotencyKey, func() (event.Event, error) {
		var err error
		oracle, err = s.engine.InitializeOracle(ctx, req.Caller)
		if err != nil {
			return nil, err
		}
		s.setRate(oracle.Rate)
		return &event.OracleInitialized{
			Key:            req.IdempotencyKey,
			Administrator:  oracle.Administrator,
			Rate:           oracle.Rate,
			LastUpdateTime: oracle.LastUpdateTime,
			Version:        oracle.Version,
		}, nil
	})
	return oracle, err
}

// InitializeLedger creates the caller's own ledger.
func (s *Service) InitializeLedger(ctx context.Context, req Request) (vault.DepositLedger, error) {
	var ledger vault.DepositLedger
	err := s.run(ctx, "initialize_ledger", event.EventTypeLedgerInitialized, ledgerRecord(req.Caller), req.IdempotencyKey, func() (event.Event, error) {
		var err error
		ledger, err = s.engine.InitializeLedger(ctx, req.Caller)
		if err != nil {
			return nil, err
		}
		return &event.LedgerInitialized{
			Key:     req.IdempotencyKey,
			Holder:  ledger.Owner,
			Version: ledger.Version,
		}, nil
	})
	return ledger, err
}

func (s *Service) UpdatePrice(ctx context.Context, req Request) (vault.PriceUpdate, error) {
	var update vault.PriceUpdate
	err := s.run(ctx, "update_price", event.EventTypePriceUpdated, oracleRecord, req.IdempotencyKey, func() (event.Event, error) {
		var err error
		update, err = s.engine.UpdatePrice(ctx, req.Caller)
		if err != nil {
			return nil, err
		}
		s.setRate(update.Rate)
		return &event.PriceUpdated{
			Key:            req.IdempotencyKey,
			PreviousRate:   update.PreviousRate,
			Rate:           update.Rate,
			Elapsed:        update.Elapsed,
			LastUpdateTime: update.LastUpdateTime,
			Version:        update.Version,
		}, nil
	})
	return update, err
}

func (s *Service) SetLastUpdateTime(ctx context.Context, req Request, ts int64) (vault.PriceOracle, error) {
	var oracle vault.PriceOracle
	err := s.run(ctx, "set_last_update_time", event.EventTypeLastUpdateOverridden, oracleRecord, req.IdempotencyKey, func() (event.Event, error) {
		var err error
		oracle, err = s.engine.SetLastUpdateTime(ctx, req.Caller, ts)
		if err != nil {
			return nil, err
		}
		return &event.LastUpdateOverridden{
			Key:            req.IdempotencyKey,
			LastUpdateTime: oracle.LastUpdateTime,
			Version:        oracle.Version,
		}, nil
	})
	return oracle, err
}

// Deposit credits the caller's own ledger.
func (s *Service) Deposit(ctx context.Context, req Request, amount uint64) (vault.DepositReceipt, error) {
	var receipt vault.DepositReceipt
	err := s.run(ctx, "deposit", event.EventTypeDeposited, ledgerRecord(req.Caller), req.IdempotencyKey, func() (event.Event, error) {
		var err error
		receipt, err = s.engine.Deposit(ctx, req.Caller, amount)
		if err != nil {
			return nil, err
		}
		return &event.Deposited{
			Key:             req.IdempotencyKey,
			Holder:          receipt.Owner,
			Amount:          receipt.Amount,
			Shares:          receipt.Shares,
			Rate:            receipt.Rate,
			DepositedAmount: receipt.Ledger.DepositedAmount,
			ShareAmount:     receipt.Ledger.ShareAmount,
			BatchID:         receipt.BatchID,
			Version:         receipt.Ledger.Version,
		}, nil
	})
	return receipt, err
}

func (s *Service) Withdraw(ctx context.Context, req Request, owner uuid.UUID, shares uint64) (vault.WithdrawReceipt, error) {
	var receipt vault.WithdrawReceipt
	err := s.run(ctx, "withdraw", event.EventTypeWithdrawn, ledgerRecord(owner), req.IdempotencyKey, func() (event.Event, error) {
		var err error
		receipt, err = s.engine.Withdraw(ctx, req.Caller, owner, shares)
		if err != nil {
			return nil, err
		}
		return &event.Withdrawn{
			Key:         req.IdempotencyKey,
			Holder:      receipt.Owner,
			Shares:      receipt.Shares,
			BaseAmount:  receipt.BaseAmount,
			Rate:        receipt.Rate,
			ShareAmount: receipt.Ledger.ShareAmount,
			BatchID:     receipt.BatchID,
			Version:     receipt.Ledger.Version,
		}, nil
	})
	return receipt, err
}

func (s *Service) Oracle(ctx context.Context) (vault.PriceOracle, error) {
	return s.engine.Oracle(ctx)
}

func (s *Service) Ledger(ctx context.Context, owner uuid.UUID) (vault.DepositLedger, error) {
	return s.engine.Ledger(ctx, owner)
}

// WarmIdempotency preloads "EventType:key" pairs into the in-memory tier.
func (s *Service) WarmIdempotency(composites []string) {
	s.idempotency.Warm(composites)
}

// Sequence returns the sequence the next event will get.
func (s *Service) Sequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// StateHash returns the current chain tip.
func (s *Service) StateHash() [32]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasher.Tip()
}

func (s *Service) run(ctx context.Context, op string, et event.EventType, record, key string, apply func() (event.Event, error)) error {
	start := time.Now()

	if key != "" && !s.idempotency.Claim(ctx, et.String(), key) {
		s.reject(op, vault.ErrDuplicateRequest)
		return fmt.Errorf("%s %q: %w", et, key, vault.ErrDuplicateRequest)
	}

	unlock := s.lock(record)
	defer unlock()

	evt, err := apply()
	if err != nil {
		if key != "" {
			s.idempotency.Release(et.String(), key)
		}
		s.reject(op, err)
		return err
	}

	if err := s.emit(evt); err != nil {
		// The record change is committed; losing its event is not recoverable.
		panic(fmt.Sprintf("FATAL: emit %s after commit: %v", et, err))
	}

	if s.metrics != nil {
		s.metrics.OpsApplied.WithLabelValues(op).Inc()
		s.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	return nil
}

func (s *Service) emit(evt event.Event) error {
	payload, err := event.Encode(evt)
	if err != nil {
		return err
	}
	digest := make([]byte, 0, len(payload)+32)
	digest = append(digest, evt.EventType().String()...)
	digest = append(digest, ':')
	digest = append(digest, payload...)

	ts := time.Unix(s.engine.Clock().Now(), 0).UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, hash := s.hasher.Next(s.sequence, digest)
	env := &event.EventEnvelope{
		Sequence:       s.sequence,
		IdempotencyKey: evt.IdempotencyKey(),
		EventType:      evt.EventType(),
		Owner:          evt.Owner(),
		Timestamp:      ts,
		Payload:        payload,
		StateHash:      hash,
		PrevHash:       prev,
	}
	s.sequence++

	// Sends stay under the lock so channel order matches sequence order.
	if s.persist != nil {
		s.persist <- env
	}
	if s.publish != nil {
		select {
		case s.publish <- env:
		default:
			if s.metrics != nil {
				s.metrics.PublishDrops.Inc()
			}
		}
	}

	if s.metrics != nil {
		s.metrics.CoreSequence.Set(float64(s.sequence))
	}
	s.logger.Debug().
		Int64("sequence", env.Sequence).
		Str("event_type", env.EventType.String()).
		Uint64("version", evt.RecordVersion()).
		Msg("event emitted")
	return nil
}

func (s *Service) reject(op string, err error) {
	if s.metrics != nil {
		s.metrics.OpsRejected.WithLabelValues(op, vault.ErrorKind(err)).Inc()
	}
	if vault.IsUserError(err) {
		s.logger.Debug().Err(err).Str("op", op).Msg("operation rejected")
		return
	}
	s.logger.Error().Err(err).Str("op", op).Msg("operation failed")
}

const oracleRecord = "oracle"

func ledgerRecord(owner uuid.UUID) string {
	return "ledger/" + owner.String()
}

// lock takes the in-process lock of one record. The store's own lock is
// released when the engine call returns, before the event is sequenced.
func (s *Service) lock(record string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[record]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[record] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// setRate runs under the oracle lock, so the gauge follows commit order.
func (s *Service) setRate(rate uint64) {
	if s.metrics != nil {
		s.metrics.OracleRate.Set(float64(rate))
	}
}
