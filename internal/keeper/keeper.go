package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"VaultLedger/internal/core"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/server"
	"VaultLedger/internal/vault"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PriceUpdater runs UpdatePrice; core.Service satisfies it in-process and
// RemoteUpdater over gRPC.
type PriceUpdater interface {
	UpdatePrice(ctx context.Context, req core.Request) (vault.PriceUpdate, error)
}

// Keeper accrues the oracle rate by calling UpdatePrice as the administrator
// once per tick.
type Keeper struct {
	updater PriceUpdater
	admin   uuid.UUID
	timeout time.Duration
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func New(updater PriceUpdater, admin uuid.UUID, timeout time.Duration, metrics *observability.Metrics, logger zerolog.Logger) *Keeper {
	return &Keeper{
		updater: updater,
		admin:   admin,
		timeout: timeout,
		metrics: metrics,
		logger:  logger.With().Str("component", "keeper").Logger(),
	}
}

// Tick issues one UpdatePrice. The idempotency key is derived from the
// bucket, so keepers sharing an aligned schedule apply each bucket once.
func (k *Keeper) Tick(ctx context.Context, bucket time.Time) error {
	if k.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.timeout)
		defer cancel()
	}

	req := core.Request{
		Caller:         k.admin,
		IdempotencyKey: fmt.Sprintf("keeper:%d", bucket.Unix()),
	}
	update, err := k.updater.UpdatePrice(ctx, req)
	switch {
	case err == nil:
		k.record("applied")
		k.logger.Info().
			Uint64("previous_rate", update.PreviousRate).
			Uint64("rate", update.Rate).
			Uint64("elapsed", update.Elapsed).
			Time("bucket", bucket).
			Msg("price updated")
		return nil
	case errors.Is(err, vault.ErrDuplicateRequest):
		k.record("duplicate")
		k.logger.Debug().Time("bucket", bucket).Msg("bucket already applied")
		return nil
	default:
		k.record(vault.ErrorKind(err))
		return fmt.Errorf("update price: %w", err)
	}
}

// Run ticks on the scheduler until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context, sched *Scheduler) error {
	err := sched.Run(ctx, k.Tick)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (k *Keeper) record(result string) {
	if k.metrics != nil {
		k.metrics.KeeperTicks.WithLabelValues(result).Inc()
	}
}

// RemoteUpdater calls UpdatePrice on a vault gRPC server.
type RemoteUpdater struct {
	client *server.Client
}

func NewRemoteUpdater(client *server.Client) *RemoteUpdater {
	return &RemoteUpdater{client: client}
}

func (r *RemoteUpdater) UpdatePrice(ctx context.Context, req core.Request) (vault.PriceUpdate, error) {
	ctx = server.WithIdempotencyKey(server.WithCaller(ctx, req.Caller), req.IdempotencyKey)
	resp, err := r.client.UpdatePrice(ctx, &server.UpdatePriceRequest{})
	if err != nil {
		return vault.PriceUpdate{}, err
	}
	return vault.PriceUpdate{
		PreviousRate:   resp.PreviousRate,
		Rate:           resp.Rate,
		Elapsed:        resp.Elapsed,
		LastUpdateTime: resp.LastUpdateTime,
		Version:        resp.Version,
	}, nil
}
