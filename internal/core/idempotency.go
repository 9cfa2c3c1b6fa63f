package core

import (
	"context"

	"VaultLedger/internal/observability"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// DBIdempotencyChecker is the interface for the Postgres dedup lookup.
type DBIdempotencyChecker interface {
	IsDuplicate(ctx context.Context, eventType, idempotencyKey string) (bool, error)
}

// IdempotencyChecker implements two-tier deduplication. Tier 1 is an
// in-memory LRU of claimed keys, tier 2 the persisted event log.
type IdempotencyChecker struct {
	lru       *lru.Cache[string, struct{}]
	dbChecker DBIdempotencyChecker
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker, metrics *observability.Metrics, logger zerolog.Logger) (*IdempotencyChecker, error) {
	if capacity <= 0 {
		capacity = 100_000
	}
	cache, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, err
	}
	return &IdempotencyChecker{
		lru:       cache,
		dbChecker: dbChecker,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// Claim reserves (eventType, key) for one request. It returns false when the
// key was already claimed or is found in the event log. A claimed key must be
// released with Release if the request then fails.
func (ic *IdempotencyChecker) Claim(ctx context.Context, eventType, key string) bool {
	composite := eventType + ":" + key

	if found, _ := ic.lru.ContainsOrAdd(composite, struct{}{}); found {
		ic.recordDuplicate(eventType, "lru")
		return false
	}
	ic.recordSize()

	if ic.dbChecker == nil {
		return true
	}

	isDup, err := ic.dbChecker.IsDuplicate(ctx, eventType, key)
	if err != nil {
		// Tier 2 fails open: only the LRU guards this key.
		ic.logger.Warn().Err(err).Str("event_type", eventType).Msg("dedup tier 2 lookup failed")
		if ic.metrics != nil {
			ic.metrics.DedupTier2Errors.Inc()
		}
		return true
	}
	if isDup {
		ic.recordDuplicate(eventType, "postgres")
		return false
	}
	return true
}

// Release forgets a claim whose request did not commit.
func (ic *IdempotencyChecker) Release(eventType, key string) {
	ic.lru.Remove(eventType + ":" + key)
	ic.recordSize()
}

// Warm loads "EventType:key" composites, e.g. recent keys from the event log.
func (ic *IdempotencyChecker) Warm(composites []string) {
	for _, c := range composites {
		ic.lru.Add(c, struct{}{})
	}
	ic.recordSize()
}

// Size returns the number of keys held in tier 1.
func (ic *IdempotencyChecker) Size() int {
	return ic.lru.Len()
}

func (ic *IdempotencyChecker) recordDuplicate(eventType, tier string) {
	if ic.metrics != nil {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(eventType, tier).Inc()
	}
}

func (ic *IdempotencyChecker) recordSize() {
	if ic.metrics != nil {
		ic.metrics.DedupLRUSize.Set(float64(ic.lru.Len()))
	}
}
