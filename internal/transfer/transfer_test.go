package transfer_test

import (
	"context"
	"errors"
	gomath "math"
	"sync"
	"testing"

	"VaultLedger/internal/transfer"

	"github.com/google/uuid"
)

// ============================================================================
// Test: AccountKey / Party
// ============================================================================

func TestAccountKey_HolderPath(t *testing.T) {
	userID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	key := transfer.Holder(userID).Account(transfer.AssetBase)

	path := key.AccountPath()
	expected := "user:550e8400-e29b-41d4-a716-446655440000:holding:USDC"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_PoolPath(t *testing.T) {
	path := transfer.Pool().Account(transfer.AssetShare).AccountPath()
	if path != "system:custody:VSHARE" {
		t.Errorf("got %q, want %q", path, "system:custody:VSHARE")
	}
}

func TestAccountKey_IssuancePath(t *testing.T) {
	path := transfer.NewIssuanceAccountKey(transfer.AssetShare).AccountPath()
	if path != "external:issuance:VSHARE" {
		t.Errorf("got %q, want %q", path, "external:issuance:VSHARE")
	}
}

func TestPool_DistinctFromAnyHolder(t *testing.T) {
	if transfer.Holder(uuid.Nil) == transfer.Pool() {
		t.Fatal("pool must not equal the nil-uuid holder")
	}
	if !transfer.Pool().IsPool() {
		t.Error("Pool().IsPool() should be true")
	}
	if transfer.Holder(uuid.New()).IsPool() {
		t.Error("holder should not report IsPool")
	}
}

func TestGetAssetID(t *testing.T) {
	id, ok := transfer.GetAssetID("VSHARE")
	if !ok || id != transfer.AssetShare {
		t.Errorf("got (%d, %v), want (%d, true)", id, ok, transfer.AssetShare)
	}
	if _, ok := transfer.GetAssetID("DOGE"); ok {
		t.Error("DOGE should not be a known asset")
	}
}

// ============================================================================
// Test: Batch
// ============================================================================

func TestBatch_SkipsZeroLegs(t *testing.T) {
	user := transfer.Holder(uuid.New())
	b := transfer.NewBatch("ref", 1).
		Transfer(transfer.AssetBase, user, transfer.Pool(), 10).
		Mint(transfer.AssetShare, user, 0)

	if len(b.Journals) != 1 {
		t.Fatalf("got %d journals, want 1", len(b.Journals))
	}
	if b.Journals[0].JournalType != transfer.JournalTypeTransfer {
		t.Errorf("got %s, want transfer", b.Journals[0].JournalType)
	}
}

func TestBatch_ValidateRejectsEmpty(t *testing.T) {
	if err := transfer.NewBatch("ref", 1).Validate(); err == nil {
		t.Error("expected error for empty batch")
	}
}

func TestBatch_ValidateRejectsSelfTransfer(t *testing.T) {
	user := transfer.Holder(uuid.New())
	b := transfer.NewBatch("ref", 1).Transfer(transfer.AssetBase, user, user, 5)
	if err := b.Validate(); err == nil {
		t.Error("expected error for self transfer")
	}
}

// ============================================================================
// Test: Book
// ============================================================================

func TestBook_MintTransferBurn(t *testing.T) {
	ctx := context.Background()
	bk := transfer.NewBook()
	user := transfer.Holder(uuid.New())

	if err := bk.Mint(ctx, transfer.AssetBase, user, 1_000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := bk.Transfer(ctx, transfer.AssetBase, user, transfer.Pool(), 400); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := bk.Burn(ctx, transfer.AssetBase, user, 100); err != nil {
		t.Fatalf("burn: %v", err)
	}

	if got := bk.Balance(user, transfer.AssetBase); got != 500 {
		t.Errorf("user balance: got %d, want 500", got)
	}
	if got := bk.Balance(transfer.Pool(), transfer.AssetBase); got != 400 {
		t.Errorf("pool balance: got %d, want 400", got)
	}
	if got := bk.Supply(transfer.AssetBase); got != 900 {
		t.Errorf("supply: got %d, want 900", got)
	}

	if err := transfer.NewInvariantValidator(bk).ValidateSupply(); err != nil {
		t.Errorf("supply invariant: %v", err)
	}
}

func TestBook_ApplyIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	bk := transfer.NewBook()
	user := transfer.Holder(uuid.New())

	if err := bk.Mint(ctx, transfer.AssetBase, user, 100); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// First leg succeeds on its own, second overdraws the pool.
	batch := transfer.NewBatch("withdraw", 1).
		Transfer(transfer.AssetBase, user, transfer.Pool(), 50).
		Transfer(transfer.AssetBase, transfer.Pool(), user, 500)

	err := bk.Apply(ctx, batch)
	if !errors.Is(err, transfer.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	var legErr *transfer.LegError
	if !errors.As(err, &legErr) {
		t.Fatalf("expected *LegError, got %T", err)
	}
	if legErr.Journal.Amount != 500 {
		t.Errorf("failing leg amount: got %d, want 500", legErr.Journal.Amount)
	}

	if got := bk.Balance(user, transfer.AssetBase); got != 100 {
		t.Errorf("user balance changed: got %d, want 100", got)
	}
	if got := bk.Balance(transfer.Pool(), transfer.AssetBase); got != 0 {
		t.Errorf("pool balance changed: got %d, want 0", got)
	}
	if bk.AppliedBatches() != 1 {
		t.Errorf("applied batches: got %d, want 1", bk.AppliedBatches())
	}
}

func TestBook_ReverseRestoresBalances(t *testing.T) {
	ctx := context.Background()
	bk := transfer.NewBook()
	user := transfer.Holder(uuid.New())

	if err := bk.Mint(ctx, transfer.AssetBase, user, 1_000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	before := bk.Snapshot()

	deposit := transfer.NewBatch("deposit", 1).
		Transfer(transfer.AssetBase, user, transfer.Pool(), 600).
		Mint(transfer.AssetShare, user, 570)
	if err := bk.Apply(ctx, deposit); err != nil {
		t.Fatalf("apply: %v", err)
	}

	reversal := deposit.Reverse()
	if reversal.BatchID == deposit.BatchID {
		t.Error("reversal must get its own batch id")
	}
	if got := reversal.Journals[0].JournalType; got != transfer.JournalTypeBurn {
		t.Errorf("first reversal leg: got %s, want burn", got)
	}
	if err := bk.Apply(ctx, reversal); err != nil {
		t.Fatalf("apply reversal: %v", err)
	}

	after := bk.Snapshot()
	if len(after) != len(before) {
		t.Fatalf("accounts: got %v, want %v", after, before)
	}
	for k, v := range before {
		if after[k] != v {
			t.Errorf("%s: got %d, want %d", k.AccountPath(), after[k], v)
		}
	}
	if got := bk.Supply(transfer.AssetShare); got != 0 {
		t.Errorf("share supply: got %d, want 0", got)
	}
}

func TestBook_LegsSeeEarlierLegs(t *testing.T) {
	ctx := context.Background()
	bk := transfer.NewBook()
	user := transfer.Holder(uuid.New())

	// Minting then spending in the same batch is allowed.
	batch := transfer.NewBatch("ref", 1).
		Mint(transfer.AssetShare, user, 10).
		Burn(transfer.AssetShare, user, 10)

	if err := bk.Apply(ctx, batch); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := bk.Supply(transfer.AssetShare); got != 0 {
		t.Errorf("supply: got %d, want 0", got)
	}
}

func TestBook_BalanceOverflow(t *testing.T) {
	ctx := context.Background()
	bk := transfer.NewBook()
	user := transfer.Holder(uuid.New())

	if err := bk.Mint(ctx, transfer.AssetBase, user, gomath.MaxUint64); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := bk.Mint(ctx, transfer.AssetBase, user, 1); !errors.Is(err, transfer.ErrBalanceOverflow) {
		t.Errorf("expected ErrBalanceOverflow, got %v", err)
	}
}

func TestBook_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bk := transfer.NewBook()
	err := bk.Mint(ctx, transfer.AssetBase, transfer.Holder(uuid.New()), 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBook_ConcurrentTransfersKeepSupply(t *testing.T) {
	ctx := context.Background()
	bk := transfer.NewBook()

	users := make([]transfer.Party, 16)
	for i := range users {
		users[i] = transfer.Holder(uuid.New())
		if err := bk.Mint(ctx, transfer.AssetBase, users[i], 1_000); err != nil {
			t.Fatalf("mint: %v", err)
		}
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u transfer.Party) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = bk.Transfer(ctx, transfer.AssetBase, u, transfer.Pool(), 7)
			}
		}(u)
	}
	wg.Wait()

	if err := transfer.NewInvariantValidator(bk).ValidateSupply(); err != nil {
		t.Fatalf("supply invariant: %v", err)
	}
	if got := bk.Balance(transfer.Pool(), transfer.AssetBase); got != 16*700 {
		t.Errorf("pool balance: got %d, want %d", got, 16*700)
	}
}

func TestValidator_PoolCovers(t *testing.T) {
	ctx := context.Background()
	bk := transfer.NewBook()
	if err := bk.Mint(ctx, transfer.AssetBase, transfer.Pool(), 10); err != nil {
		t.Fatalf("mint: %v", err)
	}

	v := transfer.NewInvariantValidator(bk)
	if err := v.ValidatePoolCovers(transfer.AssetBase, 10); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := v.ValidatePoolCovers(transfer.AssetBase, 11); err == nil {
		t.Error("expected error when pool is short")
	}
}

func TestBook_Seed(t *testing.T) {
	ctx := context.Background()
	bk := transfer.NewBook()
	user := transfer.Holder(uuid.New())

	err := bk.Seed(ctx, []transfer.SeedBalance{
		{Party: user, Asset: transfer.AssetBase, Amount: 25},
		{Party: transfer.Pool(), Asset: transfer.AssetBase, Amount: 75},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if got := bk.Supply(transfer.AssetBase); got != 100 {
		t.Errorf("supply: got %d, want 100", got)
	}
}
