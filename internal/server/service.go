package server

import (
	"context"

	"VaultLedger/internal/core"
	"VaultLedger/internal/query"
	"VaultLedger/internal/vault"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Operations is the mutating surface of core.Service.
type Operations interface {
	InitializeOracle(ctx context.Context, req core.Request) (vault.PriceOracle, error)
	InitializeLedger(ctx context.Context, req core.Request) (vault.DepositLedger, error)
	UpdatePrice(ctx context.Context, req core.Request) (vault.PriceUpdate, error)
	SetLastUpdateTime(ctx context.Context, req core.Request, ts int64) (vault.PriceOracle, error)
	Deposit(ctx context.Context, req core.Request, amount uint64) (vault.DepositReceipt, error)
	Withdraw(ctx context.Context, req core.Request, owner uuid.UUID, shares uint64) (vault.WithdrawReceipt, error)
}

type vaultService struct {
	ops                Operations
	qs                 *query.QueryService
	allowClockOverride bool
}

// NewVaultService adapts the core and query services to VaultServer.
func NewVaultService(ops Operations, qs *query.QueryService, allowClockOverride bool) VaultServer {
	return &vaultService{ops: ops, qs: qs, allowClockOverride: allowClockOverride}
}

func (s *vaultService) InitializeOracle(ctx context.Context, _ *InitializeOracleRequest) (*OracleResponse, error) {
	req, err := requestFromContext(ctx)
	if err != nil {
		return nil, err
	}
	oracle, err := s.ops.InitializeOracle(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return &OracleResponse{Oracle: oracle}, nil
}

func (s *vaultService) InitializeLedger(ctx context.Context, _ *InitializeLedgerRequest) (*LedgerResponse, error) {
	req, err := requestFromContext(ctx)
	if err != nil {
		return nil, err
	}
	ledger, err := s.ops.InitializeLedger(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return &LedgerResponse{Ledger: ledger}, nil
}

func (s *vaultService) UpdatePrice(ctx context.Context, _ *UpdatePriceRequest) (*UpdatePriceResponse, error) {
	req, err := requestFromContext(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.ops.UpdatePrice(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return &UpdatePriceResponse{
		PreviousRate:   u.PreviousRate,
		Rate:           u.Rate,
		Elapsed:        u.Elapsed,
		LastUpdateTime: u.LastUpdateTime,
		Version:        u.Version,
	}, nil
}

func (s *vaultService) SetLastUpdateTime(ctx context.Context, in *SetLastUpdateTimeRequest) (*OracleResponse, error) {
	if !s.allowClockOverride {
		return nil, toStatus(errClockOverrideDisabled)
	}
	req, err := requestFromContext(ctx)
	if err != nil {
		return nil, err
	}
	oracle, err := s.ops.SetLastUpdateTime(ctx, req, in.LastUpdateTime)
	if err != nil {
		return nil, toStatus(err)
	}
	return &OracleResponse{Oracle: oracle}, nil
}

func (s *vaultService) Deposit(ctx context.Context, in *DepositRequest) (*DepositResponse, error) {
	req, err := requestFromContext(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.ops.Deposit(ctx, req, in.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DepositResponse{
		Owner:   r.Owner,
		Amount:  r.Amount,
		Shares:  r.Shares,
		Rate:    r.Rate,
		BatchID: r.BatchID,
		Ledger:  r.Ledger,
	}, nil
}

func (s *vaultService) Withdraw(ctx context.Context, in *WithdrawRequest) (*WithdrawResponse, error) {
	req, err := requestFromContext(ctx)
	if err != nil {
		return nil, err
	}
	owner := req.Caller
	if in.Owner != "" {
		if owner, err = parseUUID(in.Owner, "owner"); err != nil {
			return nil, err
		}
	}
	r, err := s.ops.Withdraw(ctx, req, owner, in.Shares)
	if err != nil {
		return nil, toStatus(err)
	}
	return &WithdrawResponse{
		Owner:      r.Owner,
		Shares:     r.Shares,
		BaseAmount: r.BaseAmount,
		Rate:       r.Rate,
		BatchID:    r.BatchID,
		Ledger:     r.Ledger,
	}, nil
}

func (s *vaultService) GetOracle(ctx context.Context, _ *GetOracleRequest) (*query.OracleResponse, error) {
	resp, err := s.qs.GetOracle(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func (s *vaultService) GetLedger(ctx context.Context, in *GetLedgerRequest) (*query.LedgerResponse, error) {
	if in.Owner == "" {
		return nil, status.Error(codes.InvalidArgument, "owner is required")
	}
	owner, err := parseUUID(in.Owner, "owner")
	if err != nil {
		return nil, err
	}
	resp, err := s.qs.GetLedger(ctx, owner)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func (s *vaultService) PreviewDeposit(ctx context.Context, in *PreviewDepositRequest) (*query.DepositPreview, error) {
	resp, err := s.qs.PreviewDeposit(ctx, in.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func (s *vaultService) PreviewWithdraw(ctx context.Context, in *PreviewWithdrawRequest) (*query.WithdrawPreview, error) {
	resp, err := s.qs.PreviewWithdraw(ctx, in.Shares)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

// ============================================================================
// Helpers
// ============================================================================

// requestFromContext reads the caller and idempotency key from incoming
// metadata. Mutating calls without a caller are rejected.
func requestFromContext(ctx context.Context) (core.Request, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	callers := md.Get(CallerMetadataKey)
	if len(callers) == 0 || callers[0] == "" {
		return core.Request{}, status.Errorf(codes.Unauthenticated, "%s metadata is required", CallerMetadataKey)
	}
	caller, err := uuid.Parse(callers[0])
	if err != nil {
		return core.Request{}, status.Errorf(codes.Unauthenticated, "invalid %s: %v", CallerMetadataKey, err)
	}

	req := core.Request{Caller: caller}
	if keys := md.Get(IdempotencyMetadataKey); len(keys) > 0 {
		req.IdempotencyKey = keys[0]
	}
	return req, nil
}

func parseUUID(s, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid %s: %v", field, err)
	}
	return id, nil
}
