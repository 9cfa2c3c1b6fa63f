package server

import (
	"context"
	"fmt"

	"VaultLedger/internal/query"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// Client calls vaultledger.v1.Vault. It implements VaultServer, so the HTTP
// gateway can proxy through it.
type Client struct {
	cc grpc.ClientConnInterface
}

var _ VaultServer = (*Client)(nil)

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial connects to a vault gRPC endpoint without transport security.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// WithCaller attaches the caller identity to outgoing calls made with ctx.
func WithCaller(ctx context.Context, caller uuid.UUID) context.Context {
	return metadata.AppendToOutgoingContext(ctx, CallerMetadataKey, caller.String())
}

// WithIdempotencyKey attaches a client idempotency key to the next call.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, IdempotencyMetadataKey, key)
}

func invoke[Resp any](ctx context.Context, c *Client, method string, in any) (*Resp, error) {
	out := new(Resp)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, FromStatus(err)
	}
	return out, nil
}

func (c *Client) InitializeOracle(ctx context.Context, in *InitializeOracleRequest) (*OracleResponse, error) {
	return invoke[OracleResponse](ctx, c, "InitializeOracle", in)
}

func (c *Client) InitializeLedger(ctx context.Context, in *InitializeLedgerRequest) (*LedgerResponse, error) {
	return invoke[LedgerResponse](ctx, c, "InitializeLedger", in)
}

func (c *Client) UpdatePrice(ctx context.Context, in *UpdatePriceRequest) (*UpdatePriceResponse, error) {
	return invoke[UpdatePriceResponse](ctx, c, "UpdatePrice", in)
}

func (c *Client) SetLastUpdateTime(ctx context.Context, in *SetLastUpdateTimeRequest) (*OracleResponse, error) {
	return invoke[OracleResponse](ctx, c, "SetLastUpdateTime", in)
}

func (c *Client) Deposit(ctx context.Context, in *DepositRequest) (*DepositResponse, error) {
	return invoke[DepositResponse](ctx, c, "Deposit", in)
}

func (c *Client) Withdraw(ctx context.Context, in *WithdrawRequest) (*WithdrawResponse, error) {
	return invoke[WithdrawResponse](ctx, c, "Withdraw", in)
}

func (c *Client) GetOracle(ctx context.Context, in *GetOracleRequest) (*query.OracleResponse, error) {
	return invoke[query.OracleResponse](ctx, c, "GetOracle", in)
}

func (c *Client) GetLedger(ctx context.Context, in *GetLedgerRequest) (*query.LedgerResponse, error) {
	return invoke[query.LedgerResponse](ctx, c, "GetLedger", in)
}

func (c *Client) PreviewDeposit(ctx context.Context, in *PreviewDepositRequest) (*query.DepositPreview, error) {
	return invoke[query.DepositPreview](ctx, c, "PreviewDeposit", in)
}

func (c *Client) PreviewWithdraw(ctx context.Context, in *PreviewWithdrawRequest) (*query.WithdrawPreview, error) {
	return invoke[query.WithdrawPreview](ctx, c, "PreviewWithdraw", in)
}
