package server_test

import (
	"context"
	"errors"
	"net"
	"testing"

	"VaultLedger/internal/core"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/query"
	"VaultLedger/internal/server"
	"VaultLedger/internal/store/memory"
	"VaultLedger/internal/transfer"
	"VaultLedger/internal/vault"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const (
	genesis int64 = 1_700_000_000
	oneYear int64 = 31_536_000
)

type testServer struct {
	client  *server.Client
	conn    *grpc.ClientConn
	srv     *server.GRPCServer
	clock   *vault.ManualClock
	metrics *observability.Metrics
	admin   uuid.UUID
	alice   uuid.UUID
}

func startServer(t *testing.T, allowClockOverride bool) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ts := &testServer{
		clock:   vault.NewManualClock(genesis),
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		admin:   uuid.New(),
		alice:   uuid.New(),
	}

	book := transfer.NewBook()
	if err := book.Seed(ctx, []transfer.SeedBalance{
		{Party: transfer.Pool(), Asset: transfer.AssetBase, Amount: 1_000_000_000_000},
		{Party: transfer.Holder(ts.alice), Asset: transfer.AssetBase, Amount: 1_000_000_000_000},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	engine := vault.NewEngine(memory.New(), book, ts.clock, zerolog.Nop())
	svc, err := core.NewService(engine, core.Options{Metrics: ts.metrics, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	qs := query.NewQueryService(svc, ts.clock)

	ts.srv = server.NewGRPCServer("bufnet", "", &server.ServerDeps{
		Vault:   server.NewVaultService(svc, qs, allowClockOverride),
		Metrics: ts.metrics,
		Logger:  zerolog.Nop(),
	})

	lis := bufconn.Listen(1 << 20)
	go func() { _ = ts.srv.Serve(ctx, lis) }()

	conn, err := server.Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	ts.conn = conn
	ts.client = server.NewClient(conn)
	return ts
}

func as(caller uuid.UUID) context.Context {
	return server.WithCaller(context.Background(), caller)
}

func TestVault_WorkedExample(t *testing.T) {
	ts := startServer(t, true)
	c := ts.client

	if _, err := c.InitializeOracle(as(ts.admin), &server.InitializeOracleRequest{}); err != nil {
		t.Fatalf("init oracle: %v", err)
	}
	if _, err := c.InitializeLedger(as(ts.alice), &server.InitializeLedgerRequest{}); err != nil {
		t.Fatalf("init ledger: %v", err)
	}

	dep, err := c.Deposit(as(ts.alice), &server.DepositRequest{Amount: 10_000_000})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if dep.Shares != 10_000_000 {
		t.Errorf("shares: got %d, want 10_000_000", dep.Shares)
	}

	if _, err := c.SetLastUpdateTime(as(ts.admin), &server.SetLastUpdateTimeRequest{LastUpdateTime: genesis - oneYear}); err != nil {
		t.Fatalf("backdate: %v", err)
	}
	upd, err := c.UpdatePrice(as(ts.admin), &server.UpdatePriceRequest{})
	if err != nil {
		t.Fatalf("update price: %v", err)
	}
	if upd.Rate != 1_050_000 {
		t.Errorf("rate: got %d, want 1_050_000", upd.Rate)
	}

	preview, err := c.PreviewWithdraw(context.Background(), &server.PreviewWithdrawRequest{Shares: 10_000_000})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.Amount != 10_500_000 {
		t.Errorf("preview amount: got %d, want 10_500_000", preview.Amount)
	}

	wd, err := c.Withdraw(as(ts.alice), &server.WithdrawRequest{Shares: 10_000_000})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if wd.BaseAmount != 10_500_000 {
		t.Errorf("base amount: got %d, want 10_500_000", wd.BaseAmount)
	}

	ledger, err := c.GetLedger(context.Background(), &server.GetLedgerRequest{Owner: ts.alice.String()})
	if err != nil {
		t.Fatalf("get ledger: %v", err)
	}
	if ledger.ShareAmount != 0 || ledger.DepositedAmount != 10_000_000 {
		t.Errorf("unexpected ledger %+v", ledger)
	}

	method := "/vaultledger.v1.Vault/Withdraw"
	if got := promtest.ToFloat64(ts.metrics.RequestsTotal.WithLabelValues(method, "OK")); got != 1 {
		t.Errorf("request metric: got %v, want 1", got)
	}
}

func TestVault_ErrorCodes(t *testing.T) {
	ts := startServer(t, false)
	c := ts.client
	if _, err := c.InitializeOracle(as(ts.admin), &server.InitializeOracleRequest{}); err != nil {
		t.Fatalf("init oracle: %v", err)
	}
	if _, err := c.InitializeLedger(as(ts.alice), &server.InitializeLedgerRequest{}); err != nil {
		t.Fatalf("init ledger: %v", err)
	}

	tests := []struct {
		name     string
		call     func() error
		code     codes.Code
		sentinel error
	}{
		{
			name: "missing caller",
			call: func() error {
				_, err := c.Deposit(context.Background(), &server.DepositRequest{Amount: 1})
				return err
			},
			code: codes.Unauthenticated,
		},
		{
			name: "zero amount",
			call: func() error {
				_, err := c.Deposit(as(ts.alice), &server.DepositRequest{})
				return err
			},
			code:     codes.InvalidArgument,
			sentinel: vault.ErrZeroAmount,
		},
		{
			name: "not administrator",
			call: func() error {
				_, err := c.UpdatePrice(as(ts.alice), &server.UpdatePriceRequest{})
				return err
			},
			code:     codes.PermissionDenied,
			sentinel: vault.ErrUnauthorized,
		},
		{
			name: "withdraw from another ledger",
			call: func() error {
				_, err := c.Withdraw(as(ts.admin), &server.WithdrawRequest{Owner: ts.alice.String(), Shares: 1})
				return err
			},
			code:     codes.PermissionDenied,
			sentinel: vault.ErrUnauthorized,
		},
		{
			name: "insufficient shares",
			call: func() error {
				_, err := c.Withdraw(as(ts.alice), &server.WithdrawRequest{Shares: 1})
				return err
			},
			code:     codes.FailedPrecondition,
			sentinel: vault.ErrInsufficientFunds,
		},
		{
			name: "oracle twice",
			call: func() error {
				_, err := c.InitializeOracle(as(ts.admin), &server.InitializeOracleRequest{})
				return err
			},
			code:     codes.AlreadyExists,
			sentinel: vault.ErrAlreadyInitialized,
		},
		{
			name: "unknown ledger",
			call: func() error {
				_, err := c.GetLedger(context.Background(), &server.GetLedgerRequest{Owner: uuid.NewString()})
				return err
			},
			code:     codes.NotFound,
			sentinel: vault.ErrNotFound,
		},
		{
			name: "clock override disabled",
			call: func() error {
				_, err := c.SetLastUpdateTime(as(ts.admin), &server.SetLastUpdateTimeRequest{LastUpdateTime: 1})
				return err
			},
			code: codes.FailedPrecondition,
		},
		{
			name: "deposit overflow",
			call: func() error {
				_, err := c.PreviewDeposit(context.Background(), &server.PreviewDepositRequest{Amount: ^uint64(0)})
				return err
			},
			code:     codes.OutOfRange,
			sentinel: vault.ErrOverflow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if got := status.Code(err); got != tt.code {
				t.Fatalf("code: got %s, want %s (%v)", got, tt.code, err)
			}
			if tt.sentinel != nil && !errors.Is(err, tt.sentinel) {
				t.Errorf("expected errors.Is(%v), got %v", tt.sentinel, err)
			}
		})
	}
}

func TestVault_IdempotencyKey(t *testing.T) {
	ts := startServer(t, false)
	c := ts.client
	if _, err := c.InitializeOracle(as(ts.admin), &server.InitializeOracleRequest{}); err != nil {
		t.Fatalf("init oracle: %v", err)
	}
	if _, err := c.InitializeLedger(as(ts.alice), &server.InitializeLedgerRequest{}); err != nil {
		t.Fatalf("init ledger: %v", err)
	}

	ctx := server.WithIdempotencyKey(as(ts.alice), "dep-7")
	if _, err := c.Deposit(ctx, &server.DepositRequest{Amount: 5}); err != nil {
		t.Fatalf("first deposit: %v", err)
	}
	_, err := c.Deposit(ctx, &server.DepositRequest{Amount: 5})
	if status.Code(err) != codes.AlreadyExists || !errors.Is(err, vault.ErrDuplicateRequest) {
		t.Fatalf("replay: got %v", err)
	}

	ledger, err := c.GetLedger(context.Background(), &server.GetLedgerRequest{Owner: ts.alice.String()})
	if err != nil {
		t.Fatalf("get ledger: %v", err)
	}
	if ledger.DepositedAmount != 5 {
		t.Errorf("replay must not apply: deposited %d", ledger.DepositedAmount)
	}
}

func TestVault_HealthStatus(t *testing.T) {
	ts := startServer(t, false)
	hc := healthpb.NewHealthClient(ts.conn)

	resp, err := hc.Check(context.Background(), &healthpb.HealthCheckRequest{Service: server.ServiceName})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("before SetServing: got %s", resp.Status)
	}

	ts.srv.SetServing(true)
	resp, err = hc.Check(context.Background(), &healthpb.HealthCheckRequest{Service: server.ServiceName})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("after SetServing: got %s", resp.Status)
	}
}
