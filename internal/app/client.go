package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/server"

	"github.com/google/uuid"
)

// ClientOptions address a running vault service.
type ClientOptions struct {
	Addr           string
	Caller         uuid.UUID
	IdempotencyKey string
	Timeout        time.Duration
}

// Operation names a client command.
type Operation string

const (
	OpOracleShow      Operation = "oracle-show"
	OpOracleInit      Operation = "oracle-init"
	OpOracleUpdate    Operation = "oracle-update"
	OpLedgerShow      Operation = "ledger-show"
	OpLedgerInit      Operation = "ledger-init"
	OpDeposit         Operation = "deposit"
	OpWithdraw        Operation = "withdraw"
	OpPreviewDeposit  Operation = "preview-deposit"
	OpPreviewWithdraw Operation = "preview-withdraw"
)

// ClientRequest carries the per-operation arguments.
type ClientRequest struct {
	Op     Operation
	Owner  uuid.UUID
	Amount uint64
	Shares uint64
}

// Exec dials the service and runs one operation, writing a table to out.
func (a *App) Exec(ctx context.Context, opts ClientOptions, req ClientRequest, out io.Writer) error {
	addr := opts.Addr
	if addr == "" {
		addr = a.Config.Keeper.Target
	}
	conn, err := server.Dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	if opts.Caller != uuid.Nil {
		ctx = server.WithCaller(ctx, opts.Caller)
	}
	if opts.IdempotencyKey != "" {
		ctx = server.WithIdempotencyKey(ctx, opts.IdempotencyKey)
	}

	return run(ctx, server.NewClient(conn), req, out)
}

func run(ctx context.Context, c server.VaultServer, req ClientRequest, out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer w.Flush()

	switch req.Op {
	case OpOracleShow:
		o, err := c.GetOracle(ctx, &server.GetOracleRequest{})
		if err != nil {
			return err
		}
		row(w, "administrator", o.Administrator)
		row(w, "rate", fmt.Sprintf("%d (%s)", o.Rate, o.RateDecimal.String()))
		row(w, "accrued_rate", o.AccruedRate)
		row(w, "last_update_time", formatUnix(o.LastUpdateTime))
		row(w, "version", o.Version)
		row(w, "as_of_sequence", o.AsOfSequence)

	case OpOracleInit:
		resp, err := c.InitializeOracle(ctx, &server.InitializeOracleRequest{})
		if err != nil {
			return err
		}
		row(w, "administrator", resp.Oracle.Administrator)
		row(w, "rate", resp.Oracle.Rate)
		row(w, "last_update_time", formatUnix(resp.Oracle.LastUpdateTime))

	case OpOracleUpdate:
		resp, err := c.UpdatePrice(ctx, &server.UpdatePriceRequest{})
		if err != nil {
			return err
		}
		row(w, "previous_rate", resp.PreviousRate)
		row(w, "rate", resp.Rate)
		row(w, "elapsed", time.Duration(resp.Elapsed)*time.Second)
		row(w, "last_update_time", formatUnix(resp.LastUpdateTime))

	case OpLedgerShow:
		l, err := c.GetLedger(ctx, &server.GetLedgerRequest{Owner: req.Owner.String()})
		if err != nil {
			return err
		}
		row(w, "owner", l.Owner)
		row(w, "deposited_amount", l.DepositedAmount)
		row(w, "share_amount", l.ShareAmount)
		row(w, "redeemable_amount", l.RedeemableAmount)
		row(w, "version", l.Version)
		row(w, "as_of_sequence", l.AsOfSequence)

	case OpLedgerInit:
		resp, err := c.InitializeLedger(ctx, &server.InitializeLedgerRequest{})
		if err != nil {
			return err
		}
		row(w, "owner", resp.Ledger.Owner)
		row(w, "version", resp.Ledger.Version)

	case OpDeposit:
		resp, err := c.Deposit(ctx, &server.DepositRequest{Amount: req.Amount})
		if err != nil {
			return err
		}
		row(w, "owner", resp.Owner)
		row(w, "amount", resp.Amount)
		row(w, "shares", resp.Shares)
		row(w, "rate", resp.Rate)
		row(w, "share_amount", resp.Ledger.ShareAmount)
		row(w, "batch_id", resp.BatchID)

	case OpWithdraw:
		in := &server.WithdrawRequest{Shares: req.Shares}
		if req.Owner != uuid.Nil {
			in.Owner = req.Owner.String()
		}
		resp, err := c.Withdraw(ctx, in)
		if err != nil {
			return err
		}
		row(w, "owner", resp.Owner)
		row(w, "shares", resp.Shares)
		row(w, "base_amount", resp.BaseAmount)
		row(w, "rate", resp.Rate)
		row(w, "share_amount", resp.Ledger.ShareAmount)
		row(w, "batch_id", resp.BatchID)

	case OpPreviewDeposit:
		p, err := c.PreviewDeposit(ctx, &server.PreviewDepositRequest{Amount: req.Amount})
		if err != nil {
			return err
		}
		row(w, "amount", p.Amount)
		row(w, "shares", p.Shares)
		row(w, "rate", scaled(p.Rate))

	case OpPreviewWithdraw:
		p, err := c.PreviewWithdraw(ctx, &server.PreviewWithdrawRequest{Shares: req.Shares})
		if err != nil {
			return err
		}
		row(w, "shares", p.Shares)
		row(w, "amount", p.Amount)
		row(w, "rate", scaled(p.Rate))

	default:
		return fmt.Errorf("unknown operation %q", req.Op)
	}
	return nil
}

func row(w io.Writer, key string, value any) {
	fmt.Fprintf(w, "%s\t%v\n", key, value)
}

func formatUnix(ts int64) string {
	return fmt.Sprintf("%d (%s)", ts, time.Unix(ts, 0).UTC().Format(time.RFC3339))
}

func scaled(rate uint64) string {
	return fmt.Sprintf("%d (%s)", rate, fpmath.RateConfig.ToDecimal(rate).String())
}
