package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"VaultLedger/internal/app"
	fpmath "VaultLedger/internal/math"
)

// clientFlags are shared by every command that talks to a running service.
type clientFlags struct {
	addr    string
	caller  string
	key     string
	timeout time.Duration
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.addr, "addr", "", "gRPC address of the vault service (defaults to keeper.target)")
	cmd.Flags().StringVar(&f.caller, "caller", "", "Caller identity (UUID)")
	cmd.Flags().StringVar(&f.key, "key", "", "Idempotency key")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 10*time.Second, "Request timeout")
}

func (f *clientFlags) options() (app.ClientOptions, error) {
	opts := app.ClientOptions{Addr: f.addr, IdempotencyKey: f.key, Timeout: f.timeout}
	if f.caller != "" {
		caller, err := uuid.Parse(f.caller)
		if err != nil {
			return opts, fmt.Errorf("--caller: %w", err)
		}
		opts.Caller = caller
	}
	return opts, nil
}

// clientCommand builds a leaf command that runs a single operation. build
// fills in the operation arguments from the command's own flags.
func clientCommand(use, short string, op app.Operation, build func(*app.ClientRequest) error) *cobra.Command {
	var flags clientFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			req := app.ClientRequest{Op: op}
			if build != nil {
				if err := build(&req); err != nil {
					return err
				}
			}
			return getApp().Exec(cmd.Context(), opts, req, cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	return cmd
}

func parseOwner(s string, required bool) (uuid.UUID, error) {
	if s == "" {
		if required {
			return uuid.Nil, fmt.Errorf("--owner is required")
		}
		return uuid.Nil, nil
	}
	owner, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--owner: %w", err)
	}
	return owner, nil
}

// parseUnits converts a decimal token amount into base units (6 decimals).
// Digits past the sixth decimal place are truncated.
func parseUnits(flag, s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", flag, err)
	}
	units, err := fpmath.AmountConfig.FromDecimal(d)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", flag, err)
	}
	return units, nil
}

var (
	oracleCmd = &cobra.Command{
		Use:   "oracle",
		Short: "Inspect or administer the price oracle",
	}
	ledgerCmd = &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or create deposit ledgers",
	}
	previewCmd = &cobra.Command{
		Use:   "preview",
		Short: "Quote a deposit or withdrawal at the committed rate",
	}

	ledgerOwner    string
	depositAmount  string
	withdrawShares string
	withdrawOwner  string
	previewAmount  string
	previewShares  string

	depositCmd = clientCommand("deposit", "Deposit base tokens for shares", app.OpDeposit, func(r *app.ClientRequest) (err error) {
		r.Amount, err = parseUnits("--amount", depositAmount)
		return err
	})
	withdrawCmd = clientCommand("withdraw", "Redeem shares for base tokens", app.OpWithdraw, func(r *app.ClientRequest) (err error) {
		if r.Owner, err = parseOwner(withdrawOwner, false); err != nil {
			return err
		}
		r.Shares, err = parseUnits("--shares", withdrawShares)
		return err
	})
)

func init() {
	oracleCmd.AddCommand(clientCommand("show", "Show the oracle and its accrued rate", app.OpOracleShow, nil))
	oracleCmd.AddCommand(clientCommand("init", "Create the oracle with the caller as administrator", app.OpOracleInit, nil))
	oracleCmd.AddCommand(clientCommand("update", "Accrue the rate up to now (administrator only)", app.OpOracleUpdate, nil))

	ledgerShow := clientCommand("show", "Show a deposit ledger", app.OpLedgerShow, func(r *app.ClientRequest) error {
		owner, err := parseOwner(ledgerOwner, true)
		r.Owner = owner
		return err
	})
	ledgerShow.Flags().StringVar(&ledgerOwner, "owner", "", "Ledger owner (UUID)")
	ledgerCmd.AddCommand(ledgerShow)
	ledgerCmd.AddCommand(clientCommand("init", "Create the caller's deposit ledger", app.OpLedgerInit, nil))

	depositCmd.Flags().StringVar(&depositAmount, "amount", "0", "Base token amount, e.g. 10.5")
	withdrawCmd.Flags().StringVar(&withdrawShares, "shares", "0", "Share amount, e.g. 10.5")
	withdrawCmd.Flags().StringVar(&withdrawOwner, "owner", "", "Ledger owner (UUID, defaults to the caller)")

	previewDeposit := clientCommand("deposit", "Quote shares for a deposit amount", app.OpPreviewDeposit, func(r *app.ClientRequest) (err error) {
		r.Amount, err = parseUnits("--amount", previewAmount)
		return err
	})
	previewDeposit.Flags().StringVar(&previewAmount, "amount", "0", "Base token amount, e.g. 10.5")
	previewWithdraw := clientCommand("withdraw", "Quote base tokens for a share amount", app.OpPreviewWithdraw, func(r *app.ClientRequest) (err error) {
		r.Shares, err = parseUnits("--shares", previewShares)
		return err
	})
	previewWithdraw.Flags().StringVar(&previewShares, "shares", "0", "Share amount, e.g. 10.5")
	previewCmd.AddCommand(previewDeposit, previewWithdraw)
}
