package app

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"VaultLedger/internal/keeper"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/server"

	"github.com/prometheus/client_golang/prometheus"
)

// Migrate applies, reverts or reports schema migrations.
func (a *App) Migrate(ctx context.Context, direction string, out io.Writer) error {
	m, db, err := a.Migrator(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	switch direction {
	case "up":
		return m.Up(ctx)
	case "down":
		return m.Down(ctx)
	case "status":
		statuses, err := m.Status(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "Version\tApplied\tFile")
		for _, s := range statuses {
			fmt.Fprintf(w, "%s\t%t\t%s\n", s.Version, s.Applied, s.Filename)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown migration direction %q (want up, down or status)", direction)
	}
}

// RunKeeper drives UpdatePrice against a remote vault service until
// SIGINT/SIGTERM.
func (a *App) RunKeeper(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := a.Config
	admin, err := cfg.KeeperAdmin()
	if err != nil {
		return err
	}
	conn, err := server.Dial(cfg.Keeper.Target)
	if err != nil {
		return err
	}
	defer conn.Close()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	k := keeper.New(keeper.NewRemoteUpdater(server.NewClient(conn)), admin, cfg.Keeper.RequestTimeout, metrics, a.Logger)

	a.Logger.Info().
		Str("target", cfg.Keeper.Target).
		Dur("interval", cfg.Keeper.Interval).
		Msg("keeper started")
	return k.Run(ctx, keeper.NewScheduler(a.keeperOptions(), a.Logger))
}
