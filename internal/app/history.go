package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"VaultLedger/internal/persistence"
	"VaultLedger/internal/projection"

	"github.com/google/uuid"
)

// HistoryOptions select which projection to print.
type HistoryOptions struct {
	Owner uuid.UUID // ledger activity when set, rate history otherwise
	Limit int
}

// History prints rate updates or one owner's ledger activity from the
// projection tables.
func (a *App) History(ctx context.Context, opts HistoryOptions, out io.Writer) error {
	db, err := a.OpenDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	reader := projection.NewHistoryReader(db)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	if opts.Owner == uuid.Nil {
		points, err := reader.RateHistory(ctx, opts.Limit)
		if err != nil {
			return err
		}
		if len(points) == 0 {
			fmt.Fprintln(out, "no rate updates found")
			return nil
		}
		fmt.Fprintln(w, "Sequence\tTime (UTC)\tPrevious\tRate\tElapsed")
		for _, p := range points {
			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n",
				p.Sequence,
				p.RecordedAt.UTC().Format(time.RFC3339),
				p.PreviousRate,
				p.Rate,
				time.Duration(p.Elapsed)*time.Second,
			)
		}
		return w.Flush()
	}

	activity, err := reader.LedgerActivity(ctx, opts.Owner, opts.Limit)
	if err != nil {
		return err
	}
	if len(activity) == 0 {
		fmt.Fprintf(out, "no activity found for %s\n", opts.Owner)
		return nil
	}
	fmt.Fprintln(w, "Sequence\tTime (UTC)\tKind\tAmount\tShares\tRate\tShare Balance")
	for _, e := range activity {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\t%d\n",
			e.Sequence,
			e.RecordedAt.UTC().Format(time.RFC3339),
			e.Kind,
			e.Amount,
			e.Shares,
			e.Rate,
			e.ShareAmount,
		)
	}
	return w.Flush()
}

// RebuildHistory clears and refolds the projection tables from the event log.
func (a *App) RebuildHistory(ctx context.Context) (int, error) {
	db, err := a.OpenDB(ctx)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	pw := projection.NewProjectionWorker(db, persistence.NewEventLogReader(db), a.Config.Projection.Interval, a.Config.Projection.BatchSize, nil, a.Logger)
	return pw.Rebuild(ctx)
}
