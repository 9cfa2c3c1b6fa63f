package ingestion_test

import (
	"context"
	"testing"
	"time"

	"VaultLedger/internal/core"
	"VaultLedger/internal/ingestion"
	"VaultLedger/internal/testutil"
	"VaultLedger/internal/vault"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// notifyExec reports deposits on a channel; the consumer runs Handle on its
// own goroutine.
type notifyExec struct {
	fakeExec
	deposits chan call
}

func (n *notifyExec) Deposit(_ context.Context, req core.Request, amount uint64) (vault.DepositReceipt, error) {
	n.deposits <- call{op: "deposit", req: req, amount: amount}
	return vault.DepositReceipt{}, nil
}

func TestCommandSubscriber_JetStreamRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)

	nc, js, err := ingestion.ConnectNATS(testutil.TestNATSURL(), zerolog.Nop())
	if err != nil {
		t.Skipf("test NATS not available: %v", err)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ingestion.EnsureStreams(ctx, js, zerolog.Nop()); err != nil {
		t.Fatalf("ensure streams: %v", err)
	}

	exec := &notifyExec{deposits: make(chan call, 1)}
	sub := ingestion.NewCommandSubscriber(js, exec, false, nil, zerolog.Nop())
	if err := sub.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Stop()

	caller := uuid.New()
	key := "it-" + uuid.NewString()
	msg := nats.NewMsg(ingestion.CommandSubjectPrefix + "deposit")
	msg.Header.Set(ingestion.CallerHeader, caller.String())
	msg.Data = []byte(`{"idempotency_key":"` + key + `","amount":5}`)
	if _, err := js.PublishMsg(ctx, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// The durable consumer may still hold commands from earlier runs.
	for {
		select {
		case got := <-exec.deposits:
			if got.req.IdempotencyKey != key {
				continue
			}
			if got.req.Caller != caller || got.amount != 5 {
				t.Fatalf("unexpected deposit %+v", got)
			}
			return
		case <-ctx.Done():
			t.Fatal("deposit command was not delivered")
		}
	}
}
