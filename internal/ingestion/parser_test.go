package ingestion_test

import (
	"testing"

	"VaultLedger/internal/ingestion"

	"github.com/google/uuid"
)

func TestParseDeposit(t *testing.T) {
	cmd, err := ingestion.ParseCommand("vault.commands.deposit",
		[]byte(`{"idempotency_key":"dep-1","amount":18446744073709551615}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cmd.Kind != ingestion.CommandDeposit {
		t.Errorf("kind: got %s, want deposit", cmd.Kind)
	}
	if cmd.Amount != ^uint64(0) {
		t.Errorf("amount: got %d, want max uint64", cmd.Amount)
	}
	if cmd.IdempotencyKey != "dep-1" {
		t.Errorf("key: got %q, want dep-1", cmd.IdempotencyKey)
	}
}

func TestParseWithdraw(t *testing.T) {
	owner := uuid.MustParse("660e8400-e29b-41d4-a716-446655440001")
	cmd, err := ingestion.ParseCommand("vault.commands.withdraw",
		[]byte(`{"shares":500,"owner":"660e8400-e29b-41d4-a716-446655440001"}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cmd.Shares != 500 || cmd.Owner != owner {
		t.Errorf("got shares=%d owner=%s", cmd.Shares, cmd.Owner)
	}

	cmd, err = ingestion.ParseCommand("vault.commands.withdraw", []byte(`{"shares":0}`))
	if err != nil {
		t.Fatalf("zero shares must parse (the engine rejects it): %v", err)
	}
	if cmd.Owner != uuid.Nil {
		t.Errorf("owner should default to nil, got %s", cmd.Owner)
	}
}

func TestParseNoBody(t *testing.T) {
	for _, subject := range []string{
		"vault.commands.initialize_oracle",
		"vault.commands.initialize_ledger",
		"vault.commands.update_price",
	} {
		if _, err := ingestion.ParseCommand(subject, nil); err != nil {
			t.Errorf("%s: unexpected error %v", subject, err)
		}
	}
}

func TestParseSetLastUpdate(t *testing.T) {
	cmd, err := ingestion.ParseCommand("vault.commands.set_last_update", []byte(`{"last_update_time":1700000000}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cmd.LastUpdateTime != 1_700_000_000 {
		t.Errorf("got %d", cmd.LastUpdateTime)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		data    string
	}{
		{"unknown kind", "vault.commands.liquidate", `{}`},
		{"foreign subject", "perp.trades.x", `{}`},
		{"missing amount", "vault.commands.deposit", `{}`},
		{"negative amount", "vault.commands.deposit", `{"amount":-1}`},
		{"amount past uint64", "vault.commands.deposit", `{"amount":18446744073709551616}`},
		{"missing shares", "vault.commands.withdraw", `{"owner":"660e8400-e29b-41d4-a716-446655440001"}`},
		{"bad owner", "vault.commands.withdraw", `{"shares":1,"owner":"nope"}`},
		{"missing timestamp", "vault.commands.set_last_update", `{}`},
		{"unknown field", "vault.commands.deposit", `{"amount":1,"asset":"USDC"}`},
		{"malformed", "vault.commands.deposit", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ingestion.ParseCommand(tt.subject, []byte(tt.data)); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}
