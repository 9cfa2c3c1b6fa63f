package event

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
)

func TestEventTypeNames(t *testing.T) {
	for et := EventTypeOracleInitialized; et <= EventTypeLastUpdateOverridden; et++ {
		if et.String() == "Unknown" {
			t.Errorf("event type %d has no name", et)
		}
		if got := ParseEventType(et.String()); got != et {
			t.Errorf("ParseEventType(%q) = %v, want %v", et.String(), got, et)
		}
	}

	if got := ParseEventType("deposited"); got != EventTypeDeposited {
		t.Errorf("expected case-insensitive parse, got %v", got)
	}
	if got := ParseEventType("TradeFill"); got != EventTypeUnknown {
		t.Errorf("expected Unknown, got %v", got)
	}
	if got := EventTypePriceUpdated.Subject(); got != "priceupdated" {
		t.Errorf("unexpected subject token %q", got)
	}
}

func TestEncodeIsStable(t *testing.T) {
	owner := uuid.New()
	batch := uuid.New()
	mk := func() *Deposited {
		return &Deposited{Key: "k1", Holder: owner, Amount: 10, Shares: 9, Rate: 1_050_000, BatchID: batch, Version: 3}
	}

	a, err := Encode(mk())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, err := Encode(mk())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("encoding not stable:\n%s\n%s", a, b)
	}

	decoded, err := Decode(EventTypeDeposited, a)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	d, ok := decoded.(*Deposited)
	if !ok {
		t.Fatalf("decoded %T", decoded)
	}
	if *d != *mk() {
		t.Errorf("decoded %+v", d)
	}
	if d.Owner() == nil || *d.Owner() != owner {
		t.Errorf("owner lost")
	}
}

func TestOracleEventsHaveNoOwner(t *testing.T) {
	events := []Event{&OracleInitialized{}, &PriceUpdated{}, &LastUpdateOverridden{}}
	for _, e := range events {
		if e.Owner() != nil {
			t.Errorf("%s should have nil owner", e.EventType())
		}
	}
}

func TestDecodeUnknown(t *testing.T) {
	if _, err := Decode(EventTypeUnknown, []byte("{}")); err == nil {
		t.Fatal("expected error")
	}
}
