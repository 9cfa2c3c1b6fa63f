package persistence

import (
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"testing/fstest"
	"time"

	"VaultLedger/internal/event"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"000001_vault_records.up.sql", "000001"},
		{"000002_event_log.down.sql", "000002"},
		{"noversion.sql", "noversion.sql"},
	}
	for _, tt := range tests {
		if got := extractVersion(tt.in); got != tt.want {
			t.Errorf("extractVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMigratorFiles(t *testing.T) {
	src := fstest.MapFS{
		"000002_b.up.sql":   {Data: []byte("--")},
		"000001_a.up.sql":   {Data: []byte("--")},
		"000001_a.down.sql": {Data: []byte("--")},
		"README.md":         {Data: []byte("#")},
		"000003_dir.up.sql": {Mode: fs.ModeDir},
	}

	got, err := NewMigrator(nil, src, zerolog.Nop()).files(".up.sql")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"000001_a.up.sql", "000002_b.up.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMigrationSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "000001_x.up.sql"), []byte("--"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := NewMigrator(nil, MigrationSource(dir), zerolog.Nop()).files(".up.sql")
	if err != nil || !reflect.DeepEqual(got, []string{"000001_x.up.sql"}) {
		t.Errorf("directory source: got %v, %v", got, err)
	}

	embedded, err := NewMigrator(nil, MigrationSource(""), zerolog.Nop()).files(".up.sql")
	if err != nil {
		t.Fatalf("embedded source: %v", err)
	}
	if len(embedded) < 3 || embedded[0] != "000001_vault_records.up.sql" {
		t.Errorf("embedded source: got %v", embedded)
	}
}

func TestRowFromEnvelope(t *testing.T) {
	owner := uuid.New()
	env := &event.EventEnvelope{
		Sequence:       7,
		IdempotencyKey: "dep-1",
		EventType:      event.EventTypeDeposited,
		Owner:          &owner,
		Timestamp:      time.Unix(1_700_000_000, 0).UTC(),
		Payload:        []byte(`{"amount":1}`),
		StateHash:      [32]byte{1, 2, 3},
		PrevHash:       [32]byte{9},
	}

	row := RowFromEnvelope(env)
	if row.Sequence != 7 || row.EventType != "Deposited" || row.IdempotencyKey != "dep-1" {
		t.Errorf("unexpected row %+v", row)
	}
	if row.Owner == nil || *row.Owner != owner {
		t.Errorf("owner not carried")
	}
	if len(row.StateHash) != 32 || row.StateHash[2] != 3 || row.PrevHash[0] != 9 {
		t.Errorf("hashes not copied")
	}

	// The row must not alias the envelope's arrays.
	env.StateHash[0] = 0xff
	if row.StateHash[0] == 0xff {
		t.Errorf("state hash aliased")
	}
}
