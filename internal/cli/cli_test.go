package cli

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientFlagsOptions(t *testing.T) {
	caller := uuid.New()
	f := clientFlags{addr: "vault:9090", caller: caller.String(), key: "k1", timeout: time.Second}

	opts, err := f.options()
	require.NoError(t, err)
	assert.Equal(t, "vault:9090", opts.Addr)
	assert.Equal(t, caller, opts.Caller)
	assert.Equal(t, "k1", opts.IdempotencyKey)

	f.caller = "nope"
	_, err = f.options()
	assert.ErrorContains(t, err, "--caller")
}

func TestParseOwner(t *testing.T) {
	owner, err := parseOwner("", false)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, owner)

	_, err = parseOwner("", true)
	assert.ErrorContains(t, err, "--owner is required")

	_, err = parseOwner("xyz", false)
	assert.Error(t, err)
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"},
		{"migrate"},
		{"keeper"},
		{"oracle", "show"},
		{"oracle", "init"},
		{"oracle", "update"},
		{"ledger", "show"},
		{"ledger", "init"},
		{"deposit"},
		{"withdraw"},
		{"preview", "deposit"},
		{"preview", "withdraw"},
		{"history"},
		{"history", "rebuild"},
		{"version"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	cmd, _, err := rootCmd.Find([]string{"withdraw"})
	require.NoError(t, err)
	for _, flag := range []string{"shares", "owner", "caller", "key", "addr"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), flag)
	}
}

func TestParseUnits(t *testing.T) {
	cases := map[string]uint64{
		"10":        10_000_000,
		"10.5":      10_500_000,
		"0.000001":  1,
		"0.0000019": 1,
		"0":         0,
	}
	for in, want := range cases {
		got, err := parseUnits("--amount", in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"-1", "ten", "1e30"} {
		_, err := parseUnits("--amount", bad)
		assert.ErrorContains(t, err, "--amount", bad)
	}
}
