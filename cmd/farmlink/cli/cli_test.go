package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/farmlink/farmlink/internal/ledger"
)

type stubMigrator struct {
	upCalls int
	version uint
	dirty   bool
	err     error
}

func (s *stubMigrator) Up() error {
	s.upCalls++
	return s.err
}

func (s *stubMigrator) Down() error { return s.err }

func (s *stubMigrator) Version() (uint, bool, error) { return s.version, s.dirty, s.err }

type stubBackfiller struct {
	apply   bool
	summary ledger.SeedDebtBackfillSummary
	err     error
}

func (s *stubBackfiller) BackfillSeedDebt(_ context.Context, apply bool) (ledger.SeedDebtBackfillSummary, error) {
	s.apply = apply
	s.summary.Applied = apply
	return s.summary, s.err
}

func TestMigrateCommand(t *testing.T) {
	m := &stubMigrator{version: 3}
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	require.Equal(t, 0, MigrateCommand(m, "up", stdout, stderr))
	require.Equal(t, 1, m.upCalls)

	stdout.Reset()
	require.Equal(t, 0, MigrateCommand(m, "version", stdout, stderr))
	require.Equal(t, "version 3 dirty=false\n", stdout.String())

	require.Equal(t, 2, MigrateCommand(m, "sideways", stdout, stderr))
	require.Contains(t, stderr.String(), "sideways")

	m.err = errors.New("locked")
	require.Equal(t, 1, MigrateCommand(m, "down", stdout, stderr))
}

func TestSeedDebtCommandDryRunTable(t *testing.T) {
	backfiller := &stubBackfiller{summary: ledger.SeedDebtBackfillSummary{
		Rows: []ledger.SeedDebtBackfillRow{{
			FarmerID:        7,
			TotalSeedAmount: decimal.RequireFromString("5000"),
			Deposit:         decimal.RequireFromString("1500"),
			SeedDebt:        decimal.RequireFromString("3500"),
		}},
		Total: decimal.RequireFromString("3500"),
	}}
	stdout := new(bytes.Buffer)
	code := SeedDebtCommand(context.Background(), backfiller, SeedDebtOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})

	require.Equal(t, 0, code)
	require.False(t, backfiller.apply)
	require.Contains(t, stdout.String(), "3500.00")
	require.Contains(t, stdout.String(), "dry run")
}

func TestSeedDebtCommandJSONApply(t *testing.T) {
	backfiller := &stubBackfiller{summary: ledger.SeedDebtBackfillSummary{Total: decimal.Zero}}
	stdout := new(bytes.Buffer)
	code := SeedDebtCommand(context.Background(), backfiller, SeedDebtOptions{
		Apply:      true,
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     new(bytes.Buffer),
	})
	require.Equal(t, 0, code)
	require.True(t, backfiller.apply)

	var payload struct {
		Applied bool              `json:"applied"`
		Total   string            `json:"total"`
		Rows    []json.RawMessage `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &payload))
	require.True(t, payload.Applied)
	require.Equal(t, "0.00", payload.Total)
	require.Empty(t, payload.Rows)
}

func TestSeedDebtCommandFailure(t *testing.T) {
	stderr := new(bytes.Buffer)
	code := SeedDebtCommand(context.Background(), &stubBackfiller{err: errors.New("conn refused")}, SeedDebtOptions{
		Stdout: new(bytes.Buffer),
		Stderr: stderr,
	})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "conn refused")
}

func TestNewJobsCLIRequiresAddress(t *testing.T) {
	_, err := NewJobsCLI("")
	require.Error(t, err)
}
