package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// logEntries decodes the JSON lines a zerolog logger wrote to buf.
func logEntries(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

// findLog returns the first entry with the given message.
func findLog(t *testing.T, buf *bytes.Buffer, msg string) map[string]interface{} {
	t.Helper()
	for _, e := range logEntries(t, buf) {
		if e["message"] == msg {
			return e
		}
	}
	t.Fatalf("no %q log entry in %s", msg, buf.String())
	return nil
}

// mockTx satisfies pgx.Tx for services that only Commit or Rollback.
type mockTx struct {
	pgx.Tx
	committed  bool
	commitErr  error
	rolledBack bool
}

func (m *mockTx) Commit(_ context.Context) error {
	m.committed = true
	return m.commitErr
}

func (m *mockTx) Rollback(_ context.Context) error {
	m.rolledBack = true
	return nil
}

// decimalEq matches decimals by value regardless of exponent.
type decimalEq struct{ want decimal.Decimal }

func (m decimalEq) Matches(x interface{}) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m decimalEq) String() string { return "is decimal " + m.want.String() }
