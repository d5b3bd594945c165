package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDebitFloorsAtZero(t *testing.T) {
	l := New(1.0)

	l.Debit(0.4, "first")
	require.InDelta(t, 0.6, l.Balance(), 1e-9)

	l.Debit(2.0, "overdraw")
	require.Equal(t, 0.0, l.Balance())

	l.Debit(0.1, "already empty")
	require.Equal(t, 0.0, l.Balance())
}

func TestDebitIgnoresNonPositiveAmounts(t *testing.T) {
	l := New(5.0)
	l.Debit(0, "zero")
	l.Debit(-1, "negative")
	require.Equal(t, 5.0, l.Balance())
	require.Empty(t, l.History())
}

func TestCreditAndHistory(t *testing.T) {
	l := New(0)
	l.Credit(2.5, "top-up")
	l.Debit(1.0, "generation")

	require.InDelta(t, 1.5, l.Balance(), 1e-9)
	history := l.History()
	require.Len(t, history, 2)
	require.Equal(t, 2.5, history[0].Amount)
	require.Equal(t, -1.0, history[1].Amount)
	require.Equal(t, "generation", history[1].Reason)
}

func TestSetBalanceClampsNegative(t *testing.T) {
	l := New(0)
	l.SetBalance(-3, nil)
	require.Equal(t, 0.0, l.Balance())
}
