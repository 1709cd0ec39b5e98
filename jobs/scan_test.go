package jobs

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestScanQueriesUseStorageColumnNames(t *testing.T) {
	for _, col := range []string{"currency_code", "debit_amount", "credit_amount"} {
		require.Contains(t, ledgerIntegrityQuery, col)
	}
	for _, col := range []string{"qty_on_hand", "wac_unit_cost", "qty_delta", "value_delta"} {
		require.Contains(t, stockReconcileQuery, col)
	}
}

func TestValueToleranceAbsorbsAverageCostRounding(t *testing.T) {
	// Receipts of 1 @ 1.00 then 2 @ 2.00 carry exactly 5 in value, but the
	// stored average is 5/3 at division precision, so qty*wac lands a hair
	// off the movement sum.
	wac := decimal.NewFromInt(5).Div(decimal.NewFromInt(3))
	balanceValue := wac.Mul(decimal.NewFromInt(3))
	movedValue := decimal.NewFromInt(5)

	require.False(t, balanceValue.Equal(movedValue))
	require.True(t, valueWithinTolerance(balanceValue, movedValue))

	require.False(t, valueWithinTolerance(decimal.RequireFromString("5.01"), movedValue))
	require.True(t, valueWithinTolerance(movedValue, movedValue))
}
