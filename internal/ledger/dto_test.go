package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostingInputValidate(t *testing.T) {
	base := func(t *testing.T) PostingInput { return validInput(t) }

	t.Run("accepts balanced lines", func(t *testing.T) {
		require.NoError(t, base(t).Validate())
	})

	t.Run("requires tenant", func(t *testing.T) {
		in := base(t)
		in.TenantID = 0
		require.ErrorIs(t, in.Validate(), ErrInvalidLine)
	})

	t.Run("requires idempotency key", func(t *testing.T) {
		in := base(t)
		in.IdempotencyKey = ""
		require.ErrorIs(t, in.Validate(), ErrInvalidLine)
	})

	t.Run("requires lines", func(t *testing.T) {
		in := base(t)
		in.Lines = nil
		require.ErrorIs(t, in.Validate(), ErrNoLines)
	})

	t.Run("rejects zero amount", func(t *testing.T) {
		in := base(t)
		in.Lines[0].Amount = mustDec(t, "0")
		require.ErrorIs(t, in.Validate(), ErrInvalidLine)
	})

	t.Run("rejects negative amount", func(t *testing.T) {
		in := base(t)
		in.Lines[0].Amount = mustDec(t, "-5")
		require.ErrorIs(t, in.Validate(), ErrInvalidLine)
	})

	t.Run("rejects unknown side", func(t *testing.T) {
		in := base(t)
		in.Lines[0].Side = "BOTH"
		require.ErrorIs(t, in.Validate(), ErrInvalidLine)
	})

	t.Run("rejects one-sided currency", func(t *testing.T) {
		in := base(t)
		in.Lines = append(in.Lines,
			LineInput{AccountCode: "5200", Side: SideCredit, Amount: mustDec(t, "10.00"), Currency: "USD"})
		require.ErrorIs(t, in.Validate(), ErrUnbalanced)
	})

	t.Run("balances each currency independently", func(t *testing.T) {
		in := base(t)
		in.Lines = append(in.Lines,
			LineInput{AccountCode: "5200", Side: SideDebit, Amount: mustDec(t, "10.00"), Currency: "USD"},
			LineInput{AccountCode: "1000", Side: SideCredit, Amount: mustDec(t, "10.00"), Currency: "USD"})
		require.NoError(t, in.Validate())
	})
}
