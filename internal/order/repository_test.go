package order

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestLockOrderSortsByPartID(t *testing.T) {
	// Two carts naming the same parts in opposite order must lock rows identically.
	ab := []Item{{PartID: "A", Qty: 1}, {PartID: "B", Qty: 2}}
	ba := []Item{{PartID: "B", Qty: 2}, {PartID: "A", Qty: 1}}

	require.Equal(t, lockOrder(ab), lockOrder(ba))
	require.Equal(t, "A", lockOrder(ba)[0].PartID)
	require.Equal(t, "B", ba[0].PartID, "input slice must stay untouched")
	require.Empty(t, lockOrder(nil))
}

func TestClassifyTxError(t *testing.T) {
	for _, code := range []string{"40P01", "40001"} {
		err := classifyTxError(fmt.Errorf("decrement stock A: %w", &pgconn.PgError{Code: code}))
		require.ErrorIs(t, err, ErrContention, code)
		var pgErr *pgconn.PgError
		require.ErrorAs(t, err, &pgErr)
	}

	unique := &pgconn.PgError{Code: "23505"}
	require.NotErrorIs(t, classifyTxError(unique), ErrContention)

	plain := errors.New("connection reset")
	require.Equal(t, plain, classifyTxError(plain))
	require.NoError(t, classifyTxError(nil))
}
