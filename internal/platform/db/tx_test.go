package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type outerTx struct{ pgx.Tx }

func TestTxOptionsReadCommitted(t *testing.T) {
	require.Equal(t, pgx.ReadCommitted, TxOptions().IsoLevel)
}

func TestWithTxJoinsOuterTransaction(t *testing.T) {
	outer := outerTx{}
	ctx := context.WithValue(context.Background(), txKey{}, pgx.Tx(outer))

	var joined pgx.Tx
	err := WithTx(ctx, nil, func(ctx context.Context, tx pgx.Tx) error {
		joined = tx
		require.Equal(t, Querier(outer), Conn(ctx, nil))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, pgx.Tx(outer), joined)
}
