package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	commitErr   error
	committed   int
	rolledBack  int
	rollbackErr error
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed++
	return f.commitErr
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	f.rolledBack++
	return f.rollbackErr
}

type fakeBeginner struct {
	tx       *fakeTx
	beginErr error
	begun    int
}

func (f *fakeBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	f.begun++
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return f.tx, nil
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}

	err := WithTx(context.Background(), b, func(ctx context.Context, tx pgx.Tx) error {
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, b.tx.committed)
	assert.Equal(t, 0, b.tx.rolledBack)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	boom := errors.New("boom")

	err := WithTx(context.Background(), b, func(ctx context.Context, tx pgx.Tx) error {
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, b.tx.committed)
	assert.Equal(t, 1, b.tx.rolledBack)
}

func TestWithTxRollsBackOnCommitFailure(t *testing.T) {
	commitErr := errors.New("connection reset")
	b := &fakeBeginner{tx: &fakeTx{commitErr: commitErr}}

	err := WithTx(context.Background(), b, func(ctx context.Context, tx pgx.Tx) error {
		return nil
	})

	require.ErrorIs(t, err, commitErr)
	assert.Equal(t, 1, b.tx.rolledBack)
}

func TestWithTxReusesOpenTransaction(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}

	err := WithTx(context.Background(), b, func(ctx context.Context, outer pgx.Tx) error {
		return WithTx(ctx, b, func(ctx context.Context, inner pgx.Tx) error {
			assert.Same(t, outer, inner)
			return nil
		})
	})

	require.NoError(t, err)
	assert.Equal(t, 1, b.begun)
	assert.Equal(t, 1, b.tx.committed)
}

func TestWithTxInnerErrorAbortsOuter(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	boom := errors.New("inner failure")

	err := WithTx(context.Background(), b, func(ctx context.Context, tx pgx.Tx) error {
		return WithTx(ctx, b, func(ctx context.Context, tx pgx.Tx) error {
			return boom
		})
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, b.tx.committed)
	assert.Equal(t, 1, b.tx.rolledBack)
}
