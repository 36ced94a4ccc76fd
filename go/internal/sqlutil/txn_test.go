package sqlutil

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(context.Context) error   { f.committed = true; return nil }
func (f *fakeTx) Rollback(context.Context) error { f.rolledBack = true; return nil }

type fakeDB struct {
	tx  *fakeTx
	err error
}

func (f *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tx, nil
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	db := &fakeDB{tx: &fakeTx{}}
	assert.NoError(t, Run(ctx, db, func(pgx.Tx) error { return nil }))
	assert.True(t, db.tx.committed)
	assert.False(t, db.tx.rolledBack)

	boom := errors.New("boom")
	db = &fakeDB{tx: &fakeTx{}}
	assert.ErrorIs(t, Run(ctx, db, func(pgx.Tx) error { return boom }), boom)
	assert.True(t, db.tx.rolledBack)
	assert.False(t, db.tx.committed)

	db = &fakeDB{err: boom}
	called := false
	assert.ErrorIs(t, Run(ctx, db, func(pgx.Tx) error { called = true; return nil }), boom)
	assert.False(t, called)
}
