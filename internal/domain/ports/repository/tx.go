package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a database transaction and hands the
// transaction handle to fn as tx.
//
// Repositories accept that handle (or NoTX for the pool) and switch to
// SELECT ... FOR UPDATE when they see a live transaction. The concrete type
// is infra-defined (pgx.Tx for Postgres); repositories must accept nil.
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		t, err := transactions.FindByReference(ctx, tx, ref)
//		...
//		return err
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
