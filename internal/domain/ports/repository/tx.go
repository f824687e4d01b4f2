package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes fn inside a storage transaction and passes the
// handle as tx. The concrete type of tx is infra-defined (pgx.Tx for Postgres,
// nil for the in-memory store). Repositories must accept a nil tx.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
