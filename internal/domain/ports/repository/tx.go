package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager provides a thin abstraction to execute a function within
// a database transaction, passing the underlying transaction handle via `tx`.
//
// Keeps use-case interfaces clean (no transaction types leaking out) while
// allowing repository methods that accept a Tx to run SELECT ... FOR UPDATE
// or tx-bound Exec/Query as needed. The concrete type of `tx` is
// infra-defined (pgx.Tx for Postgres). Repositories MUST gracefully accept a
// nil tx (non-transactional path), which is what in-memory test doubles use.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
