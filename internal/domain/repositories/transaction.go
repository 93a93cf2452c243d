package repositories

import "context"

// TxFn is a function that runs within a transaction. Repositories called with
// the ctx passed to fn join the transaction.
type TxFn func(ctx context.Context) error

// TransactionManager runs multi-step store operations atomically.
// The postgres implementation uses a pgx transaction; the memory store restores
// a copy of its tables when fn fails.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}
