package repository

import "context"

// TxRunner runs fn inside a single database transaction. Repositories called
// with the ctx handed to fn join that transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
