package repository

import "context"

// TxManager runs fn atomically; repositories called with the derived context join the transaction.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
