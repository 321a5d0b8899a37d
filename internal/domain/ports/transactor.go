package ports

import "context"

// Transactor runs fn inside one database transaction. Stores called with the
// context handed to fn join that transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
