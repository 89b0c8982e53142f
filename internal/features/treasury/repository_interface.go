// Package treasury — repository_interface.go описывает контракт хранилища казны.
package treasury

import "context"

// Repository — контракт хранилища казны.
type Repository interface {
	Get(ctx context.Context, guildID string) (*Treasury, error)
	// Distribute атомарно переносит средства из казны на кошелёк пользователя.
	Distribute(ctx context.Context, guildID, userID, kind string, amount int64) (int64, error)
}
