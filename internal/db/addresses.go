package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/diecasthub/internal/trade"
)

// AddressBook checks shipping addresses against the addresses table.
type AddressBook struct {
	pool *pgxpool.Pool
}

var _ trade.AddressBook = (*AddressBook)(nil)

func NewAddressBook(pool *pgxpool.Pool) *AddressBook {
	return &AddressBook{pool: pool}
}

func (a *AddressBook) Owns(ctx context.Context, userID, addressID string) (bool, error) {
	if _, err := uuid.Parse(addressID); err != nil {
		return false, nil
	}
	var exists bool
	err := a.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM addresses WHERE id = $1 AND user_id::text = $2)`,
		addressID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check address: %w", err)
	}
	return exists, nil
}
