/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the wallet-service needs. Keeping it an interface decouples the
 * business logic from PostgreSQL and lets tests substitute an in-memory fake.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sikapay/wallet-service/internal/domain"
)

// ErrTransactionNotFound is returned when no transaction matches the lookup.
var ErrTransactionNotFound = errors.New("transaction not found")

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// CreateTransaction persists the snapshot of a completed wizard run.
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error

	// History reads for the consumer app.
	FindTransactionsByUserID(ctx context.Context, userID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error)
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error)

	// Admin reads. Analytical correctness is out of scope; these are plain
	// listings and counts backing the back-office tables.
	ListTransactions(ctx context.Context, opts domain.TransactionListOptions) ([]domain.Transaction, error)
	GetTransactionStats(ctx context.Context) (*domain.TransactionStats, error)
}
