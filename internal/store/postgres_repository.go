/**
 * @description
 * PostgreSQL implementation of the Repository interface using the pgx driver.
 * Transactions are append-only: a row is inserted once when a wizard run
 * completes and never updated afterwards.
 *
 * @dependencies
 * - context, errors, fmt: Standard Go libraries.
 * - github.com/jackc/pgx/v5: PostgreSQL driver and connection pooling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sikapay/wallet-service/internal/domain"
)

// PostgresRepository is the pgx-backed implementation of Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new repository backed by the given pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const transactionColumns = `id, user_id, reference, flow, status, recipient_phone, operator, amount, fee, total, payment_method, plan_id, plan_name, created_at`

// CreateTransaction inserts the immutable snapshot of a completed run.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.db.Exec(ctx, query,
		tx.ID, tx.UserID, tx.Reference, tx.Flow, tx.Status,
		tx.RecipientPhone, tx.Operator, tx.Amount, tx.Fee, tx.Total,
		tx.PaymentMethod, tx.PlanID, tx.PlanName, tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// FindTransactionsByUserID returns a user's history, newest first.
func (r *PostgresRepository) FindTransactionsByUserID(ctx context.Context, userID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = $1`
	args := []interface{}{userID}

	query, args = appendListFilters(query, args, opts)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// FindTransactionByID returns one transaction or ErrTransactionNotFound.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return r.findOne(ctx, query, transactionID)
}

// FindTransactionByReference resolves the gateway correlation reference.
func (r *PostgresRepository) FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`
	return r.findOne(ctx, query, reference)
}

// ListTransactions returns transactions across all users for the back office.
func (r *PostgresRepository) ListTransactions(ctx context.Context, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []interface{}

	query, args = appendListFilters(query, args, opts)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// GetTransactionStats aggregates plain counts for the admin dashboard.
func (r *PostgresRepository) GetTransactionStats(ctx context.Context) (*domain.TransactionStats, error) {
	stats := &domain.TransactionStats{CountByFlow: map[string]int64{}}

	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COALESCE(SUM(total), 0)
		FROM transactions`
	if err := r.db.QueryRow(ctx, query).Scan(
		&stats.TotalCount, &stats.CompletedCount, &stats.FailedCount, &stats.TotalVolume,
	); err != nil {
		return nil, fmt.Errorf("failed to aggregate transaction stats: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT flow, COUNT(*) FROM transactions GROUP BY flow`)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions by flow: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var flow string
		var count int64
		if err := rows.Scan(&flow, &count); err != nil {
			return nil, fmt.Errorf("failed to scan flow count: %w", err)
		}
		stats.CountByFlow[flow] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flow counts: %w", err)
	}

	return stats, nil
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg interface{}) (*domain.Transaction, error) {
	row := r.db.QueryRow(ctx, query, arg)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	return tx, nil
}

// appendListFilters appends the optional flow/status filters plus ordering
// and pagination shared by the history and admin listings.
func appendListFilters(query string, args []interface{}, opts domain.TransactionListOptions) (string, []interface{}) {
	if opts.Flow != "" {
		args = append(args, opts.Flow)
		query += fmt.Sprintf(" AND flow = $%d", len(args))
	}
	if opts.Status != "" {
		args = append(args, opts.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := row.Scan(
		&tx.ID, &tx.UserID, &tx.Reference, &tx.Flow, &tx.Status,
		&tx.RecipientPhone, &tx.Operator, &tx.Amount, &tx.Fee, &tx.Total,
		&tx.PaymentMethod, &tx.PlanID, &tx.PlanName, &tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func scanTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		out = append(out, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transaction rows: %w", err)
	}
	return out, nil
}
