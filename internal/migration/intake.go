package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/orders"
)

// IntakeStore is the contract against the external order-intake database.
type IntakeStore interface {
	GetOrder(ctx context.Context, id int64) (*IntakeOrder, error)
	GetItems(ctx context.Context, orderID int64) ([]IntakeItem, error)
	ListErrored(ctx context.Context, limit int) ([]int64, error)
	MarkSynced(ctx context.Context, orderID int64, link Link) error
	MarkError(ctx context.Context, orderID int64, message string) error
}

// intakeStore reads and writes the intake database through its own pool; the
// intake store and the ledger never share a transaction.
type intakeStore struct {
	db *pgxpool.Pool
}

// NewIntakeStore constructs the intake store over the second pool.
func NewIntakeStore(db *pgxpool.Pool) IntakeStore {
	return &intakeStore{db: db}
}

func (s *intakeStore) GetOrder(ctx context.Context, id int64) (*IntakeOrder, error) {
	const query = `SELECT id, customer_code, status, sync_status, COALESCE(sync_error, ''),
		order_date, created_at, synced_at, mapped_order_id
	FROM intake_orders WHERE id = $1`

	var o IntakeOrder
	err := s.db.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.CustomerCode, &o.Status, &o.SyncStatus, &o.SyncError,
		&o.OrderDate, &o.CreatedAt, &o.SyncedAt, &o.MappedID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orders.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return &o, nil
}

func (s *intakeStore) GetItems(ctx context.Context, orderID int64) ([]IntakeItem, error) {
	const query = `SELECT id, intake_order_id, product_code, mapped_product_id,
		quantity, unit_price, mapped_line_id
	FROM intake_order_items WHERE intake_order_id = $1 ORDER BY id`

	rows, err := s.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer rows.Close()

	var items []IntakeItem
	for rows.Next() {
		var it IntakeItem
		err := rows.Scan(&it.ID, &it.IntakeOrderID, &it.ProductCode,
			&it.MappedProductID, &it.Quantity, &it.UnitPrice, &it.MappedLineID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return items, nil
}

// ListErrored returns intake orders stuck in error status, oldest first.
func (s *intakeStore) ListErrored(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id FROM intake_orders WHERE sync_status = $1 ORDER BY created_at LIMIT $2`,
		SyncError, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return ids, nil
}

// MarkSynced writes the link back onto the intake order and its items in one
// intake-side transaction.
func (s *intakeStore) MarkSynced(ctx context.Context, orderID int64, link Link) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`UPDATE intake_orders
		 SET sync_status = $1, sync_error = NULL, synced_at = $2, mapped_order_id = $3
		 WHERE id = $4`,
		SyncSynced, link.MigratedAt, link.OrderID, orderID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	for itemID, lineID := range link.LineIDs {
		_, err = tx.Exec(ctx,
			`UPDATE intake_order_items SET mapped_line_id = $1 WHERE id = $2 AND intake_order_id = $3`,
			lineID, itemID, orderID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUpstream, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return nil
}

func (s *intakeStore) MarkError(ctx context.Context, orderID int64, message string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE intake_orders SET sync_status = $1, sync_error = $2 WHERE id = $3`,
		SyncError, message, orderID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return nil
}
