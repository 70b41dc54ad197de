package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Store exposes committed reads plus transactional units of work over the
// order ledger.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
	GetOrder(ctx context.Context, id int64) (*OrderDocument, error)
	ListOrders(ctx context.Context, req ListOrdersRequest) ([]OrderDocument, int, error)
}

// TxStore exposes the operations available inside a unit of work. Header
// reads lock the row for the duration of the transaction.
type TxStore interface {
	SequenceSource

	GetOrderForUpdate(ctx context.Context, id int64) (*OrderDocument, error)
	InsertOrder(ctx context.Context, doc OrderDocument) (int64, error)
	UpdateHeader(ctx context.Context, id int64, updates map[string]any) error
	SetClosed(ctx context.Context, id int64, closedAt *time.Time) error
	SetVoided(ctx context.Context, id int64, voidedAt time.Time) error
	DeleteOrder(ctx context.Context, id int64) error

	GetLine(ctx context.Context, orderID, lineID int64) (*OrderLine, error)
	CountLines(ctx context.Context, orderID int64) (int, error)
	InsertLine(ctx context.Context, line OrderLine) (int64, error)
	UpdateLine(ctx context.Context, line OrderLine) error
	DeleteLine(ctx context.Context, orderID, lineID int64) error
	DeleteLines(ctx context.Context, orderID int64) error

	RecomputeTotals(ctx context.Context, orderID int64) (Totals, error)
}

// Repository provides PostgreSQL backed persistence for order documents.
type Repository struct {
	pool    *pgxpool.Pool
	probe   *CapabilityProbe
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, probe *CapabilityProbe, logger *slog.Logger, metrics *observability.Metrics) *Repository {
	return &Repository{pool: pool, probe: probe, logger: logger, metrics: metrics}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// WithTx wraps fn in a repeatable-read transaction on the ledger pool.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txStore{repo: r, q: tx})
	})
}

const orderColumns = `id, company_id, series, sequence, order_date, customer_id,
	salesperson_id, branch_id, currency, payment_terms_days, closed_at, voided_at,
	base_amount, tax_amount, total, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (*OrderDocument, error) {
	var doc OrderDocument
	err := row.Scan(
		&doc.ID, &doc.CompanyID, &doc.Series, &doc.Sequence, &doc.OrderDate,
		&doc.CustomerID, &doc.SalespersonID, &doc.BranchID, &doc.Currency,
		&doc.PaymentTermsDays, &doc.ClosedAt, &doc.VoidedAt,
		&doc.BaseAmount, &doc.TaxAmount, &doc.Total,
		&doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

const lineColumns = `id, order_id, product_id, warehouse_id, unit, tax_percent,
	discount_unit, quantity, list_price, sale_price, base_price, tax_unit,
	net_price, line_total, printed`

func (r *Repository) fetchLines(ctx context.Context, q querier, orderID int64) ([]OrderLine, error) {
	rows, err := q.Query(ctx,
		fmt.Sprintf("SELECT %s FROM order_lines WHERE order_id = $1 ORDER BY id", lineColumns),
		orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var l OrderLine
		err := rows.Scan(
			&l.ID, &l.OrderID, &l.ProductID, &l.WarehouseID, &l.Unit, &l.TaxPercent,
			&l.DiscountUnit, &l.Quantity, &l.ListPrice, &l.SalePrice, &l.BasePrice,
			&l.TaxUnit, &l.NetPrice, &l.LineTotal, &l.Printed,
		)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// isInvoiced probes the downstream invoice-link store. Probe failures are
// treated as "not invoiced" and logged; they never block order operations.
func (r *Repository) isInvoiced(ctx context.Context, q querier, orderID int64) bool {
	var invoiced bool
	var err error
	if r.probe.HasInvoiceLinks(ctx) {
		err = q.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM invoice_links WHERE order_id = $1)", orderID,
		).Scan(&invoiced)
	} else {
		err = q.QueryRow(ctx,
			"SELECT COALESCE(invoiced, false) FROM order_documents WHERE id = $1", orderID,
		).Scan(&invoiced)
		if errors.Is(err, pgx.ErrNoRows) {
			return false
		}
	}
	if err != nil {
		r.logger.Warn("invoice probe failed open",
			slog.Int64("order_id", orderID), slog.Any("error", err))
		r.metrics.ProbeFailOpen()
		return false
	}
	return invoiced
}

// GetOrder returns the header, lines and derived invoiced flag. Reads run
// outside transactions, committed data only.
func (r *Repository) GetOrder(ctx context.Context, id int64) (*OrderDocument, error) {
	doc, err := scanOrder(r.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM order_documents WHERE id = $1", orderColumns), id))
	if err != nil {
		return nil, err
	}
	doc.Lines, err = r.fetchLines(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	doc.Invoiced = r.isInvoiced(ctx, r.pool, id)
	return doc, nil
}

// ListOrders returns a filtered, paginated page of order headers.
func (r *Repository) ListOrders(ctx context.Context, req ListOrdersRequest) ([]OrderDocument, int, error) {
	conditions := []string{"company_id = $1"}
	args := []any{req.CompanyID}
	argPos := 2

	if req.Series != nil {
		conditions = append(conditions, fmt.Sprintf("series = $%d", argPos))
		args = append(args, *req.Series)
		argPos++
	}
	if req.BranchID != nil {
		conditions = append(conditions, fmt.Sprintf("branch_id = $%d", argPos))
		args = append(args, *req.BranchID)
		argPos++
	}
	if req.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argPos))
		args = append(args, *req.CustomerID)
		argPos++
	}
	if req.State != nil {
		invoicedPredicate := "COALESCE(invoiced, false)"
		if r.probe.HasInvoiceLinks(ctx) {
			invoicedPredicate = "EXISTS (SELECT 1 FROM invoice_links il WHERE il.order_id = order_documents.id)"
		}
		switch *req.State {
		case StateOpen:
			conditions = append(conditions, "closed_at IS NULL AND voided_at IS NULL", "NOT "+invoicedPredicate)
		case StateClosed:
			conditions = append(conditions, "closed_at IS NOT NULL AND voided_at IS NULL", "NOT "+invoicedPredicate)
		case StateVoided:
			conditions = append(conditions, "voided_at IS NOT NULL", "NOT "+invoicedPredicate)
		case StateInvoiced:
			conditions = append(conditions, invoicedPredicate)
		}
	}
	if req.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("order_date >= $%d", argPos))
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("order_date <= $%d", argPos))
		args = append(args, *req.DateTo)
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM order_documents %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM order_documents %s
		ORDER BY order_date DESC, id DESC
		LIMIT $%d OFFSET $%d`, orderColumns, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var docs []OrderDocument
	for rows.Next() {
		var doc OrderDocument
		err := rows.Scan(
			&doc.ID, &doc.CompanyID, &doc.Series, &doc.Sequence, &doc.OrderDate,
			&doc.CustomerID, &doc.SalespersonID, &doc.BranchID, &doc.Currency,
			&doc.PaymentTermsDays, &doc.ClosedAt, &doc.VoidedAt,
			&doc.BaseAmount, &doc.TaxAmount, &doc.Total,
			&doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

// ============================================================================
// TRANSACTIONAL STORE
// ============================================================================

type txStore struct {
	repo *Repository
	q    pgx.Tx
}

func (t *txStore) GetOrderForUpdate(ctx context.Context, id int64) (*OrderDocument, error) {
	doc, err := scanOrder(t.q.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM order_documents WHERE id = $1 FOR UPDATE", orderColumns), id))
	if err != nil {
		return nil, err
	}
	doc.Lines, err = t.repo.fetchLines(ctx, t.q, id)
	if err != nil {
		return nil, err
	}
	doc.Invoiced = t.repo.isInvoiced(ctx, t.q, id)
	return doc, nil
}

func (t *txStore) InsertOrder(ctx context.Context, doc OrderDocument) (int64, error) {
	const query = `INSERT INTO order_documents (
		company_id, series, sequence, order_date, customer_id, salesperson_id,
		branch_id, currency, payment_terms_days, base_amount, tax_amount, total,
		created_by, created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now(),now())
	RETURNING id`

	var id int64
	err := t.q.QueryRow(ctx, query,
		doc.CompanyID, doc.Series, doc.Sequence, doc.OrderDate, doc.CustomerID,
		doc.SalespersonID, doc.BranchID, doc.Currency, doc.PaymentTermsDays,
		doc.BaseAmount, doc.TaxAmount, doc.Total, doc.CreatedBy,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			t.repo.metrics.SequenceConflict()
			return 0, &SequenceConflictError{
				CompanyID: doc.CompanyID,
				Series:    doc.Series,
				BranchID:  doc.BranchID,
				Sequence:  doc.Sequence,
			}
		}
		return 0, err
	}
	return id, nil
}

func (t *txStore) UpdateHeader(ctx context.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	query := "UPDATE order_documents SET updated_at = now()"
	args := []any{}
	argPos := 1
	for _, col := range []string{"order_date", "customer_id", "salesperson_id", "currency", "payment_terms_days"} {
		if v, ok := updates[col]; ok {
			query += fmt.Sprintf(", %s = $%d", col, argPos)
			args = append(args, v)
			argPos++
		}
	}
	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)

	tag, err := t.q.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txStore) SetClosed(ctx context.Context, id int64, closedAt *time.Time) error {
	tag, err := t.q.Exec(ctx,
		"UPDATE order_documents SET closed_at = $1, updated_at = now() WHERE id = $2",
		closedAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txStore) SetVoided(ctx context.Context, id int64, voidedAt time.Time) error {
	tag, err := t.q.Exec(ctx,
		"UPDATE order_documents SET voided_at = $1, updated_at = now() WHERE id = $2",
		voidedAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txStore) DeleteOrder(ctx context.Context, id int64) error {
	tag, err := t.q.Exec(ctx, "DELETE FROM order_documents WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txStore) GetLine(ctx context.Context, orderID, lineID int64) (*OrderLine, error) {
	var l OrderLine
	err := t.q.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM order_lines WHERE order_id = $1 AND id = $2", lineColumns),
		orderID, lineID,
	).Scan(
		&l.ID, &l.OrderID, &l.ProductID, &l.WarehouseID, &l.Unit, &l.TaxPercent,
		&l.DiscountUnit, &l.Quantity, &l.ListPrice, &l.SalePrice, &l.BasePrice,
		&l.TaxUnit, &l.NetPrice, &l.LineTotal, &l.Printed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (t *txStore) CountLines(ctx context.Context, orderID int64) (int, error) {
	var count int
	err := t.q.QueryRow(ctx,
		"SELECT COUNT(*) FROM order_lines WHERE order_id = $1", orderID).Scan(&count)
	return count, err
}

func (t *txStore) InsertLine(ctx context.Context, line OrderLine) (int64, error) {
	const query = `INSERT INTO order_lines (
		order_id, product_id, warehouse_id, unit, tax_percent, discount_unit,
		quantity, list_price, sale_price, base_price, tax_unit, net_price,
		line_total, printed
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	RETURNING id`

	var id int64
	err := t.q.QueryRow(ctx, query,
		line.OrderID, line.ProductID, line.WarehouseID, line.Unit, line.TaxPercent,
		line.DiscountUnit, line.Quantity, line.ListPrice, line.SalePrice,
		line.BasePrice, line.TaxUnit, line.NetPrice, line.LineTotal, line.Printed,
	).Scan(&id)
	return id, err
}

func (t *txStore) UpdateLine(ctx context.Context, line OrderLine) error {
	const query = `UPDATE order_lines SET
		product_id = $1, warehouse_id = $2, unit = $3, tax_percent = $4,
		discount_unit = $5, quantity = $6, list_price = $7, sale_price = $8,
		base_price = $9, tax_unit = $10, net_price = $11, line_total = $12,
		printed = $13
	WHERE order_id = $14 AND id = $15`

	tag, err := t.q.Exec(ctx, query,
		line.ProductID, line.WarehouseID, line.Unit, line.TaxPercent,
		line.DiscountUnit, line.Quantity, line.ListPrice, line.SalePrice,
		line.BasePrice, line.TaxUnit, line.NetPrice, line.LineTotal, line.Printed,
		line.OrderID, line.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txStore) DeleteLine(ctx context.Context, orderID, lineID int64) error {
	tag, err := t.q.Exec(ctx,
		"DELETE FROM order_lines WHERE order_id = $1 AND id = $2", orderID, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txStore) DeleteLines(ctx context.Context, orderID int64) error {
	_, err := t.q.Exec(ctx, "DELETE FROM order_lines WHERE order_id = $1", orderID)
	return err
}

// RecomputeTotals derives the header aggregates from current lines and
// persists them in the same transaction. Totals are never computed at read
// time.
func (t *txStore) RecomputeTotals(ctx context.Context, orderID int64) (Totals, error) {
	const query = `SELECT
		COALESCE(SUM(quantity * base_price), 0),
		COALESCE(SUM(quantity * tax_unit), 0),
		COALESCE(SUM(line_total), 0)
	FROM order_lines WHERE order_id = $1`

	var totals Totals
	if err := t.q.QueryRow(ctx, query, orderID).Scan(
		&totals.BaseAmount, &totals.TaxAmount, &totals.Total,
	); err != nil {
		return Totals{}, err
	}
	totals.BaseAmount = round2(totals.BaseAmount)
	totals.TaxAmount = round2(totals.TaxAmount)
	totals.Total = round2(totals.Total)

	tag, err := t.q.Exec(ctx,
		`UPDATE order_documents SET base_amount = $1, tax_amount = $2, total = $3,
			updated_at = now() WHERE id = $4`,
		totals.BaseAmount, totals.TaxAmount, totals.Total, orderID)
	if err != nil {
		return Totals{}, err
	}
	if tag.RowsAffected() == 0 {
		return Totals{}, ErrNotFound
	}
	return totals, nil
}

// ============================================================================
// SEQUENCE SOURCE
// ============================================================================

func (t *txStore) CounterFor(ctx context.Context, companyID int64, series string, branchID int64) (int64, bool, error) {
	var last int64
	err := t.q.QueryRow(ctx,
		`SELECT last_sequence FROM order_counters
		 WHERE company_id = $1 AND series = $2 AND branch_id = $3 FOR UPDATE`,
		companyID, series, branchID).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return last, true, nil
}

func (t *txStore) MaxSequence(ctx context.Context, companyID int64, series string) (int64, error) {
	var max int64
	err := t.q.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence::bigint), 0) FROM order_documents
		 WHERE company_id = $1 AND series = $2`,
		companyID, series).Scan(&max)
	return max, err
}

func (t *txStore) SequenceExists(ctx context.Context, companyID int64, series, sequence string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM order_documents
		 WHERE company_id = $1 AND series = $2 AND sequence = $3)`,
		companyID, series, sequence).Scan(&exists)
	return exists, err
}

func (t *txStore) SaveCounter(ctx context.Context, companyID int64, series string, branchID int64, last int64) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO order_counters (company_id, series, branch_id, last_sequence)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (company_id, series, branch_id)
		 DO UPDATE SET last_sequence = EXCLUDED.last_sequence`,
		companyID, series, branchID, last)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
