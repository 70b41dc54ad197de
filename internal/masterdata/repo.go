package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// repo implements Repository against PostgreSQL.
type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates the reference data repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repo{db: db}
}

// ErrNotFound reports a missing reference record.
var ErrNotFound = errors.New("masterdata: record not found")

func (r *repo) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	query := `SELECT id, code, name, tax_id, address, active, created_at, updated_at
	          FROM customers WHERE id = $1`
	var c Customer
	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Code, &c.Name, &c.TaxID, &c.Address, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	return c, err
}

func (r *repo) ListCustomers(ctx context.Context, limit, offset int) ([]Customer, error) {
	query := `SELECT id, code, name, tax_id, address, active, created_at, updated_at
	          FROM customers ORDER BY name LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.TaxID, &c.Address, &c.Active, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (r *repo) CustomerExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, "SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)", id)
}

func (r *repo) CustomerByCode(ctx context.Context, code string) (Customer, bool, error) {
	query := `SELECT id, code, name, tax_id, address, active, created_at, updated_at
	          FROM customers WHERE code = $1`
	var c Customer
	err := r.db.QueryRow(ctx, query, code).Scan(
		&c.ID, &c.Code, &c.Name, &c.TaxID, &c.Address, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, false, nil
	}
	if err != nil {
		return Customer{}, false, err
	}
	return c, true, nil
}

func (r *repo) GetSalesperson(ctx context.Context, id int64) (Salesperson, error) {
	query := `SELECT id, code, name, active FROM salespeople WHERE id = $1`
	var s Salesperson
	err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.Code, &s.Name, &s.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Salesperson{}, ErrNotFound
	}
	return s, err
}

func (r *repo) SalespersonExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, "SELECT EXISTS (SELECT 1 FROM salespeople WHERE id = $1)", id)
}

func (r *repo) GetBranch(ctx context.Context, id int64) (Branch, error) {
	query := `SELECT id, company_id, code, name, address FROM branches WHERE id = $1`
	var b Branch
	err := r.db.QueryRow(ctx, query, id).Scan(&b.ID, &b.CompanyID, &b.Code, &b.Name, &b.Address)
	if errors.Is(err, pgx.ErrNoRows) {
		return Branch{}, ErrNotFound
	}
	return b, err
}

func (r *repo) ListBranches(ctx context.Context, companyID *int64) ([]Branch, error) {
	query := `SELECT id, company_id, code, name, address FROM branches`
	args := []any{}
	if companyID != nil {
		query += ` WHERE company_id = $1`
		args = append(args, *companyID)
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var branches []Branch
	for rows.Next() {
		var b Branch
		if err := rows.Scan(&b.ID, &b.CompanyID, &b.Code, &b.Name, &b.Address); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

func (r *repo) BranchExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, "SELECT EXISTS (SELECT 1 FROM branches WHERE id = $1)", id)
}

func (r *repo) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	query := `SELECT id, branch_id, code, name FROM warehouses WHERE id = $1`
	var w Warehouse
	err := r.db.QueryRow(ctx, query, id).Scan(&w.ID, &w.BranchID, &w.Code, &w.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, ErrNotFound
	}
	return w, err
}

func (r *repo) WarehouseExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, "SELECT EXISTS (SELECT 1 FROM warehouses WHERE id = $1)", id)
}

func (r *repo) GetProduct(ctx context.Context, id int64) (Product, error) {
	query := `SELECT id, code, name, unit, tax_percent, COALESCE(linkage_code, ''), active
	          FROM products WHERE id = $1`
	var p Product
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Code, &p.Name, &p.Unit, &p.TaxPercent, &p.LinkageCode, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func (r *repo) ListProducts(ctx context.Context, limit, offset int) ([]Product, error) {
	query := `SELECT id, code, name, unit, tax_percent, COALESCE(linkage_code, ''), active
	          FROM products ORDER BY name LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Unit, &p.TaxPercent, &p.LinkageCode, &p.Active)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *repo) ProductExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, "SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)", id)
}

func (r *repo) ProductByLinkageCode(ctx context.Context, code string) (Product, bool, error) {
	query := `SELECT id, code, name, unit, tax_percent, COALESCE(linkage_code, ''), active
	          FROM products WHERE linkage_code = $1`
	var p Product
	err := r.db.QueryRow(ctx, query, code).Scan(
		&p.ID, &p.Code, &p.Name, &p.Unit, &p.TaxPercent, &p.LinkageCode, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, err
	}
	return p, true, nil
}

func (r *repo) BranchListPrice(ctx context.Context, productID, branchID int64) (float64, bool, error) {
	query := `SELECT list_price FROM branch_prices WHERE product_id = $1 AND branch_id = $2`
	var price float64
	err := r.db.QueryRow(ctx, query, productID, branchID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return price, true, nil
}

func (r *repo) AnyListPrice(ctx context.Context, productID int64) (float64, bool, error) {
	query := `SELECT list_price FROM branch_prices WHERE product_id = $1 ORDER BY branch_id LIMIT 1`
	var price float64
	err := r.db.QueryRow(ctx, query, productID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return price, true, nil
}

func (r *repo) UpsertBranchPrice(ctx context.Context, price BranchPrice) error {
	query := `INSERT INTO branch_prices (product_id, branch_id, list_price)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (product_id, branch_id) DO UPDATE SET list_price = EXCLUDED.list_price`
	_, err := r.db.Exec(ctx, query, price.ProductID, price.BranchID, price.ListPrice)
	return err
}

func (r *repo) exists(ctx context.Context, query string, id int64) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, query, id).Scan(&ok)
	return ok, err
}
