// Package masterdata serves the reference records order documents point at:
// customers, salespeople, branches, warehouses, products and branch price
// lists. Lookups are cached; the cache version bumps on every mutation.
package masterdata

import (
	"context"
	"time"
)

// Customer is a billing account.
type Customer struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	TaxID     string    `json:"tax_id"`
	Address   string    `json:"address"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Salesperson is a commissioned seller. Inactive salespeople stay referenced
// by historic documents.
type Salesperson struct {
	ID     int64  `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Branch is a selling location.
type Branch struct {
	ID        int64  `json:"id"`
	CompanyID int64  `json:"company_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Address   string `json:"address"`
}

// Warehouse stocks products for a branch.
type Warehouse struct {
	ID       int64  `json:"id"`
	BranchID int64  `json:"branch_id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
}

// Product is a sellable item. LinkageCode carries the identifier used by the
// external intake channel; TaxPercent is the default rate applied when a line
// does not pin one.
type Product struct {
	ID          int64   `json:"id"`
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Unit        string  `json:"unit"`
	TaxPercent  float64 `json:"tax_percent"`
	LinkageCode string  `json:"linkage_code,omitempty"`
	Active      bool    `json:"active"`
}

// BranchPrice is one entry of a branch price list.
type BranchPrice struct {
	ProductID int64   `json:"product_id"`
	BranchID  int64   `json:"branch_id"`
	ListPrice float64 `json:"list_price"`
}

// Repository is the storage contract for reference data.
type Repository interface {
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	ListCustomers(ctx context.Context, limit, offset int) ([]Customer, error)
	CustomerExists(ctx context.Context, id int64) (bool, error)
	CustomerByCode(ctx context.Context, code string) (Customer, bool, error)

	GetSalesperson(ctx context.Context, id int64) (Salesperson, error)
	SalespersonExists(ctx context.Context, id int64) (bool, error)

	GetBranch(ctx context.Context, id int64) (Branch, error)
	ListBranches(ctx context.Context, companyID *int64) ([]Branch, error)
	BranchExists(ctx context.Context, id int64) (bool, error)

	GetWarehouse(ctx context.Context, id int64) (Warehouse, error)
	WarehouseExists(ctx context.Context, id int64) (bool, error)

	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, limit, offset int) ([]Product, error)
	ProductExists(ctx context.Context, id int64) (bool, error)
	ProductByLinkageCode(ctx context.Context, code string) (Product, bool, error)

	BranchListPrice(ctx context.Context, productID, branchID int64) (float64, bool, error)
	AnyListPrice(ctx context.Context, productID int64) (float64, bool, error)
	UpsertBranchPrice(ctx context.Context, price BranchPrice) error
}
