// Package migration transplants orders from the external intake store into
// the ledger. Each run creates exactly one ledger document per intake order
// and writes the resulting link back onto the intake records.
package migration

import (
	"errors"
	"time"
)

// Sync statuses persisted on intake orders.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

var (
	// ErrAlreadySynced rejects re-migration of a linked intake order.
	ErrAlreadySynced = errors.New("intake order already synced")
	// ErrUpstream wraps intake store failures.
	ErrUpstream = errors.New("intake store unavailable")
	// ErrOrphaned reports a ledger document committed without an intake
	// link. The retry path must not touch it; re-running would duplicate
	// the document. Operator intervention required.
	ErrOrphaned = errors.New("ledger document orphaned")
	// ErrLinkedOpen reports a migrated and linked document that could not
	// be closed. The intake order is synced, so the retry path cannot
	// reach it; the document must be closed by hand.
	ErrLinkedOpen = errors.New("migrated document linked but left open")
)

// IntakeOrder is the header of an order captured by the external channel.
type IntakeOrder struct {
	ID           int64      `json:"id"`
	CustomerCode string     `json:"customer_code"`
	Status       string     `json:"status"`
	SyncStatus   string     `json:"sync_status"`
	SyncError    string     `json:"sync_error,omitempty"`
	OrderDate    time.Time  `json:"order_date"`
	CreatedAt    time.Time  `json:"created_at"`
	SyncedAt     *time.Time `json:"synced_at,omitempty"`
	MappedID     *int64     `json:"mapped_order_id,omitempty"`
}

// IntakeItem is one line captured by the external channel. MappedProductID,
// when set, is a prior operator mapping and takes priority over the product
// code lookup.
type IntakeItem struct {
	ID              int64   `json:"id"`
	IntakeOrderID   int64   `json:"intake_order_id"`
	ProductCode     string  `json:"product_code"`
	MappedProductID *int64  `json:"mapped_product_id,omitempty"`
	Quantity        float64 `json:"quantity"`
	UnitPrice       float64 `json:"unit_price"`
	MappedLineID    *int64  `json:"mapped_line_id,omitempty"`
}

// Link records the ledger document an intake order was transplanted into.
// LineIDs maps intake item ids to ledger line ids.
type Link struct {
	OrderID    int64
	Sequence   string
	LineIDs    map[int64]int64
	MigratedAt time.Time
}

// MigrateParams select the ledger destination for one run.
type MigrateParams struct {
	Actor            int64  `json:"actor"`
	CompanyID        int64  `json:"company_id"`
	Series           string `json:"series"`
	BranchID         int64  `json:"branch_id"`
	CloseImmediately bool   `json:"close_immediately"`
}

// MigrateResult reports what one run produced.
type MigrateResult struct {
	OrderID       int64   `json:"order_id"`
	Sequence      string  `json:"sequence"`
	CustomerID    int64   `json:"customer_id"`
	SalespersonID int64   `json:"salesperson_id"`
	Total         float64 `json:"total"`
	LineCount     int     `json:"line_count"`
	LineIDs       []int64 `json:"line_ids"`
}
