package orders

import (
	"time"
)

// OrderDocument is the header record of a sales order in the ledger. The
// Closed and Voided states are persisted as nullable timestamps for backward
// format compatibility; Invoiced is derived from the downstream invoice-link
// store and never persisted here.
type OrderDocument struct {
	ID               int64       `json:"id" db:"id"`
	CompanyID        int64       `json:"company_id" db:"company_id"`
	Series           string      `json:"series" db:"series"`
	Sequence         string      `json:"sequence" db:"sequence"`
	OrderDate        time.Time   `json:"order_date" db:"order_date"`
	CustomerID       int64       `json:"customer_id" db:"customer_id"`
	SalespersonID    int64       `json:"salesperson_id" db:"salesperson_id"`
	BranchID         int64       `json:"branch_id" db:"branch_id"`
	Currency         string      `json:"currency" db:"currency"`
	PaymentTermsDays int         `json:"payment_terms_days" db:"payment_terms_days"`
	ClosedAt         *time.Time  `json:"closed_at,omitempty" db:"closed_at"`
	VoidedAt         *time.Time  `json:"voided_at,omitempty" db:"voided_at"`
	BaseAmount       float64     `json:"base_amount" db:"base_amount"`
	TaxAmount        float64     `json:"tax_amount" db:"tax_amount"`
	Total            float64     `json:"total" db:"total"`
	CreatedBy        int64       `json:"created_by" db:"created_by"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
	Invoiced         bool        `json:"invoiced" db:"-"`
	Lines            []OrderLine `json:"lines,omitempty" db:"-"`
}

// OrderLine is one product line within an OrderDocument. All monetary fields
// except LineTotal are per unit.
type OrderLine struct {
	ID           int64   `json:"id" db:"id"`
	OrderID      int64   `json:"order_id" db:"order_id"`
	ProductID    int64   `json:"product_id" db:"product_id"`
	WarehouseID  int64   `json:"warehouse_id" db:"warehouse_id"`
	Unit         string  `json:"unit" db:"unit"`
	TaxPercent   float64 `json:"tax_percent" db:"tax_percent"`
	DiscountUnit float64 `json:"discount_unit" db:"discount_unit"`
	Quantity     float64 `json:"quantity" db:"quantity"`
	ListPrice    float64 `json:"list_price" db:"list_price"`
	SalePrice    float64 `json:"sale_price" db:"sale_price"`
	BasePrice    float64 `json:"base_price" db:"base_price"`
	TaxUnit      float64 `json:"tax_unit" db:"tax_unit"`
	NetPrice     float64 `json:"net_price" db:"net_price"`
	LineTotal    float64 `json:"line_total" db:"line_total"`
	Printed      bool    `json:"printed" db:"printed"`
}

// Totals holds the header aggregates recomputed from current lines.
type Totals struct {
	BaseAmount float64 `json:"base_amount"`
	TaxAmount  float64 `json:"tax_amount"`
	Total      float64 `json:"total"`
}

type CreateOrderRequest struct {
	CompanyID        int64                `json:"company_id" validate:"required,gt=0"`
	Series           string               `json:"series" validate:"required,max=10"`
	BranchID         int64                `json:"branch_id" validate:"required,gt=0"`
	Sequence         *string              `json:"sequence,omitempty" validate:"omitempty,len=8,numeric"`
	OrderDate        time.Time            `json:"order_date" validate:"required"`
	CustomerID       int64                `json:"customer_id" validate:"required,gt=0"`
	SalespersonID    int64                `json:"salesperson_id" validate:"required,gt=0"`
	Currency         string               `json:"currency" validate:"required,len=3"`
	PaymentTermsDays int                  `json:"payment_terms_days" validate:"gte=0,lte=365"`
	Lines            []CreateOrderLineReq `json:"lines" validate:"omitempty,dive"`
}

type CreateOrderLineReq struct {
	ProductID      int64    `json:"product_id" validate:"required,gt=0"`
	WarehouseID    int64    `json:"warehouse_id" validate:"required,gt=0"`
	Unit           string   `json:"unit" validate:"omitempty,max=20"`
	Quantity       float64  `json:"quantity" validate:"required,gt=0"`
	ListPrice      *float64 `json:"list_price,omitempty" validate:"omitempty,gte=0"`
	SalePrice      *float64 `json:"sale_price,omitempty"`
	DiscountUnit   float64  `json:"discount_unit" validate:"gte=0"`
	TaxPercent     *float64 `json:"tax_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	UseBranchPrice bool     `json:"use_branch_price"`
	Printed        bool     `json:"printed"`
}

type UpdateOrderRequest struct {
	OrderDate        *time.Time            `json:"order_date,omitempty"`
	CustomerID       *int64                `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	SalespersonID    *int64                `json:"salesperson_id,omitempty" validate:"omitempty,gt=0"`
	Currency         *string               `json:"currency,omitempty" validate:"omitempty,len=3"`
	PaymentTermsDays *int                  `json:"payment_terms_days,omitempty" validate:"omitempty,gte=0,lte=365"`
	Lines            *[]CreateOrderLineReq `json:"lines,omitempty" validate:"omitempty,dive"`
}

type ListOrdersRequest struct {
	CompanyID  int64      `json:"company_id" validate:"required,gt=0"`
	Series     *string    `json:"series,omitempty"`
	BranchID   *int64     `json:"branch_id,omitempty"`
	CustomerID *int64     `json:"customer_id,omitempty"`
	State      *DocState  `json:"state,omitempty"`
	DateFrom   *time.Time `json:"date_from,omitempty"`
	DateTo     *time.Time `json:"date_to,omitempty"`
	Limit      int        `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int        `json:"offset" validate:"gte=0"`
}
