package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
)

// MasterData is the slice of reference data the order service depends on.
// Implemented by the masterdata service; kept narrow so tests can fake it.
type MasterData interface {
	CustomerExists(ctx context.Context, id int64) (bool, error)
	SalespersonExists(ctx context.Context, id int64) (bool, error)
	BranchExists(ctx context.Context, id int64) (bool, error)
	ProductExists(ctx context.Context, id int64) (bool, error)
	WarehouseExists(ctx context.Context, id int64) (bool, error)

	// BranchListPrice returns the list price for a product on a branch price
	// list; found=false means the branch carries no price for the product.
	BranchListPrice(ctx context.Context, productID, branchID int64) (price float64, found bool, err error)
	// AnyListPrice returns a price for the product from any branch list.
	AnyListPrice(ctx context.Context, productID int64) (price float64, found bool, err error)
	ProductTaxPercent(ctx context.Context, id int64) (float64, error)
}

// allocateAttempts bounds re-allocation after a raced sequence.
const allocateAttempts = 3

// Service owns the order document lifecycle: creation with number
// allocation, line mutation with total recomputation, and the
// close/reopen/void/delete transitions.
type Service struct {
	store    Store
	master   MasterData
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService constructs the order service.
func NewService(store Store, master MasterData, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		master:   master,
		logger:   logger,
		validate: validator.New(),
	}
}

// CreateOrder allocates the next sequence and persists the header with any
// initial lines in one transaction. A raced allocation is retried with a
// fresh transaction unless the caller pinned an explicit sequence.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest, createdBy int64) (*OrderDocument, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.checkHeaderRefs(ctx, req.CustomerID, req.SalespersonID, &req.BranchID); err != nil {
		return nil, err
	}

	explicit := ""
	if req.Sequence != nil {
		explicit = *req.Sequence
	}

	var orderID int64
	attempts := allocateAttempts
	if explicit != "" {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
			sequence, err := AllocateSequence(ctx, tx, req.CompanyID, req.Series, req.BranchID, explicit)
			if err != nil {
				return err
			}

			id, err := tx.InsertOrder(ctx, OrderDocument{
				CompanyID:        req.CompanyID,
				Series:           req.Series,
				Sequence:         sequence,
				OrderDate:        req.OrderDate,
				CustomerID:       req.CustomerID,
				SalespersonID:    req.SalespersonID,
				BranchID:         req.BranchID,
				Currency:         req.Currency,
				PaymentTermsDays: req.PaymentTermsDays,
				CreatedBy:        createdBy,
			})
			if err != nil {
				return err
			}

			for i, lineReq := range req.Lines {
				line, err := s.buildLine(ctx, id, req.BranchID, lineReq)
				if err != nil {
					return fmt.Errorf("line %d: %w", i+1, err)
				}
				if _, err := tx.InsertLine(ctx, *line); err != nil {
					return err
				}
			}

			if len(req.Lines) > 0 {
				if _, err := tx.RecomputeTotals(ctx, id); err != nil {
					return err
				}
			}
			orderID = id
			return nil
		})
		if err == nil {
			break
		}
		if !errors.Is(err, ErrSequenceConflict) {
			return nil, err
		}
		s.logger.Warn("sequence allocation raced, retrying",
			slog.Int64("company_id", req.CompanyID),
			slog.String("series", req.Series),
			slog.Int("attempt", attempt+1))
	}
	if err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, orderID)
}

// UpdateOrder mutates header fields and, when a line set is supplied,
// replaces all lines. Only Open documents accept updates.
func (s *Service) UpdateOrder(ctx context.Context, id int64, req UpdateOrderRequest) (*OrderDocument, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		doc, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := EnsureMutable(StateOf(doc)); err != nil {
			return err
		}

		customerID := doc.CustomerID
		if req.CustomerID != nil {
			customerID = *req.CustomerID
		}
		salespersonID := doc.SalespersonID
		if req.SalespersonID != nil {
			salespersonID = *req.SalespersonID
		}
		if req.CustomerID != nil || req.SalespersonID != nil {
			if err := s.checkHeaderRefs(ctx, customerID, salespersonID, nil); err != nil {
				return err
			}
		}

		updates := map[string]any{}
		if req.OrderDate != nil {
			updates["order_date"] = *req.OrderDate
		}
		if req.CustomerID != nil {
			updates["customer_id"] = *req.CustomerID
		}
		if req.SalespersonID != nil {
			updates["salesperson_id"] = *req.SalespersonID
		}
		if req.Currency != nil {
			updates["currency"] = *req.Currency
		}
		if req.PaymentTermsDays != nil {
			updates["payment_terms_days"] = *req.PaymentTermsDays
		}
		if len(updates) > 0 {
			if err := tx.UpdateHeader(ctx, id, updates); err != nil {
				return err
			}
		}

		if req.Lines != nil {
			if err := tx.DeleteLines(ctx, id); err != nil {
				return err
			}
			for i, lineReq := range *req.Lines {
				line, err := s.buildLine(ctx, id, doc.BranchID, lineReq)
				if err != nil {
					return fmt.Errorf("line %d: %w", i+1, err)
				}
				if _, err := tx.InsertLine(ctx, *line); err != nil {
					return err
				}
			}
			if _, err := tx.RecomputeTotals(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, id)
}

// AddLine appends one line to an Open document and recomputes totals.
func (s *Service) AddLine(ctx context.Context, orderID int64, req CreateOrderLineReq) (*OrderDocument, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		doc, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := EnsureMutable(StateOf(doc)); err != nil {
			return err
		}
		line, err := s.buildLine(ctx, orderID, doc.BranchID, req)
		if err != nil {
			return err
		}
		if _, err := tx.InsertLine(ctx, *line); err != nil {
			return err
		}
		_, err = tx.RecomputeTotals(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, orderID)
}

// UpdateLine replaces one line's inputs and recomputes totals.
func (s *Service) UpdateLine(ctx context.Context, orderID, lineID int64, req CreateOrderLineReq) (*OrderDocument, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		doc, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := EnsureMutable(StateOf(doc)); err != nil {
			return err
		}
		existing, err := tx.GetLine(ctx, orderID, lineID)
		if err != nil {
			return err
		}
		line, err := s.buildLine(ctx, orderID, doc.BranchID, req)
		if err != nil {
			return err
		}
		line.ID = existing.ID
		if err := tx.UpdateLine(ctx, *line); err != nil {
			return err
		}
		_, err = tx.RecomputeTotals(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, orderID)
}

// RemoveLine deletes one line from an Open document and recomputes totals.
func (s *Service) RemoveLine(ctx context.Context, orderID, lineID int64) (*OrderDocument, error) {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		doc, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := EnsureMutable(StateOf(doc)); err != nil {
			return err
		}
		if err := tx.DeleteLine(ctx, orderID, lineID); err != nil {
			return err
		}
		_, err = tx.RecomputeTotals(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, orderID)
}

// CloseOrder transitions Open -> Closed. An order with no lines cannot close.
func (s *Service) CloseOrder(ctx context.Context, id int64) (*OrderDocument, error) {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		doc, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		count, err := tx.CountLines(ctx, id)
		if err != nil {
			return err
		}
		if err := EnsureCanClose(StateOf(doc), count); err != nil {
			return err
		}
		now := time.Now().UTC()
		return tx.SetClosed(ctx, id, &now)
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, id)
}

// ReopenOrder transitions Closed -> Open.
func (s *Service) ReopenOrder(ctx context.Context, id int64) (*OrderDocument, error) {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		doc, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := EnsureCanReopen(StateOf(doc)); err != nil {
			return err
		}
		return tx.SetClosed(ctx, id, nil)
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, id)
}

// VoidOrder transitions Open or Closed -> Voided. The document and its lines
// are retained for audit.
func (s *Service) VoidOrder(ctx context.Context, id int64) (*OrderDocument, error) {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		doc, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := EnsureCanVoid(StateOf(doc)); err != nil {
			return err
		}
		return tx.SetVoided(ctx, id, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, id)
}

// DeleteOrder hard-deletes an Open document and its lines. Closed, Voided and
// Invoiced documents are immutable history.
func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		doc, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := EnsureCanDelete(StateOf(doc)); err != nil {
			return err
		}
		if err := tx.DeleteLines(ctx, id); err != nil {
			return err
		}
		return tx.DeleteOrder(ctx, id)
	})
}

// GetOrder returns one document with lines and derived state.
func (s *Service) GetOrder(ctx context.Context, id int64) (*OrderDocument, error) {
	return s.store.GetOrder(ctx, id)
}

// defaultListLimit is the page size applied when a list request carries none.
const defaultListLimit = 50

// ListOrders returns a filtered page of headers plus the total match count.
func (s *Service) ListOrders(ctx context.Context, req ListOrdersRequest) ([]OrderDocument, int, error) {
	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.store.ListOrders(ctx, req)
}

func (s *Service) checkHeaderRefs(ctx context.Context, customerID, salespersonID int64, branchID *int64) error {
	ok, err := s.master.CustomerExists(ctx, customerID)
	if err != nil {
		return fmt.Errorf("check customer: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: customer %d", ErrNotFound, customerID)
	}
	ok, err = s.master.SalespersonExists(ctx, salespersonID)
	if err != nil {
		return fmt.Errorf("check salesperson: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: salesperson %d", ErrNotFound, salespersonID)
	}
	if branchID != nil {
		ok, err = s.master.BranchExists(ctx, *branchID)
		if err != nil {
			return fmt.Errorf("check branch: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: branch %d", ErrNotFound, *branchID)
		}
	}
	return nil
}

// buildLine resolves prices and tax for one line request and computes its
// monetary fields.
func (s *Service) buildLine(ctx context.Context, orderID, branchID int64, req CreateOrderLineReq) (*OrderLine, error) {
	ok, err := s.master.ProductExists(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("check product: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: product %d", ErrNotFound, req.ProductID)
	}
	ok, err = s.master.WarehouseExists(ctx, req.WarehouseID)
	if err != nil {
		return nil, fmt.Errorf("check warehouse: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: warehouse %d", ErrNotFound, req.WarehouseID)
	}

	listPrice, salePrice, err := s.resolvePrices(ctx, req, branchID)
	if err != nil {
		return nil, err
	}

	taxPercent := 0.0
	if req.TaxPercent != nil {
		taxPercent = *req.TaxPercent
	} else {
		taxPercent, err = s.master.ProductTaxPercent(ctx, req.ProductID)
		if err != nil {
			return nil, fmt.Errorf("resolve tax: %w", err)
		}
	}

	amounts, err := ComputeLine(LineInput{
		Quantity:     req.Quantity,
		SalePrice:    salePrice,
		DiscountUnit: req.DiscountUnit,
		TaxPercent:   taxPercent,
	})
	if err != nil {
		return nil, err
	}

	unit := req.Unit
	if unit == "" {
		unit = "UND"
	}

	return &OrderLine{
		OrderID:      orderID,
		ProductID:    req.ProductID,
		WarehouseID:  req.WarehouseID,
		Unit:         unit,
		TaxPercent:   taxPercent,
		DiscountUnit: req.DiscountUnit,
		Quantity:     req.Quantity,
		ListPrice:    listPrice,
		SalePrice:    salePrice,
		BasePrice:    amounts.Base,
		TaxUnit:      amounts.Tax,
		NetPrice:     amounts.Net,
		LineTotal:    amounts.LineTotal,
		Printed:      req.Printed,
	}, nil
}

// resolvePrices applies the price fallback chain: caller price, then the
// branch price list, then any branch, then the sentinel fallback.
func (s *Service) resolvePrices(ctx context.Context, req CreateOrderLineReq, branchID int64) (listPrice, salePrice float64, err error) {
	branchPrice, found, err := s.master.BranchListPrice(ctx, req.ProductID, branchID)
	if err != nil {
		return 0, 0, fmt.Errorf("resolve branch price: %w", err)
	}
	if !found {
		branchPrice, found, err = s.master.AnyListPrice(ctx, req.ProductID)
		if err != nil {
			return 0, 0, fmt.Errorf("resolve fallback price: %w", err)
		}
	}
	if !found {
		branchPrice = FallbackUnitPrice
	}

	listPrice = branchPrice
	if req.ListPrice != nil {
		listPrice = *req.ListPrice
	}

	switch {
	case req.UseBranchPrice:
		salePrice = branchPrice
	case req.SalePrice != nil && *req.SalePrice > 0:
		salePrice = *req.SalePrice
	default:
		salePrice = branchPrice
	}
	return listPrice, salePrice, nil
}
