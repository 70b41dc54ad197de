package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/orders"
)

// Ledger is the slice of the order service the reconciler drives.
type Ledger interface {
	CreateOrder(ctx context.Context, req orders.CreateOrderRequest, createdBy int64) (*orders.OrderDocument, error)
	CloseOrder(ctx context.Context, id int64) (*orders.OrderDocument, error)
}

// MasterData resolves intake references against ERP reference data.
type MasterData interface {
	CustomerByCode(ctx context.Context, code string) (masterdata.Customer, bool, error)
	CustomerExists(ctx context.Context, id int64) (bool, error)
	SalespersonActive(ctx context.Context, id int64) (found, active bool, err error)
	ProductExists(ctx context.Context, id int64) (bool, error)
	ProductByLinkageCode(ctx context.Context, code string) (masterdata.Product, bool, error)
}

// Defaults are the fixed fallback references applied when intake records
// cannot be resolved.
type Defaults struct {
	CustomerID    int64
	SalespersonID int64
	ProductID     int64
	WarehouseID   int64
	Currency      string
}

// Reconciler performs one-way migration of intake orders into the ledger.
// The ledger commit and the intake write-back are separate transactions; a
// crash between them leaves an orphaned ledger document, surfaced through
// logs and the migration outcome counter rather than compensated.
type Reconciler struct {
	intake   IntakeStore
	ledger   Ledger
	master   MasterData
	defaults Defaults
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewReconciler constructs the reconciler.
func NewReconciler(intake IntakeStore, ledger Ledger, master MasterData, defaults Defaults, logger *slog.Logger, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{
		intake:   intake,
		ledger:   ledger,
		master:   master,
		defaults: defaults,
		logger:   logger,
		metrics:  metrics,
	}
}

// Migrate transplants one intake order into the ledger. An order already
// synced is rejected; error status permits retry. Failures before the ledger
// commit are recorded on the intake order as sync errors.
func (r *Reconciler) Migrate(ctx context.Context, intakeOrderID int64, params MigrateParams) (*MigrateResult, error) {
	intake, items, err := r.fetch(ctx, intakeOrderID)
	if err != nil {
		return nil, err
	}

	if intake.SyncStatus == SyncSynced {
		r.metrics.MigrationOutcome("rejected")
		return nil, fmt.Errorf("%w: intake order %d", ErrAlreadySynced, intakeOrderID)
	}

	result, err := r.run(ctx, intake, items, params)
	if err != nil {
		// Past the ledger commit, marking the intake order as error would
		// invite a duplicating retry.
		if errors.Is(err, ErrOrphaned) || errors.Is(err, ErrLinkedOpen) {
			return nil, err
		}
		// Resolution and ledger failures are recoverable through the
		// error-status retry path; record them on the intake side.
		if markErr := r.intake.MarkError(ctx, intakeOrderID, err.Error()); markErr != nil {
			r.logger.Error("intake error write-back failed",
				slog.Int64("intake_order_id", intakeOrderID), slog.Any("error", markErr))
		}
		r.metrics.MigrationOutcome("error")
		return nil, err
	}

	r.metrics.MigrationOutcome("synced")
	return result, nil
}

// fetch loads the intake header and items concurrently.
func (r *Reconciler) fetch(ctx context.Context, intakeOrderID int64) (*IntakeOrder, []IntakeItem, error) {
	var (
		intake *IntakeOrder
		items  []IntakeItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		intake, err = r.intake.GetOrder(gctx, intakeOrderID)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = r.intake.GetItems(gctx, intakeOrderID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if len(items) == 0 {
		return nil, nil, fmt.Errorf("%w: intake order %d has no items", orders.ErrNotFound, intakeOrderID)
	}
	return intake, items, nil
}

func (r *Reconciler) run(ctx context.Context, intake *IntakeOrder, items []IntakeItem, params MigrateParams) (*MigrateResult, error) {
	customerID, err := r.resolveCustomer(ctx, intake)
	if err != nil {
		return nil, err
	}
	salespersonID, err := r.resolveSalesperson(ctx, intake.ID)
	if err != nil {
		return nil, err
	}

	lines := make([]orders.CreateOrderLineReq, 0, len(items))
	for _, item := range items {
		line, err := r.buildLine(ctx, intake.ID, item)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	doc, err := r.ledger.CreateOrder(ctx, orders.CreateOrderRequest{
		CompanyID:     params.CompanyID,
		Series:        params.Series,
		BranchID:      params.BranchID,
		OrderDate:     intake.OrderDate,
		CustomerID:    customerID,
		SalespersonID: salespersonID,
		Currency:      r.defaults.Currency,
		Lines:         lines,
	}, params.Actor)
	if err != nil {
		return nil, err
	}

	// Ledger committed. A write-back failure past this point leaves the
	// document orphaned with no intake link; the retry path cannot repair
	// it, so flag it loudly for the operator. The link is written before
	// any close attempt: once the intake order is synced, a re-run is
	// rejected instead of minting a second document.
	link := Link{
		OrderID:    doc.ID,
		Sequence:   doc.Sequence,
		LineIDs:    make(map[int64]int64, len(items)),
		MigratedAt: time.Now().UTC(),
	}
	lineIDs := make([]int64, 0, len(doc.Lines))
	for i, line := range doc.Lines {
		lineIDs = append(lineIDs, line.ID)
		if i < len(items) {
			link.LineIDs[items[i].ID] = line.ID
		}
	}
	if err := r.intake.MarkSynced(ctx, intake.ID, link); err != nil {
		r.logger.Error("orphaned ledger document: intake write-back failed after commit",
			slog.Int64("intake_order_id", intake.ID),
			slog.Int64("order_id", doc.ID),
			slog.String("sequence", doc.Sequence),
			slog.Any("error", err))
		r.metrics.MigrationOutcome("orphaned")
		return nil, fmt.Errorf("%w: order %d sequence %s: %v", ErrOrphaned, doc.ID, doc.Sequence, err)
	}

	if params.CloseImmediately {
		if _, err := r.ledger.CloseOrder(ctx, doc.ID); err != nil {
			r.logger.Error("migrated document could not be closed, left open",
				slog.Int64("intake_order_id", intake.ID),
				slog.Int64("order_id", doc.ID),
				slog.String("sequence", doc.Sequence),
				slog.Any("error", err))
			r.metrics.MigrationOutcome("linked_open")
			return nil, fmt.Errorf("%w: order %d sequence %s: %v", ErrLinkedOpen, doc.ID, doc.Sequence, err)
		}
	}

	return &MigrateResult{
		OrderID:       doc.ID,
		Sequence:      doc.Sequence,
		CustomerID:    customerID,
		SalespersonID: salespersonID,
		Total:         doc.Total,
		LineCount:     len(doc.Lines),
		LineIDs:       lineIDs,
	}, nil
}

// resolveCustomer matches the intake customer code against ERP customers,
// falling back to the designated default.
func (r *Reconciler) resolveCustomer(ctx context.Context, intake *IntakeOrder) (int64, error) {
	customer, found, err := r.master.CustomerByCode(ctx, intake.CustomerCode)
	if err != nil {
		return 0, fmt.Errorf("resolve customer: %w", err)
	}
	if found {
		return customer.ID, nil
	}

	r.logger.Warn("intake customer unresolved, using default",
		slog.Int64("intake_order_id", intake.ID),
		slog.String("customer_code", intake.CustomerCode),
		slog.Int64("default_customer_id", r.defaults.CustomerID))

	ok, err := r.master.CustomerExists(ctx, r.defaults.CustomerID)
	if err != nil {
		return 0, fmt.Errorf("check default customer: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: default customer %d", orders.ErrNotFound, r.defaults.CustomerID)
	}
	return r.defaults.CustomerID, nil
}

// resolveSalesperson validates the fixed migration salesperson. Inactive
// sellers warn, they do not block.
func (r *Reconciler) resolveSalesperson(ctx context.Context, intakeOrderID int64) (int64, error) {
	found, active, err := r.master.SalespersonActive(ctx, r.defaults.SalespersonID)
	if err != nil {
		return 0, fmt.Errorf("resolve salesperson: %w", err)
	}
	if !found {
		return 0, fmt.Errorf("%w: salesperson %d", orders.ErrNotFound, r.defaults.SalespersonID)
	}
	if !active {
		r.logger.Warn("migration salesperson inactive",
			slog.Int64("intake_order_id", intakeOrderID),
			slog.Int64("salesperson_id", r.defaults.SalespersonID))
	}
	return r.defaults.SalespersonID, nil
}

// buildLine resolves the product through three tiers: prior operator mapping,
// the product's declared linkage code, then the system default product.
func (r *Reconciler) buildLine(ctx context.Context, intakeOrderID int64, item IntakeItem) (orders.CreateOrderLineReq, error) {
	productID, err := r.resolveProduct(ctx, intakeOrderID, item)
	if err != nil {
		return orders.CreateOrderLineReq{}, err
	}

	line := orders.CreateOrderLineReq{
		ProductID:   productID,
		WarehouseID: r.defaults.WarehouseID,
		Quantity:    item.Quantity,
	}
	if item.UnitPrice > 0 {
		price := item.UnitPrice
		line.SalePrice = &price
	}
	return line, nil
}

func (r *Reconciler) resolveProduct(ctx context.Context, intakeOrderID int64, item IntakeItem) (int64, error) {
	if item.MappedProductID != nil {
		ok, err := r.master.ProductExists(ctx, *item.MappedProductID)
		if err != nil {
			return 0, fmt.Errorf("check mapped product: %w", err)
		}
		if ok {
			return *item.MappedProductID, nil
		}
		r.logger.Warn("prior product mapping points at missing product",
			slog.Int64("intake_order_id", intakeOrderID),
			slog.Int64("intake_item_id", item.ID),
			slog.Int64("mapped_product_id", *item.MappedProductID))
	}

	product, found, err := r.master.ProductByLinkageCode(ctx, item.ProductCode)
	if err != nil {
		return 0, fmt.Errorf("resolve product by code: %w", err)
	}
	if found {
		return product.ID, nil
	}

	r.logger.Warn("intake product unresolved, using default",
		slog.Int64("intake_order_id", intakeOrderID),
		slog.Int64("intake_item_id", item.ID),
		slog.String("product_code", item.ProductCode),
		slog.Int64("default_product_id", r.defaults.ProductID))

	ok, err := r.master.ProductExists(ctx, r.defaults.ProductID)
	if err != nil {
		return 0, fmt.Errorf("check default product: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: default product %d", orders.ErrNotFound, r.defaults.ProductID)
	}
	return r.defaults.ProductID, nil
}

// Retryable reports whether an intake order is eligible for the error-status
// retry path.
func Retryable(intake *IntakeOrder) bool {
	return intake != nil && intake.SyncStatus == SyncError
}

// IsTerminal reports migration errors that must not be retried by the worker.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrAlreadySynced) || errors.Is(err, ErrOrphaned) ||
		errors.Is(err, ErrLinkedOpen) ||
		errors.Is(err, orders.ErrNotFound) || errors.Is(err, orders.ErrValidation)
}
