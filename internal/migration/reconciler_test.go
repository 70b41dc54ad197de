package migration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/orders"
)

type fakeIntake struct {
	orders map[int64]*IntakeOrder
	items  map[int64][]IntakeItem

	syncedLink  *Link
	erroredWith string
	markSyncErr error
}

func (f *fakeIntake) GetOrder(_ context.Context, id int64) (*IntakeOrder, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (f *fakeIntake) GetItems(_ context.Context, orderID int64) ([]IntakeItem, error) {
	return f.items[orderID], nil
}

func (f *fakeIntake) ListErrored(_ context.Context, limit int) ([]int64, error) {
	var ids []int64
	for id, o := range f.orders {
		if o.SyncStatus == SyncError && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeIntake) MarkSynced(_ context.Context, orderID int64, link Link) error {
	if f.markSyncErr != nil {
		return f.markSyncErr
	}
	f.syncedLink = &link
	f.orders[orderID].SyncStatus = SyncSynced
	return nil
}

func (f *fakeIntake) MarkError(_ context.Context, orderID int64, message string) error {
	f.erroredWith = message
	f.orders[orderID].SyncStatus = SyncError
	return nil
}

type fakeLedger struct {
	created   []orders.CreateOrderRequest
	createdBy int64
	closed    []int64
	createErr error
	closeErr  error

	nextOrderID int64
	nextLineID  int64
}

func (f *fakeLedger) CreateOrder(_ context.Context, req orders.CreateOrderRequest, createdBy int64) (*orders.OrderDocument, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	f.createdBy = createdBy
	f.nextOrderID++

	doc := &orders.OrderDocument{
		ID:        f.nextOrderID,
		CompanyID: req.CompanyID,
		Series:    req.Series,
		Sequence:  orders.FormatSequence(f.nextOrderID),
		BranchID:  req.BranchID,
	}
	for _, lineReq := range req.Lines {
		f.nextLineID++
		price := 0.0
		if lineReq.SalePrice != nil {
			price = *lineReq.SalePrice
		}
		doc.Lines = append(doc.Lines, orders.OrderLine{
			ID:        f.nextLineID,
			OrderID:   doc.ID,
			ProductID: lineReq.ProductID,
			Quantity:  lineReq.Quantity,
			LineTotal: price * lineReq.Quantity,
		})
		doc.Total += price * lineReq.Quantity
	}
	return doc, nil
}

func (f *fakeLedger) CloseOrder(_ context.Context, id int64) (*orders.OrderDocument, error) {
	if f.closeErr != nil {
		return nil, f.closeErr
	}
	f.closed = append(f.closed, id)
	now := time.Now()
	return &orders.OrderDocument{ID: id, ClosedAt: &now}, nil
}

type fakeMaster struct {
	customersByCode map[string]masterdata.Customer
	customers       map[int64]bool
	salespeople     map[int64]bool
	inactive        map[int64]bool
	products        map[int64]bool
	byLinkage       map[string]masterdata.Product
}

func (f *fakeMaster) CustomerByCode(_ context.Context, code string) (masterdata.Customer, bool, error) {
	c, ok := f.customersByCode[code]
	return c, ok, nil
}

func (f *fakeMaster) CustomerExists(_ context.Context, id int64) (bool, error) {
	return f.customers[id], nil
}

func (f *fakeMaster) SalespersonActive(_ context.Context, id int64) (bool, bool, error) {
	if !f.salespeople[id] {
		return false, false, nil
	}
	return true, !f.inactive[id], nil
}

func (f *fakeMaster) ProductExists(_ context.Context, id int64) (bool, error) {
	return f.products[id], nil
}

func (f *fakeMaster) ProductByLinkageCode(_ context.Context, code string) (masterdata.Product, bool, error) {
	p, ok := f.byLinkage[code]
	return p, ok, nil
}

func newFixture() (*Reconciler, *fakeIntake, *fakeLedger, *fakeMaster) {
	intake := &fakeIntake{
		orders: map[int64]*IntakeOrder{
			10: {
				ID:           10,
				CustomerCode: "CUST-9",
				Status:       "confirmed",
				SyncStatus:   SyncPending,
				OrderDate:    time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		items: map[int64][]IntakeItem{
			10: {
				{ID: 100, IntakeOrderID: 10, ProductCode: "EXT-0042", Quantity: 2, UnitPrice: 5000},
				{ID: 101, IntakeOrderID: 10, ProductCode: "EXT-UNKNOWN", Quantity: 1, UnitPrice: 300},
			},
		},
	}
	ledger := &fakeLedger{}
	master := &fakeMaster{
		customersByCode: map[string]masterdata.Customer{
			"CUST-9": {ID: 9, Code: "CUST-9"},
		},
		customers:   map[int64]bool{55: true},
		salespeople: map[int64]bool{1007816: true},
		inactive:    map[int64]bool{},
		products:    map[int64]bool{200: true, 300: true},
		byLinkage: map[string]masterdata.Product{
			"EXT-0042": {ID: 300},
		},
	}
	defaults := Defaults{
		CustomerID:    55,
		SalespersonID: 1007816,
		ProductID:     200,
		WarehouseID:   1,
		Currency:      "COP",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewReconciler(intake, ledger, master, defaults, logger, nil), intake, ledger, master
}

func params() MigrateParams {
	return MigrateParams{Actor: 7, CompanyID: 1, Series: "PV", BranchID: 1}
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()

	t.Run("unmapped product falls back to default and link is written", func(t *testing.T) {
		rec, intake, ledger, _ := newFixture()

		result, err := rec.Migrate(ctx, 10, params())
		require.NoError(t, err)

		require.Len(t, ledger.created, 1)
		req := ledger.created[0]
		require.Len(t, req.Lines, 2)
		assert.Equal(t, int64(300), req.Lines[0].ProductID, "linkage code tier")
		assert.Equal(t, int64(200), req.Lines[1].ProductID, "default product tier")
		assert.Equal(t, int64(9), req.CustomerID)
		assert.Equal(t, int64(1007816), req.SalespersonID)
		assert.Equal(t, int64(7), ledger.createdBy)

		assert.Equal(t, 2, result.LineCount)
		assert.Equal(t, "00000001", result.Sequence)

		require.NotNil(t, intake.syncedLink)
		assert.Equal(t, result.OrderID, intake.syncedLink.OrderID)
		assert.Equal(t, SyncSynced, intake.orders[10].SyncStatus)
		assert.Len(t, intake.syncedLink.LineIDs, 2)
		assert.Equal(t, result.LineIDs[0], intake.syncedLink.LineIDs[100])
		assert.Equal(t, result.LineIDs[1], intake.syncedLink.LineIDs[101])
	})

	t.Run("prior mapping wins over linkage code", func(t *testing.T) {
		rec, intake, ledger, _ := newFixture()
		mapped := int64(300)
		intake.items[10] = []IntakeItem{
			{ID: 100, IntakeOrderID: 10, ProductCode: "EXT-UNKNOWN", MappedProductID: &mapped, Quantity: 1, UnitPrice: 100},
		}

		_, err := rec.Migrate(ctx, 10, params())
		require.NoError(t, err)
		assert.Equal(t, int64(300), ledger.created[0].Lines[0].ProductID)
	})

	t.Run("synced order is rejected without touching the ledger", func(t *testing.T) {
		rec, intake, ledger, _ := newFixture()
		intake.orders[10].SyncStatus = SyncSynced

		_, err := rec.Migrate(ctx, 10, params())
		assert.ErrorIs(t, err, ErrAlreadySynced)
		assert.Empty(t, ledger.created)
	})

	t.Run("error status permits retry", func(t *testing.T) {
		rec, intake, _, _ := newFixture()
		intake.orders[10].SyncStatus = SyncError

		_, err := rec.Migrate(ctx, 10, params())
		require.NoError(t, err)
		assert.Equal(t, SyncSynced, intake.orders[10].SyncStatus)
	})

	t.Run("missing intake order", func(t *testing.T) {
		rec, _, _, _ := newFixture()

		_, err := rec.Migrate(ctx, 999, params())
		assert.ErrorIs(t, err, orders.ErrNotFound)
	})

	t.Run("intake order without items", func(t *testing.T) {
		rec, intake, _, _ := newFixture()
		intake.items[10] = nil

		_, err := rec.Migrate(ctx, 10, params())
		assert.ErrorIs(t, err, orders.ErrNotFound)
	})

	t.Run("unresolved customer falls back to default", func(t *testing.T) {
		rec, intake, ledger, _ := newFixture()
		intake.orders[10].CustomerCode = "CUST-MISSING"

		_, err := rec.Migrate(ctx, 10, params())
		require.NoError(t, err)
		assert.Equal(t, int64(55), ledger.created[0].CustomerID)
	})

	t.Run("inactive salesperson warns without blocking", func(t *testing.T) {
		rec, _, ledger, master := newFixture()
		master.inactive[1007816] = true

		_, err := rec.Migrate(ctx, 10, params())
		require.NoError(t, err)
		assert.Equal(t, int64(1007816), ledger.created[0].SalespersonID)
	})

	t.Run("ledger failure is recorded on the intake order", func(t *testing.T) {
		rec, intake, ledger, _ := newFixture()
		ledger.createErr = &orders.SequenceConflictError{
			CompanyID: 1, Series: "PV", BranchID: 1, Sequence: "00000001",
		}

		_, err := rec.Migrate(ctx, 10, params())
		assert.ErrorIs(t, err, orders.ErrSequenceConflict)
		assert.Equal(t, SyncError, intake.orders[10].SyncStatus)
		assert.NotEmpty(t, intake.erroredWith)
	})

	t.Run("write-back failure after commit surfaces the orphan", func(t *testing.T) {
		rec, intake, ledger, _ := newFixture()
		intake.markSyncErr = ErrUpstream

		_, err := rec.Migrate(ctx, 10, params())
		assert.ErrorIs(t, err, ErrOrphaned)
		assert.Len(t, ledger.created, 1, "ledger document was committed before the failure")
		assert.Equal(t, SyncPending, intake.orders[10].SyncStatus,
			"orphans must not enter the error retry path")
	})

	t.Run("close failure after link cannot duplicate the document", func(t *testing.T) {
		rec, intake, ledger, _ := newFixture()
		ledger.closeErr = errors.New("deadlock detected")

		p := params()
		p.CloseImmediately = true

		_, err := rec.Migrate(ctx, 10, p)
		assert.ErrorIs(t, err, ErrLinkedOpen)
		require.Len(t, ledger.created, 1)
		assert.Equal(t, SyncSynced, intake.orders[10].SyncStatus,
			"link is written before the close attempt")
		require.NotNil(t, intake.syncedLink)

		_, err = rec.Migrate(ctx, 10, p)
		assert.ErrorIs(t, err, ErrAlreadySynced)
		assert.Len(t, ledger.created, 1, "re-run must not mint a second document")
	})

	t.Run("close immediately posts the document", func(t *testing.T) {
		rec, _, ledger, _ := newFixture()

		p := params()
		p.CloseImmediately = true

		_, err := rec.Migrate(ctx, 10, p)
		require.NoError(t, err)
		require.Len(t, ledger.closed, 1)
		assert.Equal(t, ledger.nextOrderID, ledger.closed[0])
	})
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(ErrAlreadySynced))
	assert.True(t, IsTerminal(ErrOrphaned))
	assert.True(t, IsTerminal(ErrLinkedOpen))
	assert.True(t, IsTerminal(orders.ErrNotFound))
	assert.True(t, IsTerminal(orders.ErrValidation))
	assert.False(t, IsTerminal(ErrUpstream))
	assert.False(t, IsTerminal(errors.New("boom")))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&IntakeOrder{SyncStatus: SyncError}))
	assert.False(t, Retryable(&IntakeOrder{SyncStatus: SyncPending}))
	assert.False(t, Retryable(&IntakeOrder{SyncStatus: SyncSynced}))
	assert.False(t, Retryable(nil))
}
