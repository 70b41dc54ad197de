package masterdata

import (
	"context"
	"errors"
	"log/slog"
)

// Service answers reference data lookups for the order and migration flows.
// Product and price reads go through the cache; existence checks hit storage
// directly, they are cheap indexed lookups.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
}

// NewService constructs the reference data service.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

func (s *Service) CustomerExists(ctx context.Context, id int64) (bool, error) {
	return s.repo.CustomerExists(ctx, id)
}

// CustomerByCode resolves a customer by its external code.
func (s *Service) CustomerByCode(ctx context.Context, code string) (Customer, bool, error) {
	if code == "" {
		return Customer{}, false, nil
	}
	return s.repo.CustomerByCode(ctx, code)
}

func (s *Service) SalespersonExists(ctx context.Context, id int64) (bool, error) {
	return s.repo.SalespersonExists(ctx, id)
}

// SalespersonActive reports found and active separately so callers can warn
// on inactive sellers without rejecting the document.
func (s *Service) SalespersonActive(ctx context.Context, id int64) (found, active bool, err error) {
	sp, err := s.repo.GetSalesperson(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, sp.Active, nil
}

func (s *Service) BranchExists(ctx context.Context, id int64) (bool, error) {
	return s.repo.BranchExists(ctx, id)
}

func (s *Service) WarehouseExists(ctx context.Context, id int64) (bool, error) {
	return s.repo.WarehouseExists(ctx, id)
}

func (s *Service) ProductExists(ctx context.Context, id int64) (bool, error) {
	return s.repo.ProductExists(ctx, id)
}

// GetProduct returns one product through the cache.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	key, err := s.cache.BuildKey(ctx, keyProduct(id)...)
	if err != nil {
		return s.repo.GetProduct(ctx, id)
	}
	var p Product
	err = s.cache.FetchJSON(ctx, key, &p, func(ctx context.Context) (any, error) {
		return s.repo.GetProduct(ctx, id)
	})
	return p, err
}

// ProductTaxPercent returns the default tax rate configured on the product.
func (s *Service) ProductTaxPercent(ctx context.Context, id int64) (float64, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.TaxPercent, nil
}

// ProductByLinkageCode resolves the product referenced by an external intake
// channel code.
func (s *Service) ProductByLinkageCode(ctx context.Context, code string) (Product, bool, error) {
	if code == "" {
		return Product{}, false, nil
	}
	return s.repo.ProductByLinkageCode(ctx, code)
}

// cachedPrice carries a price lookup result through the cache, including the
// miss case.
type cachedPrice struct {
	Price float64 `json:"price"`
	Found bool    `json:"found"`
}

// BranchListPrice returns the list price for a product on a branch price
// list.
func (s *Service) BranchListPrice(ctx context.Context, productID, branchID int64) (float64, bool, error) {
	key, err := s.cache.BuildKey(ctx, keyBranchPrice(productID, branchID)...)
	if err != nil {
		return s.repo.BranchListPrice(ctx, productID, branchID)
	}
	var cp cachedPrice
	err = s.cache.FetchJSON(ctx, key, &cp, func(ctx context.Context) (any, error) {
		price, found, err := s.repo.BranchListPrice(ctx, productID, branchID)
		if err != nil {
			return nil, err
		}
		return cachedPrice{Price: price, Found: found}, nil
	})
	if err != nil {
		return 0, false, err
	}
	return cp.Price, cp.Found, nil
}

// AnyListPrice returns a price for the product from any branch list.
func (s *Service) AnyListPrice(ctx context.Context, productID int64) (float64, bool, error) {
	return s.repo.AnyListPrice(ctx, productID)
}

// UpsertBranchPrice writes a price list entry and invalidates cached reads.
func (s *Service) UpsertBranchPrice(ctx context.Context, price BranchPrice) error {
	if err := s.repo.UpsertBranchPrice(ctx, price); err != nil {
		return err
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("price cache invalidation failed", slog.Any("error", err))
	}
	return nil
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) ListCustomers(ctx context.Context, limit, offset int) ([]Customer, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListCustomers(ctx, limit, offset)
}

func (s *Service) GetBranch(ctx context.Context, id int64) (Branch, error) {
	return s.repo.GetBranch(ctx, id)
}

func (s *Service) ListBranches(ctx context.Context, companyID *int64) ([]Branch, error) {
	return s.repo.ListBranches(ctx, companyID)
}

func (s *Service) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	return s.repo.GetWarehouse(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context, limit, offset int) ([]Product, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListProducts(ctx, limit, offset)
}
