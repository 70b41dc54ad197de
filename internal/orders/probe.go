package orders

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/observability"
)

// CapabilityProbe resolves, once at startup, whether the downstream
// invoice-link table is present. When it is not, the invoiced flag falls back
// to the legacy header column. Probe failures never block order operations:
// the policy is fail open to "not invoiced", with a warning and a metric.
type CapabilityProbe struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *observability.Metrics

	once            sync.Once
	hasInvoiceLinks bool
}

// NewCapabilityProbe constructs the probe. Resolve is lazy; the first
// invoiced lookup triggers it.
func NewCapabilityProbe(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *CapabilityProbe {
	return &CapabilityProbe{pool: pool, logger: logger, metrics: metrics}
}

// Resolve checks the catalog for the invoice_links table. On failure the
// legacy column path is assumed.
func (p *CapabilityProbe) Resolve(ctx context.Context) {
	p.once.Do(func() {
		const query = `SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = 'invoice_links'
		)`
		if err := p.pool.QueryRow(ctx, query).Scan(&p.hasInvoiceLinks); err != nil {
			p.hasInvoiceLinks = false
			p.logger.Warn("invoice-link capability probe failed, using legacy column",
				slog.Any("error", err))
			p.metrics.ProbeFailOpen()
		}
	})
}

// HasInvoiceLinks reports whether the link table is available.
func (p *CapabilityProbe) HasInvoiceLinks(ctx context.Context) bool {
	p.Resolve(ctx)
	return p.hasInvoiceLinks
}
