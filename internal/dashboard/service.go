package dashboard

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// RecentWindow is how far back "recent invoices" reaches.
const RecentWindow = 7 * 24 * time.Hour

// Stats is the dashboard summary.
type Stats struct {
	TotalInvoices  int             `json:"total_invoices"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	RecentInvoices int             `json:"recent_invoices"`
	TotalProducts  int             `json:"total_products"`
	ByStatus       map[string]int  `json:"by_status"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// Service loads dashboard statistics through the cache.
type Service struct {
	repo  Repository
	cache *Cache
	group singleflight.Group
	now   func() time.Time
}

// NewService constructs the dashboard service. cache may be nil.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache, now: time.Now}
}

// Stats returns the current statistics. Concurrent callers share one load.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	key, err := s.cache.BuildKey(ctx, "dashboard", "stats")
	if err != nil {
		return Stats{}, err
	}
	ch := s.group.DoChan(key, func() (any, error) {
		// shared by every waiter, so one caller leaving must not abort the load
		ctx := context.WithoutCancel(ctx)
		var out Stats
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			return s.load(ctx)
		})
		return out, err
	})
	select {
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Stats{}, res.Err
		}
		return res.Val.(Stats), nil
	}
}

func (s *Service) load(ctx context.Context) (Stats, error) {
	stats := Stats{GeneratedAt: s.now().UTC()}
	since := stats.GeneratedAt.Add(-RecentWindow)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		count, amount, err := s.repo.InvoiceTotals(ctx)
		if err != nil {
			return err
		}
		stats.TotalInvoices, stats.TotalAmount = count, amount
		return nil
	})
	g.Go(func() error {
		count, err := s.repo.InvoicesSince(ctx, since)
		if err != nil {
			return err
		}
		stats.RecentInvoices = count
		return nil
	})
	g.Go(func() error {
		count, err := s.repo.ProductCount(ctx)
		if err != nil {
			return err
		}
		stats.TotalProducts = count
		return nil
	})
	g.Go(func() error {
		counts, err := s.repo.StatusCounts(ctx)
		if err != nil {
			return err
		}
		stats.ByStatus = counts
		return nil
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}
