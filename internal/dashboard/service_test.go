package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	totalsCalls atomic.Int32
	since       time.Time
	productErr  error
	amount      string
}

func (m *mockRepo) InvoiceTotals(ctx context.Context) (int, decimal.Decimal, error) {
	m.totalsCalls.Add(1)
	amount := m.amount
	if amount == "" {
		amount = "1234.56"
	}
	return 4, decimal.RequireFromString(amount), nil
}

func (m *mockRepo) InvoicesSince(ctx context.Context, since time.Time) (int, error) {
	m.since = since
	return 2, nil
}

func (m *mockRepo) ProductCount(ctx context.Context) (int, error) {
	return 9, m.productErr
}

func (m *mockRepo) StatusCounts(ctx context.Context) (map[string]int, error) {
	return map[string]int{"draft": 1, "sent": 2, "paid": 1}, nil
}

func newTestService(t *testing.T, repo Repository) (*Service, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	svc := NewService(repo, cache)
	svc.now = func() time.Time { return time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC) }
	return svc, cache
}

func TestStats_LoadsAndCaches(t *testing.T) {
	repo := &mockRepo{}
	svc, _ := newTestService(t, repo)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalInvoices)
	assert.Equal(t, "1234.56", stats.TotalAmount.StringFixed(2))
	assert.Equal(t, 2, stats.RecentInvoices)
	assert.Equal(t, 9, stats.TotalProducts)
	assert.Equal(t, 2, stats.ByStatus["sent"])
	assert.Equal(t, time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC), repo.since)

	_, err = svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.totalsCalls.Load())
}

func TestStats_BumpInvalidates(t *testing.T) {
	repo := &mockRepo{}
	svc, cache := newTestService(t, repo)

	_, err := svc.Stats(context.Background())
	require.NoError(t, err)

	repo.amount = "99.00"
	require.NoError(t, cache.Bump(context.Background()))

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "99.00", stats.TotalAmount.StringFixed(2))
	assert.Equal(t, int32(2), repo.totalsCalls.Load())
}

func TestStats_ErrorIsNotCached(t *testing.T) {
	repo := &mockRepo{productErr: errors.New("boom")}
	svc, _ := newTestService(t, repo)

	_, err := svc.Stats(context.Background())
	require.Error(t, err)

	repo.productErr = nil
	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, stats.TotalProducts)
}

func TestStats_ConcurrentCallersAgree(t *testing.T) {
	svc, _ := newTestService(t, &mockRepo{})

	var wg sync.WaitGroup
	results := make([]Stats, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stats, err := svc.Stats(context.Background())
			assert.NoError(t, err)
			results[i] = stats
		}(i)
	}
	wg.Wait()
	for _, s := range results {
		assert.Equal(t, 4, s.TotalInvoices)
	}
}

type blockingRepo struct {
	*mockRepo
	started chan struct{}
	once    sync.Once
	release chan struct{}
}

func (b *blockingRepo) InvoiceTotals(ctx context.Context) (int, decimal.Decimal, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-ctx.Done():
		return 0, decimal.Zero, ctx.Err()
	case <-b.release:
	}
	return b.mockRepo.InvoiceTotals(ctx)
}

func TestStats_CancelledCallerDoesNotFailOthers(t *testing.T) {
	repo := &blockingRepo{mockRepo: &mockRepo{}, started: make(chan struct{}), release: make(chan struct{})}
	svc, _ := newTestService(t, repo)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Stats(firstCtx)
		firstErr <- err
	}()
	<-repo.started

	type result struct {
		stats Stats
		err   error
	}
	second := make(chan result, 1)
	go func() {
		stats, err := svc.Stats(context.Background())
		second <- result{stats, err}
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(repo.release)
	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.Equal(t, 4, res.stats.TotalInvoices)
	case <-time.After(5 * time.Second):
		t.Fatal("second caller did not return")
	}
	assert.Equal(t, int32(1), repo.totalsCalls.Load())
}

func TestStats_WithoutCache(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, nil)

	_, err := svc.Stats(context.Background())
	require.NoError(t, err)
	_, err = svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.totalsCalls.Load())
}

func TestRepository_Queries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepository(mock)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\), COALESCE\\(SUM\\(total_amount\\), 0\\)::text FROM invoices").
		WillReturnRows(pgxmock.NewRows([]string{"count", "sum"}).AddRow(3, "40.50"))
	mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) FROM invoices GROUP BY status").
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).AddRow("paid", 3))

	count, amount, err := repo.InvoiceTotals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, "40.50", amount.StringFixed(2))

	counts, err := repo.StatusCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"draft": 0, "sent": 0, "paid": 3}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Stats(t *testing.T) {
	svc, _ := newTestService(t, &mockRepo{})
	r := chi.NewRouter()
	r.Route("/api/dashboard", NewHandler(nil, svc).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_products":9`)
}
