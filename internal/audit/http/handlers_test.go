package audithttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/invoicing/internal/audit"
)

type stubService struct {
	filters audit.TimelineFilters
	rows    []audit.TimelineRow
	err     error
}

func (s *stubService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.filters = filters
	return audit.Result{Rows: s.rows, Paging: audit.PagingInfo{Page: filters.Page, PageSize: filters.PageSize}}, s.err
}

func (s *stubService) Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.filters = filters
	return s.rows, s.err
}

func newRouter(svc *stubService) http.Handler {
	h := NewHandler(nil, svc)
	h.now = func() time.Time { return time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/api", h.MountRoutes)
	return r
}

func get(router http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestTimelineDefaults(t *testing.T) {
	svc := &stubService{rows: []audit.TimelineRow{{Actor: "clerk@example.com", Action: "invoice.create"}}}
	rec := get(newRouter(svc), "/api/audit?entity=invoice&entity_id=inv-1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "invoice.create")
	assert.Equal(t, "2024-05-17", svc.filters.To.Format("2006-01-02"))
	assert.Equal(t, "2024-04-17", svc.filters.From.Format("2006-01-02"))
	assert.Equal(t, "invoice", svc.filters.Entity)
	assert.Equal(t, "inv-1", svc.filters.EntityID)
	assert.Equal(t, 1, svc.filters.Page)
	assert.Equal(t, defaultPageSize, svc.filters.PageSize)
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	router := newRouter(&stubService{})
	for _, q := range []string{"from=yesterday", "from=2024-05-10&to=2024-05-01", "from=2020-01-01&to=2024-01-01", "page=0", "page_size=x"} {
		rec := get(router, "/api/audit?"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestTimelinePageSizeIsClamped(t *testing.T) {
	svc := &stubService{}
	rec := get(newRouter(svc), "/api/audit?page=3&page_size=400")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, svc.filters.Page)
	assert.Equal(t, maxPageSize, svc.filters.PageSize)
}

func TestExportCSV(t *testing.T) {
	svc := &stubService{rows: []audit.TimelineRow{{At: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), Actor: "a@example.com", Action: "invoice.status", Entity: "invoice", EntityID: "inv-9"}}}
	rec := get(newRouter(svc), "/api/audit/export.csv")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "audit-timeline.csv")
	assert.Contains(t, rec.Body.String(), "2024-05-01T08:00:00Z,a@example.com,invoice.status,invoice,inv-9,")
}

func TestServiceFailureIsInternalError(t *testing.T) {
	rec := get(newRouter(&stubService{err: errors.New("db down")}), "/api/audit")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}
