package audit

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTimelineRepo struct {
	rows       []TimelineRow
	lastLimit  int
	lastOffset int
}

func (s *stubTimelineRepo) TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	s.lastLimit, s.lastOffset = limit, offset
	end := min(offset+limit, len(s.rows))
	if offset >= len(s.rows) {
		return nil, nil
	}
	return s.rows[offset:end], nil
}

func (s *stubTimelineRepo) TimelineAll(ctx context.Context, filters TimelineFilters, limit int) ([]TimelineRow, error) {
	s.lastLimit = limit
	return s.rows, nil
}

func sampleRows(n int) []TimelineRow {
	rows := make([]TimelineRow, n)
	for i := range rows {
		rows[i] = TimelineRow{
			At:       time.Date(2024, 3, 10-i, 9, 0, 0, 0, time.UTC),
			Actor:    "clerk@example.com",
			Action:   "invoice.update",
			Entity:   "invoice",
			EntityID: "inv-1",
		}
	}
	return rows
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: sampleRows(3)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Equal(t, 3, repo.lastLimit)
	assert.Equal(t, 0, repo.lastOffset)

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)
	assert.False(t, result.Paging.HasNext)
	assert.Equal(t, 1, result.Paging.PrevPage)
	assert.Equal(t, 2, repo.lastOffset)
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	result, err := NewService(repo).Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 50, result.Paging.PageSize)
	assert.Equal(t, 51, repo.lastLimit)
	assert.NotNil(t, result.Rows)
}

func TestServiceRequiresRepository(t *testing.T) {
	_, err := NewService(nil).Timeline(context.Background(), TimelineFilters{})
	assert.Error(t, err)
	_, err = NewService(nil).Export(context.Background(), TimelineFilters{})
	assert.Error(t, err)
}

func TestServiceExportCapsRows(t *testing.T) {
	repo := &stubTimelineRepo{rows: sampleRows(2)}
	rows, err := NewService(repo).Export(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, ExportLimit, repo.lastLimit)
}

func TestWriteCSV(t *testing.T) {
	rows := sampleRows(1)
	rows[0].Meta = map[string]any{"total": "32.51"}

	data, err := WriteCSV(rows)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"at", "actor", "action", "entity", "entity_id", "meta"}, records[0])
	assert.Equal(t, "2024-03-10T09:00:00Z", records[1][0])
	assert.JSONEq(t, `{"total":"32.51"}`, records[1][5])
}

func TestRepositoryTimelineWindow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM audit_logs a LEFT JOIN users u").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), 21, 20).
		WillReturnRows(pgxmock.NewRows([]string{"occurred_at", "actor", "action", "entity", "entity_id", "meta"}).
			AddRow(at, "clerk@example.com", "invoice.create", "invoice", "inv-1", []byte(`{"number":"INV-1"}`)).
			AddRow(at, "system", "product.delete", "product", "p-1", []byte(`null`)))

	rows, err := NewRepository(mock).TimelineWindow(context.Background(), TimelineFilters{Entity: "invoice"}, 21, 20)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "INV-1", rows[0].Meta["number"])
	assert.Nil(t, rows[1].Meta)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryMalformedMeta(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM audit_logs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), ExportLimit, 0).
		WillReturnRows(pgxmock.NewRows([]string{"occurred_at", "actor", "action", "entity", "entity_id", "meta"}).
			AddRow(time.Now(), "system", "invoice.create", "invoice", "inv-1", []byte(`{`)))

	_, err = NewRepository(mock).TimelineAll(context.Background(), TimelineFilters{}, ExportLimit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode meta")
}
