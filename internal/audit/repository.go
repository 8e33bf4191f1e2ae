package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/odyssey-erp/invoicing/internal/platform/db"
)

// Repository reads audit_logs.
type Repository interface {
	TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error)
	TimelineAll(ctx context.Context, filters TimelineFilters, limit int) ([]TimelineRow, error)
}

type pgRepository struct {
	conn db.DBTX
}

// NewRepository returns a Postgres-backed audit repository.
func NewRepository(conn db.DBTX) Repository {
	return &pgRepository{conn: conn}
}

const timelineQuery = `SELECT a.occurred_at, COALESCE(u.email, 'system'), a.action, a.entity, a.entity_id, a.meta
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_id
WHERE ($1::timestamptz IS NULL OR a.occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR a.occurred_at < $2)
  AND ($3::text IS NULL OR u.email = $3)
  AND ($4::text IS NULL OR a.entity = $4)
  AND ($5::text IS NULL OR a.entity_id = $5)
  AND ($6::text IS NULL OR a.action = $6)
ORDER BY a.occurred_at DESC, a.id DESC
LIMIT $7 OFFSET $8`

func (r *pgRepository) TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	return r.query(ctx, filters, limit, offset)
}

func (r *pgRepository) TimelineAll(ctx context.Context, filters TimelineFilters, limit int) ([]TimelineRow, error) {
	return r.query(ctx, filters, limit, 0)
}

func (r *pgRepository) query(ctx context.Context, f TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	to := f.To
	if !to.IsZero() {
		// inclusive day
		to = to.Add(24 * time.Hour)
	}
	rows, err := r.conn.Query(ctx, timelineQuery,
		toPgTime(f.From), toPgTime(to),
		optionalText(f.Actor), optionalText(f.Entity), optionalText(f.EntityID), optionalText(f.Action),
		limit, offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var (
			out  TimelineRow
			meta []byte
		)
		if err := row.Scan(&out.At, &out.Actor, &out.Action, &out.Entity, &out.EntityID, &meta); err != nil {
			return TimelineRow{}, err
		}
		if len(meta) > 0 && string(meta) != "null" {
			if err := json.Unmarshal(meta, &out.Meta); err != nil {
				return TimelineRow{}, fmt.Errorf("decode meta: %w", err)
			}
		}
		return out, nil
	})
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
