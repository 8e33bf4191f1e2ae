// Package drafts keeps in-progress invoice edits in Redis so a client can
// drive the line item ledger one operation at a time.
package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/ledger"
	"github.com/odyssey-erp/invoicing/internal/platform/httpx"
)

// Header is the invoice header being edited. Dates use YYYY-MM-DD and may be
// empty until commit.
type Header struct {
	InvoiceNumber string `json:"invoice_number" validate:"max=100"`
	OrderDate     string `json:"order_date" validate:"omitempty,datetime=2006-01-02"`
	PrintDate     string `json:"print_date" validate:"omitempty,datetime=2006-01-02"`
	Status        string `json:"status,omitempty" validate:"omitempty,oneof=draft sent paid"`
}

// Draft is one editing session.
type Draft struct {
	ID          string          `json:"id"`
	OwnerID     int64           `json:"owner_id"`
	InvoiceID   string          `json:"invoice_id,omitempty"`
	Header      Header          `json:"header"`
	Items       []ledger.Item   `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Store persists drafts as JSON documents with a sliding TTL.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewStore constructs a Store. A non-positive ttl defaults to 24 hours.
func NewStore(client redis.UniversalClient, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func draftKey(id string) string {
	return "draft:" + id
}

// Load fetches a draft. Missing or expired drafts are reported as not found.
func (s *Store) Load(ctx context.Context, id string) (Draft, error) {
	payload, err := s.client.Get(ctx, draftKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Draft{}, fmt.Errorf("draft: %w", httpx.ErrNotFound)
		}
		return Draft{}, fmt.Errorf("drafts: load: %w", err)
	}
	var d Draft
	if err := json.Unmarshal(payload, &d); err != nil {
		return Draft{}, fmt.Errorf("drafts: decode %s: %w", id, err)
	}
	return d, nil
}

// Save writes the draft and refreshes its TTL.
func (s *Store) Save(ctx context.Context, d Draft) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, draftKey(d.ID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("drafts: save: %w", err)
	}
	return nil
}

// Delete removes a draft.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, draftKey(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("drafts: delete: %w", err)
	}
	return nil
}
