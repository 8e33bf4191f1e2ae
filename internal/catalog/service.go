package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/invoicing/internal/platform/httpx"
	"github.com/odyssey-erp/invoicing/internal/shared"
)

// AuditRecorder stores audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheInvalidator drops cached aggregates after catalog writes.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// Service implements product use cases.
type Service struct {
	repo     Repository
	validate *validator.Validate
	audit    AuditRecorder
	cache    CacheInvalidator
	logger   *slog.Logger
}

// NewService wires the catalog service. audit and cache may be nil.
func NewService(repo Repository, audit AuditRecorder, cache CacheInvalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, validate: shared.NewValidator(), audit: audit, cache: cache, logger: logger}
}

// List returns all products in the requested order.
func (s *Service) List(ctx context.Context, order SortOrder) ([]Product, error) {
	return s.repo.List(ctx, order)
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	if err := ValidateID(id); err != nil {
		return Product{}, err
	}
	return s.repo.Get(ctx, id)
}

// Create adds a product to the catalog.
func (s *Service) Create(ctx context.Context, actorID int64, in ProductInput) (Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return Product{}, shared.ValidationError(err)
	}
	p, err := s.repo.Create(ctx, in)
	if err != nil {
		return Product{}, err
	}
	s.afterWrite(ctx, actorID, "product.create", p.ID, map[string]any{"name": p.Name})
	return p, nil
}

// Update replaces the editable fields of a product.
func (s *Service) Update(ctx context.Context, actorID int64, id string, in ProductInput) (Product, error) {
	if err := ValidateID(id); err != nil {
		return Product{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return Product{}, shared.ValidationError(err)
	}
	p, err := s.repo.Update(ctx, id, in)
	if err != nil {
		return Product{}, err
	}
	s.afterWrite(ctx, actorID, "product.update", p.ID, map[string]any{"name": p.Name})
	return p, nil
}

// Delete removes a product that no invoice refers to.
func (s *Service) Delete(ctx context.Context, actorID int64, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.afterWrite(ctx, actorID, "product.delete", id, nil)
	return nil
}

func (s *Service) afterWrite(ctx context.Context, actorID int64, action, id string, meta map[string]any) {
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("bump dashboard cache", slog.Any("error", err))
		}
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "product", EntityID: id, Meta: meta}); err != nil {
			s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
		}
	}
}

// ValidateID rejects identifiers that are not UUIDs.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: invalid id %q", httpx.ErrValidation, id)
	}
	return nil
}
