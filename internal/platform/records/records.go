// Package records is the scoped query engine shared by every resource type.
// It runs the access policy for each operation, pre-filters list queries by
// owner for scoped callers, paginates, and wraps writes in a transaction.
package records

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/platform/apperr"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/db"
	"github.com/ehr/records/pkg/pagination"
)

// Record is implemented by every stored resource.
type Record interface {
	RecordID() uuid.UUID
	// OwnerRef is the owning reference used for own-record scoping.
	OwnerRef() string
}

// Filters are resource-specific list filters keyed by name. Stores ignore
// keys they do not understand; empty values are dropped by Set.
type Filters map[string]string

func (f Filters) Set(key, value string) Filters {
	if value != "" {
		f[key] = value
	}
	return f
}

func (f Filters) Get(key string) string { return f[key] }

// Query is what the engine hands a store for a list call.
type Query struct {
	// OwnerID restricts results to one owning reference when non-empty.
	OwnerID string
	Filters Filters
	Limit   int
	Offset  int
}

// Store is the per-resource persistence collaborator. GetByID returns an
// apperr NotFound error when the id does not exist.
type Store[T Record] interface {
	Create(ctx context.Context, rec T) error
	GetByID(ctx context.Context, id uuid.UUID) (T, error)
	Update(ctx context.Context, rec T) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, q Query) ([]T, int, error)
}

// CascadeFunc removes records that depend on the resource being deleted.
type CascadeFunc func(ctx context.Context, id uuid.UUID) error

type Service[T Record] struct {
	resource string
	store    Store[T]
	tx       db.Transactor
	logger   zerolog.Logger
	cascades []cascade
}

type cascade struct {
	name string
	fn   CascadeFunc
}

type Option[T Record] func(*Service[T])

// WithCascade registers a dependent delete that runs before the resource
// itself is removed. Its failure is logged and tolerated.
func WithCascade[T Record](name string, fn CascadeFunc) Option[T] {
	return func(s *Service[T]) {
		s.cascades = append(s.cascades, cascade{name: name, fn: fn})
	}
}

func NewService[T Record](resource string, store Store[T], tx db.Transactor, logger zerolog.Logger, opts ...Option[T]) *Service[T] {
	s := &Service[T]{
		resource: resource,
		store:    store,
		tx:       tx,
		logger:   logger.With().Str("resource", resource).Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service[T]) Resource() string { return s.resource }

func (s *Service[T]) List(ctx context.Context, p *auth.Principal, filters Filters, page pagination.Request) (*pagination.Page[T], error) {
	d := auth.Authorize(p, auth.PermRead)
	if err := d.Err(); err != nil {
		return nil, err
	}
	if filters == nil {
		filters = Filters{}
	}

	items, total, err := s.store.List(ctx, Query{
		OwnerID: d.OwnerFilter(p),
		Filters: filters,
		Limit:   page.Limit(),
		Offset:  page.Offset(),
	})
	if err != nil {
		return nil, apperr.AsStorage("list "+s.resource, err)
	}
	return pagination.NewPage(items, page, total), nil
}

// Get fetches one record. A record outside the caller's scope is Forbidden,
// never NotFound.
func (s *Service[T]) Get(ctx context.Context, p *auth.Principal, id uuid.UUID) (T, error) {
	return s.fetch(ctx, p, id, auth.PermRead)
}

// GetFor fetches one record for an operation that needs required, applying
// the same scoping as Get. Sub-resource routes use it to gate on the parent.
func (s *Service[T]) GetFor(ctx context.Context, p *auth.Principal, id uuid.UUID, required auth.Permission) (T, error) {
	return s.fetch(ctx, p, id, required)
}

func (s *Service[T]) fetch(ctx context.Context, p *auth.Principal, id uuid.UUID, required auth.Permission) (T, error) {
	var zero T
	d := auth.Authorize(p, required)
	if err := d.Err(); err != nil {
		return zero, err
	}

	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return zero, apperr.AsStorage("get "+s.resource, err)
	}
	if !d.Permits(p, rec.OwnerRef()) {
		return zero, apperr.Forbidden(fmt.Sprintf("%s %s belongs to another user", s.resource, id))
	}
	return rec, nil
}

// Create stores rec, whose owning reference the caller has already stamped.
// Scoped callers may only create records they own.
func (s *Service[T]) Create(ctx context.Context, p *auth.Principal, rec T) error {
	d := auth.Authorize(p, auth.PermWrite)
	if err := d.Err(); err != nil {
		return err
	}
	if rec.OwnerRef() == "" {
		return apperr.Invalid("owner", "is required")
	}
	if !d.Permits(p, rec.OwnerRef()) {
		return apperr.Forbidden(fmt.Sprintf("cannot create %s for another owner", s.resource))
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.store.Create(ctx, rec)
	})
	return apperr.AsStorage("create "+s.resource, err)
}

// Update loads the record, applies mutate and persists the result in one
// transaction. The owning reference cannot be changed by mutate.
func (s *Service[T]) Update(ctx context.Context, p *auth.Principal, id uuid.UUID, required auth.Permission, mutate func(T) error) (T, error) {
	var out T
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		rec, err := s.fetch(ctx, p, id, required)
		if err != nil {
			return err
		}
		owner := rec.OwnerRef()
		if err := mutate(rec); err != nil {
			return err
		}
		if rec.OwnerRef() != owner {
			return apperr.Invalid("owner", "cannot be modified")
		}
		if err := s.store.Update(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		var zero T
		return zero, apperr.AsStorage("update "+s.resource, err)
	}
	return out, nil
}

// Delete removes the record after running its cascades. Each cascade runs in
// its own savepoint so a failed cascade rolls back only its own writes.
func (s *Service[T]) Delete(ctx context.Context, p *auth.Principal, id uuid.UUID) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.fetch(ctx, p, id, auth.PermDelete); err != nil {
			return err
		}

		for _, c := range s.cascades {
			err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
				return c.fn(ctx, id)
			})
			if err != nil {
				s.logger.Warn().Err(err).
					Str("id", id.String()).
					Str("cascade", c.name).
					Msg("cascade delete failed, continuing")
			}
		}

		return s.store.Delete(ctx, id)
	})
	return apperr.AsStorage("delete "+s.resource, err)
}
