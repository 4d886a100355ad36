package repositories

import (
	"context"
	"time"

	domain "github.com/kaimono-app/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Selections() SelectionRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository persists catalog products and their barcode links.
type ProductRepository interface {
	Upsert(ctx context.Context, item domain.Item) (domain.Item, error)
	FindByID(ctx context.Context, itemID string) (domain.Item, error)
	Delete(ctx context.Context, itemID string) error
	// ListActive returns the items available at the given instant: active and
	// either without an expiry or expiring strictly after asOf.
	ListActive(ctx context.Context, asOf time.Time) ([]domain.Item, error)
	// ResolveBarcode maps a JAN code to its linked item. Should return a
	// RepositoryError with IsNotFound when the code is unknown.
	ResolveBarcode(ctx context.Context, jan string) (domain.Barcode, error)
	// LinkBarcode stores the item and the JAN link atomically.
	LinkBarcode(ctx context.Context, item domain.Item, jan string) (domain.Item, error)
}

// SelectionRepository persists per-session shopping list state.
type SelectionRepository interface {
	Insert(ctx context.Context, selection domain.Selection) error
	FindByID(ctx context.Context, sessionID string) (domain.Selection, error)
	Update(ctx context.Context, selection domain.Selection) error
}

// HealthRepository reports backend connectivity for readiness probes.
type HealthRepository interface {
	Check(ctx context.Context) error
}
