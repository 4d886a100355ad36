package memory

import (
	"context"

	"github.com/kaimono-app/api/internal/repositories"
)

// Registry bundles the in-memory repositories behind the
// repositories.Registry contract.
type Registry struct {
	products   *ProductRepository
	selections *SelectionRepository
}

func NewRegistry() *Registry {
	return &Registry{
		products:   NewProductRepository(),
		selections: NewSelectionRepository(),
	}
}

func (r *Registry) Close(context.Context) error { return nil }

func (r *Registry) Products() repositories.ProductRepository {
	return r.products
}

func (r *Registry) Selections() repositories.SelectionRepository {
	return r.selections
}

func (r *Registry) Health() repositories.HealthRepository {
	return healthRepository{}
}

type healthRepository struct{}

func (healthRepository) Check(context.Context) error { return nil }
