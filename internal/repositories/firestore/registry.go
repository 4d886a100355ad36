package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/kaimono-app/api/internal/platform/firestore"
	"github.com/kaimono-app/api/internal/repositories"
)

// Registry bundles the Firestore backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider   *pfirestore.Provider
	products   *ProductRepository
	selections *SelectionRepository
}

func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	selections, err := NewSelectionRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{provider: provider, products: products, selections: selections}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Products() repositories.ProductRepository {
	return r.products
}

func (r *Registry) Selections() repositories.SelectionRepository {
	return r.selections
}

func (r *Registry) Health() repositories.HealthRepository {
	return healthRepository{provider: r.provider}
}

type healthRepository struct {
	provider *pfirestore.Provider
}

// Check verifies a Firestore client can be obtained; readiness probes call it.
func (h healthRepository) Check(ctx context.Context) error {
	if h.provider == nil {
		return errors.New("firestore health: provider is nil")
	}
	_, err := h.provider.Client(ctx)
	return err
}
