package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/kaimono-app/api/internal/domain"
)

// ProductRepository stores products and barcode links in process memory.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]domain.Item
	barcodes map[string]string // jan -> item id
}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{
		products: make(map[string]domain.Item),
		barcodes: make(map[string]string),
	}
}

func (r *ProductRepository) Upsert(_ context.Context, item domain.Item) (domain.Item, error) {
	id := strings.TrimSpace(item.ID)
	if id == "" {
		return domain.Item{}, conflictError("products.upsert", "item id is required")
	}
	item.ID = id

	r.mu.Lock()
	r.products[id] = item
	r.mu.Unlock()
	return item, nil
}

func (r *ProductRepository) FindByID(_ context.Context, itemID string) (domain.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.products[strings.TrimSpace(itemID)]
	if !ok {
		return domain.Item{}, notFoundError("products.get", "item not found")
	}
	return item, nil
}

func (r *ProductRepository) Delete(_ context.Context, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.products, strings.TrimSpace(itemID))
	return nil
}

func (r *ProductRepository) ListActive(_ context.Context, asOf time.Time) ([]domain.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]domain.Item, 0, len(r.products))
	for _, item := range r.products {
		if item.Available(asOf) {
			items = append(items, item)
		}
	}
	// Map iteration order is random; callers shuffle themselves, tests want
	// stable output.
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r *ProductRepository) ResolveBarcode(_ context.Context, jan string) (domain.Barcode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	code := strings.TrimSpace(jan)
	itemID, ok := r.barcodes[code]
	if !ok {
		return domain.Barcode{}, notFoundError("barcodes.get", "barcode not found")
	}
	return domain.Barcode{JAN: code, ItemID: itemID}, nil
}

func (r *ProductRepository) LinkBarcode(_ context.Context, item domain.Item, jan string) (domain.Item, error) {
	id := strings.TrimSpace(item.ID)
	code := strings.TrimSpace(jan)
	if id == "" || code == "" {
		return domain.Item{}, conflictError("barcodes.link", "item id and jan are required")
	}
	item.ID = id

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.barcodes[code]; ok {
		return domain.Item{}, conflictError("barcodes.link", "barcode already linked")
	}
	r.products[id] = item
	r.barcodes[code] = id
	return item, nil
}
