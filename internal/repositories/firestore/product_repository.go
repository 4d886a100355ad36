package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/kaimono-app/api/internal/domain"
	pfirestore "github.com/kaimono-app/api/internal/platform/firestore"
)

const (
	productsCollection = "products"
	barcodesCollection = "productBarcodes"
)

type productDocument struct {
	Name        string     `firestore:"name"`
	Price       int64      `firestore:"price"`
	CategoryID  string     `firestore:"categoryId"`
	Active      bool       `firestore:"active"`
	Recommended bool       `firestore:"recommended"`
	Temporary   bool       `firestore:"temporary"`
	ExpiresAt   *time.Time `firestore:"expiresAt,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
}

func newProductDocument(item domain.Item) productDocument {
	doc := productDocument{
		Name:        item.Name,
		Price:       item.Price,
		CategoryID:  item.CategoryID,
		Active:      item.Active,
		Recommended: item.Recommended,
		Temporary:   item.Temporary,
		CreatedAt:   item.CreatedAt.UTC(),
		UpdatedAt:   item.UpdatedAt.UTC(),
	}
	if item.ExpiresAt != nil {
		expires := item.ExpiresAt.UTC()
		doc.ExpiresAt = &expires
	}
	return doc
}

func (d productDocument) toDomain(id string) domain.Item {
	item := domain.Item{
		ID:          id,
		Name:        d.Name,
		Price:       d.Price,
		CategoryID:  d.CategoryID,
		Active:      d.Active,
		Recommended: d.Recommended,
		Temporary:   d.Temporary,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.ExpiresAt != nil {
		expires := *d.ExpiresAt
		item.ExpiresAt = &expires
	}
	return item
}

type barcodeDocument struct {
	ItemID    string    `firestore:"itemId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// ProductRepository persists products and barcode links in Firestore.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
	barcodes *pfirestore.BaseRepository[barcodeDocument]
}

func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	products := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	barcodes := pfirestore.NewBaseRepository[barcodeDocument](provider, barcodesCollection, nil, nil)
	return &ProductRepository{provider: provider, products: products, barcodes: barcodes}, nil
}

func (r *ProductRepository) Upsert(ctx context.Context, item domain.Item) (domain.Item, error) {
	if r == nil || r.provider == nil {
		return domain.Item{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(item.ID)
	if id == "" {
		return domain.Item{}, errors.New("product upsert: item id is required")
	}

	if _, err := r.products.Set(ctx, id, newProductDocument(item)); err != nil {
		return domain.Item{}, err
	}
	item.ID = id
	return item, nil
}

func (r *ProductRepository) FindByID(ctx context.Context, itemID string) (domain.Item, error) {
	if r == nil || r.provider == nil {
		return domain.Item{}, errors.New("product repository not initialised")
	}
	doc, err := r.products.Get(ctx, strings.TrimSpace(itemID))
	if err != nil {
		return domain.Item{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ProductRepository) Delete(ctx context.Context, itemID string) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	return r.products.Delete(ctx, strings.TrimSpace(itemID))
}

// ListActive queries active products and applies the expiry cut client-side;
// Firestore cannot express "expiresAt is null OR expiresAt > asOf" in one query.
func (r *ProductRepository) ListActive(ctx context.Context, asOf time.Time) ([]domain.Item, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}

	docs, err := r.products.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("active", "==", true)
	})
	if err != nil {
		return nil, err
	}

	items := make([]domain.Item, 0, len(docs))
	for _, doc := range docs {
		item := doc.Data.toDomain(doc.ID)
		if !item.Available(asOf) {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *ProductRepository) ResolveBarcode(ctx context.Context, jan string) (domain.Barcode, error) {
	if r == nil || r.provider == nil {
		return domain.Barcode{}, errors.New("product repository not initialised")
	}
	doc, err := r.barcodes.Get(ctx, strings.TrimSpace(jan))
	if err != nil {
		return domain.Barcode{}, err
	}
	return domain.Barcode{JAN: doc.ID, ItemID: doc.Data.ItemID}, nil
}

// LinkBarcode writes the product and its barcode link in one transaction so a
// scan never observes a barcode pointing at a missing product.
func (r *ProductRepository) LinkBarcode(ctx context.Context, item domain.Item, jan string) (domain.Item, error) {
	if r == nil || r.provider == nil {
		return domain.Item{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(item.ID)
	code := strings.TrimSpace(jan)
	if id == "" || code == "" {
		return domain.Item{}, errors.New("barcode link: item id and jan are required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		productRef, err := r.products.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		barcodeRef, err := r.barcodes.DocumentRef(ctx, code)
		if err != nil {
			return err
		}

		if _, err := tx.Get(barcodeRef); err == nil {
			return pfirestore.WrapError("productBarcodes.link", status.Error(codes.AlreadyExists, "barcode already linked"))
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		if err := tx.Set(productRef, newProductDocument(item)); err != nil {
			return err
		}
		return tx.Set(barcodeRef, barcodeDocument{ItemID: id, CreatedAt: item.CreatedAt.UTC()})
	})
	if err != nil {
		return domain.Item{}, pfirestore.WrapError("productBarcodes.link", err)
	}
	item.ID = id
	return item, nil
}
