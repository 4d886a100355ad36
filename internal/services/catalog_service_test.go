package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/kaimono-app/api/internal/domain"
	"github.com/kaimono-app/api/internal/repositories/memory"
)

type fakeClassifier struct {
	messages []ClassificationJobMessage
	err      error
}

func (f *fakeClassifier) PublishClassificationJob(_ context.Context, message ClassificationJobMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.messages = append(f.messages, message)
	return "msg-1", nil
}

func newCatalogFixture(t *testing.T, classifier ClassificationJobPublisher) (CatalogService, *memory.ProductRepository) {
	t.Helper()

	repo := memory.NewProductRepository()
	ids := 0
	service, err := NewCatalogService(CatalogServiceDeps{
		Repository: repo,
		Classifier: classifier,
		Clock:      func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) },
		IDGenerator: func() string {
			ids++
			return "item-" + string(rune('0'+ids))
		},
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return service, repo
}

func TestUpsertItemSanitizesName(t *testing.T) {
	service, _ := newCatalogFixture(t, nil)

	item, err := service.UpsertItem(context.Background(), UpsertItemCommand{
		ID:     "p1",
		Name:   "  <b>ツナマヨ</b>  おにぎり ",
		Price:  120,
		Active: true,
	})
	if err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	if item.Name != "ツナマヨ おにぎり" {
		t.Fatalf("expected sanitized name, got %q", item.Name)
	}
}

func TestUpsertItemRejectsNegativePrice(t *testing.T) {
	service, _ := newCatalogFixture(t, nil)

	_, err := service.UpsertItem(context.Background(), UpsertItemCommand{ID: "p1", Name: "bread", Price: -1})
	if !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
	}
}

func TestUpsertItemRequiresID(t *testing.T) {
	service, _ := newCatalogFixture(t, nil)

	_, err := service.UpsertItem(context.Background(), UpsertItemCommand{Name: "bread", Price: 100})
	if !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
	}
}

func TestUpsertItemPreservesCreatedAtAndTemporary(t *testing.T) {
	service, repo := newCatalogFixture(t, nil)
	ctx := context.Background()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := repo.Upsert(ctx, domain.Item{
		ID:        "p1",
		Name:      "placeholder",
		Price:     100,
		Active:    true,
		Temporary: true,
		CreatedAt: created,
		UpdatedAt: created,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	item, err := service.UpsertItem(ctx, UpsertItemCommand{ID: "p1", Name: "bread", Price: 150, Active: true})
	if err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	if !item.CreatedAt.Equal(created) {
		t.Fatalf("update must keep the original CreatedAt, got %v", item.CreatedAt)
	}
	if !item.Temporary {
		t.Fatalf("update must keep the temporary flag")
	}
	if item.Price != 150 || item.Name != "bread" {
		t.Fatalf("update did not apply: %+v", item)
	}
}

func TestListActiveItemsFiltersByAsOf(t *testing.T) {
	service, repo := newCatalogFixture(t, nil)
	ctx := context.Background()

	expired := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	seed := []domain.Item{
		{ID: "live", Name: "live", Price: 100, Active: true},
		{ID: "gone", Name: "gone", Price: 100, Active: true, ExpiresAt: &expired},
		{ID: "off", Name: "off", Price: 100, Active: false},
	}
	for _, item := range seed {
		if _, err := repo.Upsert(ctx, item); err != nil {
			t.Fatalf("seed %s: %v", item.ID, err)
		}
	}

	items, err := service.ListActiveItems(ctx, time.Time{})
	if err != nil {
		t.Fatalf("ListActiveItems: %v", err)
	}
	if len(items) != 1 || items[0].ID != "live" {
		t.Fatalf("expected only the live item, got %v", items)
	}
}

func TestGetItemNotFound(t *testing.T) {
	service, _ := newCatalogFixture(t, nil)

	_, err := service.GetItem(context.Background(), "missing")
	if !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound, got %v", err)
	}
}

func TestResolveBarcodeKnownJAN(t *testing.T) {
	service, repo := newCatalogFixture(t, nil)
	ctx := context.Background()

	if _, err := repo.LinkBarcode(ctx, domain.Item{ID: "p1", Name: "bread", Price: 100, Active: true}, "4901234567894"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	item, err := service.ResolveBarcode(ctx, "4901234567894")
	if err != nil {
		t.Fatalf("ResolveBarcode: %v", err)
	}
	if item.ID != "p1" {
		t.Fatalf("expected p1, got %q", item.ID)
	}

	if _, err := service.ResolveBarcode(ctx, "4900000000000"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound for unknown code, got %v", err)
	}
}

func TestResolveScanKnownJANReturnsLinkedItem(t *testing.T) {
	service, repo := newCatalogFixture(t, nil)
	ctx := context.Background()

	if _, err := repo.LinkBarcode(ctx, domain.Item{ID: "p1", Name: "bread", Price: 100, Active: true}, "4901234567894"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	item, err := service.ResolveScan(ctx, ResolveScanCommand{JAN: "4901234567894"})
	if err != nil {
		t.Fatalf("ResolveScan: %v", err)
	}
	if item.ID != "p1" || item.Temporary {
		t.Fatalf("expected the linked catalog item, got %+v", item)
	}
}

func TestResolveScanUnknownJANRegistersTemporaryItem(t *testing.T) {
	classifier := &fakeClassifier{}
	service, repo := newCatalogFixture(t, classifier)
	ctx := context.Background()

	item, err := service.ResolveScan(ctx, ResolveScanCommand{JAN: "4909999999990", Name: "謎のパン", Price: 180})
	if err != nil {
		t.Fatalf("ResolveScan: %v", err)
	}
	if !item.Temporary || !item.Active {
		t.Fatalf("expected an active temporary item, got %+v", item)
	}
	if item.Name != "謎のパン" || item.Price != 180 {
		t.Fatalf("name/price not carried: %+v", item)
	}

	// The barcode link persists: a second scan resolves without registering.
	again, err := service.ResolveScan(ctx, ResolveScanCommand{JAN: "4909999999990"})
	if err != nil {
		t.Fatalf("second ResolveScan: %v", err)
	}
	if again.ID != item.ID {
		t.Fatalf("expected the registered item, got %q vs %q", again.ID, item.ID)
	}

	if len(classifier.messages) != 1 {
		t.Fatalf("expected one classification job, got %d", len(classifier.messages))
	}
	msg := classifier.messages[0]
	if msg.ItemID != item.ID || msg.JAN != "4909999999990" || msg.Price != 180 {
		t.Fatalf("unexpected job payload: %+v", msg)
	}

	if _, err := repo.FindByID(ctx, item.ID); err != nil {
		t.Fatalf("temporary item not persisted: %v", err)
	}
}

func TestResolveScanFallsBackToCodeAsName(t *testing.T) {
	service, _ := newCatalogFixture(t, nil)

	item, err := service.ResolveScan(context.Background(), ResolveScanCommand{JAN: "4909999999990"})
	if err != nil {
		t.Fatalf("ResolveScan: %v", err)
	}
	if item.Name != "4909999999990" {
		t.Fatalf("expected the code as fallback name, got %q", item.Name)
	}
}

func TestResolveScanToleratesPublishFailure(t *testing.T) {
	classifier := &fakeClassifier{err: errors.New("broker down")}
	service, _ := newCatalogFixture(t, classifier)

	item, err := service.ResolveScan(context.Background(), ResolveScanCommand{JAN: "4909999999990", Price: 100})
	if err != nil {
		t.Fatalf("publish failure must not fail the scan: %v", err)
	}
	if !item.Temporary {
		t.Fatalf("expected a temporary item, got %+v", item)
	}
}

func TestResolveScanRejectsInvalidInput(t *testing.T) {
	service, _ := newCatalogFixture(t, nil)
	ctx := context.Background()

	if _, err := service.ResolveScan(ctx, ResolveScanCommand{}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput for empty jan, got %v", err)
	}
	if _, err := service.ResolveScan(ctx, ResolveScanCommand{JAN: "4909999999990", Price: -1}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput for negative price, got %v", err)
	}
}

func TestDeleteItemRemovesFromCatalog(t *testing.T) {
	service, repo := newCatalogFixture(t, nil)
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, domain.Item{ID: "p1", Name: "bread", Price: 100, Active: true}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := service.DeleteItem(ctx, "p1"); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if _, err := service.GetItem(ctx, "p1"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound after delete, got %v", err)
	}
}
