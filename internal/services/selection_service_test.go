package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/kaimono-app/api/internal/domain"
	"github.com/kaimono-app/api/internal/repositories/memory"
)

type fakeCatalog struct {
	items    []domain.Item
	scanItem domain.Item
	scanErr  error
	listErr  error
}

func (f *fakeCatalog) ListActiveItems(context.Context, time.Time) ([]Item, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.Item(nil), f.items...), nil
}

func (f *fakeCatalog) GetItem(_ context.Context, itemID string) (Item, error) {
	for _, item := range f.items {
		if item.ID == itemID {
			return item, nil
		}
	}
	return Item{}, ErrCatalogNotFound
}

func (f *fakeCatalog) UpsertItem(context.Context, UpsertItemCommand) (Item, error) {
	return Item{}, ErrCatalogUnavailable
}

func (f *fakeCatalog) DeleteItem(context.Context, string) error {
	return ErrCatalogUnavailable
}

func (f *fakeCatalog) ResolveBarcode(context.Context, string) (Item, error) {
	return f.scanItem, f.scanErr
}

func (f *fakeCatalog) ResolveScan(context.Context, ResolveScanCommand) (Item, error) {
	if f.scanErr != nil {
		return Item{}, f.scanErr
	}
	return f.scanItem, nil
}

type selectionFixture struct {
	service SelectionService
	catalog *fakeCatalog
}

func newSelectionFixture(t *testing.T, catalog *fakeCatalog, randomIndex func(int) int) selectionFixture {
	t.Helper()

	policy := NewCapPolicy(nil)
	engine, err := NewFillEngine(FillEngineDeps{
		Policy:  &policy,
		Shuffle: func([]domain.Item) {},
	})
	if err != nil {
		t.Fatalf("NewFillEngine: %v", err)
	}

	if randomIndex == nil {
		randomIndex = func(int) int { return 0 }
	}

	ids := 0
	service, err := NewSelectionService(SelectionServiceDeps{
		Repository:  memory.NewSelectionRepository(),
		Catalog:     catalog,
		Engine:      engine,
		RandomIndex: randomIndex,
		Clock:       func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) },
		IDGenerator: func() string {
			ids++
			return "sess-" + string(rune('a'+ids-1))
		},
	})
	if err != nil {
		t.Fatalf("NewSelectionService: %v", err)
	}
	return selectionFixture{service: service, catalog: catalog}
}

func TestCreateSelectionClampsNegativeBudget(t *testing.T) {
	fx := newSelectionFixture(t, &fakeCatalog{}, nil)

	selection, err := fx.service.CreateSelection(context.Background(), CreateSelectionCommand{Budget: -100})
	if err != nil {
		t.Fatalf("CreateSelection: %v", err)
	}
	if selection.Budget != 0 {
		t.Fatalf("negative budget should clamp to 0, got %d", selection.Budget)
	}
	if selection.ID == "" {
		t.Fatalf("expected generated session id")
	}
}

func TestGetSelectionNotFound(t *testing.T) {
	fx := newSelectionFixture(t, &fakeCatalog{}, nil)

	_, err := fx.service.GetSelection(context.Background(), "missing")
	if !errors.Is(err, ErrSelectionNotFound) {
		t.Fatalf("expected ErrSelectionNotFound, got %v", err)
	}
}

func TestRecommendFillsWithinBudget(t *testing.T) {
	catalog := &fakeCatalog{items: []domain.Item{
		catalogItem("p1", 200, domain.CategoryBread),
		catalogItem("p2", 150, domain.CategoryDeli),
		catalogItem("p3", 400, domain.CategorySnack),
	}}
	fx := newSelectionFixture(t, catalog, nil)
	ctx := context.Background()

	created, err := fx.service.CreateSelection(ctx, CreateSelectionCommand{Budget: 500})
	if err != nil {
		t.Fatalf("CreateSelection: %v", err)
	}

	selection, err := fx.service.Recommend(ctx, RecommendCommand{SessionID: created.ID})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	if selection.ListTotal() > 500 {
		t.Fatalf("list total %d exceeds budget", selection.ListTotal())
	}
	for _, item := range selection.CurrentList {
		if q := selection.Quantity(item.ID); q != 1 {
			t.Fatalf("new items start at quantity 1, got %d for %s", q, item.ID)
		}
	}
}

func TestRecommendPreservesLockedAndDropsDanglingQuantities(t *testing.T) {
	catalog := &fakeCatalog{items: []domain.Item{
		catalogItem("keep", 200, domain.CategoryBread),
		catalogItem("other", 150, domain.CategoryDeli),
	}}
	fx := newSelectionFixture(t, catalog, nil)
	ctx := context.Background()

	created, err := fx.service.CreateSelection(ctx, CreateSelectionCommand{Budget: 1000})
	if err != nil {
		t.Fatalf("CreateSelection: %v", err)
	}
	if _, err := fx.service.Recommend(ctx, RecommendCommand{SessionID: created.ID}); err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if _, err := fx.service.ToggleLock(ctx, created.ID, "keep"); err != nil {
		t.Fatalf("ToggleLock: %v", err)
	}

	// Shrink the catalog so "other" disappears from the next fill.
	catalog.items = []domain.Item{catalogItem("keep", 200, domain.CategoryBread)}

	selection, err := fx.service.Recommend(ctx, RecommendCommand{SessionID: created.ID})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	if !selection.Locked("keep") || !selection.Contains("keep") {
		t.Fatalf("locked item must survive the re-fill")
	}
	if _, ok := selection.Quantities["other"]; ok {
		t.Fatalf("dangling quantity for departed item must be dropped")
	}
}

func TestRecommendPrepaysExtraQuantities(t *testing.T) {
	catalog := &fakeCatalog{items: []domain.Item{
		catalogItem("locked", 200, domain.CategoryBread),
		catalogItem("filler", 150, domain.CategoryDeli),
	}}
	fx := newSelectionFixture(t, catalog, nil)
	ctx := context.Background()

	created, err := fx.service.CreateSelection(ctx, CreateSelectionCommand{Budget: 500})
	if err != nil {
		t.Fatalf("CreateSelection: %v", err)
	}
	if _, err := fx.service.Recommend(ctx, RecommendCommand{SessionID: created.ID}); err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if _, err := fx.service.ToggleLock(ctx, created.ID, "locked"); err != nil {
		t.Fatalf("ToggleLock: %v", err)
	}
	// Quantity 2: one extra unit of 200 yen is pre-paid out of the budget.
	if _, err := fx.service.UpdateQuantity(ctx, created.ID, "locked", 1); err != nil {
		t.Fatalf("UpdateQuantity: %v", err)
	}

	selection, err := fx.service.Recommend(ctx, RecommendCommand{SessionID: created.ID})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	// Effective budget 500-200=300: locked unit 200 fits, filler 150 does not.
	if selection.Contains("filler") {
		t.Fatalf("filler should not fit after extra quantity pre-pay: %+v", selection.CurrentList)
	}
}

func TestToggleLockAbsentItem(t *testing.T) {
	fx := newSelectionFixture(t, &fakeCatalog{}, nil)
	ctx := context.Background()

	created, err := fx.service.CreateSelection(ctx, CreateSelectionCommand{Budget: 500})
	if err != nil {
		t.Fatalf("CreateSelection: %v", err)
	}

	if _, err := fx.service.ToggleLock(ctx, created.ID, "ghost"); !errors.Is(err, ErrSelectionItemNotFound) {
		t.Fatalf("expected ErrSelectionItemNotFound, got %v", err)
	}
}

func TestToggleLockRoundTrip(t *testing.T) {
	catalog := &fakeCatalog{items: []domain.Item{catalogItem("p1", 100, domain.CategoryBread)}}
	fx := newSelectionFixture(t, catalog, nil)
	ctx := context.Background()

	created, _ := fx.service.CreateSelection(ctx, CreateSelectionCommand{Budget: 500})
	if _, err := fx.service.Recommend(ctx, RecommendCommand{SessionID: created.ID}); err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	selection, err := fx.service.ToggleLock(ctx, created.ID, "p1")
	if err != nil {
		t.Fatalf("ToggleLock: %v", err)
	}
	if !selection.Locked("p1") {
		t.Fatalf("expected item locked after first toggle")
	}

	selection, err = fx.service.ToggleLock(ctx, created.ID, "p1")
	if err != nil {
		t.Fatalf("ToggleLock: %v", err)
	}
	if selection.Locked("p1") {
		t.Fatalf("expected item unlocked after second toggle")
	}
}

func TestUpdateQuantityFloorsAtOne(t *testing.T) {
	catalog := &fakeCatalog{items: []domain.Item{catalogItem("p1", 100, domain.CategoryBread)}}
	fx := newSelectionFixture(t, catalog, nil)
	ctx := context.Background()

	created, _ := fx.service.CreateSelection(ctx, CreateSelectionCommand{Budget: 500})
	if _, err := fx.service.Recommend(ctx, RecommendCommand{SessionID: created.ID}); err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	selection, err := fx.service.UpdateQuantity(ctx, created.ID, "p1", -5)
	if err != nil {
		t.Fatalf("UpdateQuantity: %v", err)
	}
	if q := selection.Quantity("p1"); q != 1 {
		t.Fatalf("quantity below 1 must be a no-op, got %d", q)
	}

	selection, err = fx.service.UpdateQuantity(ctx, created.ID, "p1", 2)
	if err != nil {
		t.Fatalf("UpdateQuantity: %v", err)
	}
	if q := selection.Quantity("p1"); q != 3 {
		t.Fatalf("expected quantity 3, got %d", q)
	}
}

func TestDeleteItemRefillsGap(t *testing.T) {
	catalog := &fakeCatalog{items: []domain.Item{
		catalogItem("doomed", 300, domain.CategoryBread),
		catalogItem("sub", 250, domain.CategoryDeli),
	}}
	fx := newSelectionFixture(t, catalog, nil)
	ctx := context.Background()

	created, _ := fx.service.CreateSelection(ctx, CreateSelectionCommand{Budget: 300})
	if _, err := fx.service.Recommend(ctx, RecommendCommand{SessionID: created.ID}); err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	selection, err := fx.service.DeleteItem(ctx, created.ID, "doomed")
	if err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}

	if selection.Contains("doomed") {
		t.Fatalf("deleted item still present")
	}
	if selection.Locked("doomed") {
		t.Fatalf("deleted item still locked")
	}
	if _, ok := selection.Quantities["doomed"]; ok {
		t.Fatalf("deleted item still has quantity entry")
	}
	if !selection.Contains("sub") {
		t.Fatalf("expected the 250 yen substitute to fill the 300 yen gap")
	}
	if q := selection.Quantity("sub"); q != 1 {
		t.Fatalf("refilled item starts at quantity 1, got %d", q)
	}
}

func TestDeleteItemRefillNeverReaddsDeleted(t *testing.T) {
	catalog := &fakeCatalog{items: []domain.Item{
		catalogItem("doomed", 300, domain.CategoryBread),
	}}
	fx := newSelectionFixture(t, catalog, nil)
	ctx := context.Background()

	created, _ := fx.service.CreateSelection(ctx, CreateSelectionCommand{Budget: 300})
	if _, err := fx.service.Recommend(ctx, RecommendCommand{SessionID: created.ID}); err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	selection, err := fx.service.DeleteItem(ctx, created.ID, "doomed")
	if err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if len(selection.CurrentList) != 0 {
		t.Fatalf("deleted item must never refill itself, got %v", selection.CurrentList)
	}
}

func TestDeleteItemRefillPrefersFilterMatches(t *testing.T) {
	catalog := &fakeCatalog{items: []domain.Item{
		catalogItem("doomed", 300, domain.CategoryBread),
		catalogItem("off-filter", 250, domain.CategorySnack),
		catalogItem("on-filter", 250, domain.CategoryDeli),
	}}
	fx := newSelectionFixture(t, catalog, nil)
	ctx := context.Background()

	created, _ := fx.service.CreateSelection(ctx, CreateSelectionCommand{
		Budget:  300,
		Filters: map[string]bool{domain.CategoryBread: true, domain.CategoryDeli: true},
	})
	if _, err := fx.service.Recommend(ctx, RecommendCommand{SessionID: created.ID}); err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if !createdListContains(t, fx, created.ID, "doomed") {
		t.Fatalf("fixture expects doomed in list")
	}

	selection, err := fx.service.DeleteItem(ctx, created.ID, "doomed")
	if err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	for _, item := range selection.CurrentList {
		if item.ID == "off-filter" {
			t.Fatalf("refill picked outside the preferred filter subset")
		}
	}
	if !selection.Contains("on-filter") {
		t.Fatalf("expected filter-matching replacement, got %v", selection.CurrentList)
	}
}

func createdListContains(t *testing.T, fx selectionFixture, sessionID, itemID string) bool {
	t.Helper()
	selection, err := fx.service.GetSelection(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("GetSelection: %v", err)
	}
	return selection.Contains(itemID)
}

func TestAddFromScanNewItem(t *testing.T) {
	scanned := catalogItem("scan-1", 980, domain.CategoryBoxedMeal)
	catalog := &fakeCatalog{
		items:    []domain.Item{catalogItem("p1", 100, domain.CategoryBread)},
		scanItem: scanned,
	}
	fx := newSelectionFixture(t, catalog, nil)
	ctx := context.Background()

	created, _ := fx.service.CreateSelection(ctx, CreateSelectionCommand{Budget: 500})
	if _, err := fx.service.Recommend(ctx, RecommendCommand{SessionID: created.ID}); err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	selection, err := fx.service.AddFromScan(ctx, AddFromScanCommand{SessionID: created.ID, JAN: "4901234567894"})
	if err != nil {
		t.Fatalf("AddFromScan: %v", err)
	}

	if len(selection.CurrentList) == 0 || selection.CurrentList[0].ID != "scan-1" {
		t.Fatalf("scanned item must be prepended, got %v", selection.CurrentList)
	}
	if !selection.Locked("scan-1") {
		t.Fatalf("scanned item must be locked")
	}
	if q := selection.Quantity("scan-1"); q != 1 {
		t.Fatalf("expected quantity 1, got %d", q)
	}
	// Scans bypass the budget: 980 on a 500 budget is accepted.
	if selection.ListTotal() <= 500 {
		t.Fatalf("expected scan to exceed budget, total %d", selection.ListTotal())
	}
}

func TestAddFromScanRepeatIncrementsQuantity(t *testing.T) {
	scanned := catalogItem("scan-1", 120, domain.CategorySnack)
	catalog := &fakeCatalog{scanItem: scanned}
	fx := newSelectionFixture(t, catalog, nil)
	ctx := context.Background()

	created, _ := fx.service.CreateSelection(ctx, CreateSelectionCommand{Budget: 500})

	for i := 0; i < 3; i++ {
		if _, err := fx.service.AddFromScan(ctx, AddFromScanCommand{SessionID: created.ID, JAN: "4901234567894"}); err != nil {
			t.Fatalf("AddFromScan #%d: %v", i+1, err)
		}
	}

	selection, err := fx.service.GetSelection(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetSelection: %v", err)
	}
	if len(selection.CurrentList) != 1 {
		t.Fatalf("repeat scans must not duplicate the list entry, got %d", len(selection.CurrentList))
	}
	if q := selection.Quantity("scan-1"); q != 3 {
		t.Fatalf("expected quantity 3 after three scans, got %d", q)
	}
}

func TestAddFromScanUnknownSessionRejected(t *testing.T) {
	catalog := &fakeCatalog{scanItem: catalogItem("scan-1", 120, domain.CategorySnack)}
	fx := newSelectionFixture(t, catalog, nil)

	_, err := fx.service.AddFromScan(context.Background(), AddFromScanCommand{SessionID: "missing", JAN: "4901234567894"})
	if !errors.Is(err, ErrSelectionNotFound) {
		t.Fatalf("expected ErrSelectionNotFound, got %v", err)
	}
}
