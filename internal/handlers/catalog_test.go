package handlers

import (
	"context"
	"net/http"
	"testing"

	domain "github.com/kaimono-app/api/internal/domain"
)

func TestUpsertItemEndpoint(t *testing.T) {
	fx := newHandlersFixture(t)

	rec := fx.do(t, http.MethodPut, "/api/v1/catalog/items/p1", `{"name":"<b>メロンパン</b>","price":180,"categoryId":"bread"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	payload := decodeJSON(t, rec)
	item, ok := payload["item"].(map[string]any)
	if !ok {
		t.Fatalf("expected item object, got %v", payload)
	}
	if item["name"] != "メロンパン" {
		t.Fatalf("expected sanitized name, got %v", item["name"])
	}
	if item["price"] != float64(180) {
		t.Fatalf("expected price 180, got %v", item["price"])
	}
	if item["active"] != true {
		t.Fatalf("active should default to true, got %v", item["active"])
	}
}

func TestUpsertItemEndpointRequiresPrice(t *testing.T) {
	fx := newHandlersFixture(t)
	rec := fx.do(t, http.MethodPut, "/api/v1/catalog/items/p1", `{"name":"bread"}`)
	assertErrorCode(t, rec, http.StatusBadRequest, "invalid_request")
}

func TestUpsertItemEndpointRejectsBadExpiry(t *testing.T) {
	fx := newHandlersFixture(t)
	rec := fx.do(t, http.MethodPut, "/api/v1/catalog/items/p1", `{"name":"bread","price":100,"expiresAt":"tomorrow"}`)
	assertErrorCode(t, rec, http.StatusBadRequest, "invalid_request")
}

func TestListItemsEndpoint(t *testing.T) {
	fx := newHandlersFixture(t)
	seedCatalogItem(t, fx, "p1", 100)

	rec := fx.do(t, http.MethodGet, "/api/v1/catalog/items", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	payload := decodeJSON(t, rec)
	items, ok := payload["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected one item, got %v", payload["items"])
	}
}

func TestListItemsEndpointRejectsBadAsOf(t *testing.T) {
	fx := newHandlersFixture(t)
	rec := fx.do(t, http.MethodGet, "/api/v1/catalog/items?asOf=yesterday", "")
	assertErrorCode(t, rec, http.StatusBadRequest, "invalid_request")
}

func TestDeleteItemEndpoint(t *testing.T) {
	fx := newHandlersFixture(t)
	seedCatalogItem(t, fx, "p1", 100)

	rec := fx.do(t, http.MethodDelete, "/api/v1/catalog/items/p1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestResolveBarcodeEndpointNotFound(t *testing.T) {
	fx := newHandlersFixture(t)
	rec := fx.do(t, http.MethodGet, "/api/v1/catalog/barcodes/4900000000000", "")
	assertErrorCode(t, rec, http.StatusNotFound, "catalog_not_found")
}

func TestResolveBarcodeEndpoint(t *testing.T) {
	fx := newHandlersFixture(t)
	if _, err := fx.products.LinkBarcode(context.Background(), domain.Item{
		ID:     "p1",
		Name:   "bread",
		Price:  100,
		Active: true,
	}, "4901234567894"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := fx.do(t, http.MethodGet, "/api/v1/catalog/barcodes/4901234567894", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeJSON(t, rec)
	item, ok := payload["item"].(map[string]any)
	if !ok || item["id"] != "p1" {
		t.Fatalf("expected item p1, got %v", payload)
	}
}

func seedCatalogItem(t *testing.T, fx handlersFixture, id string, price int64) {
	t.Helper()
	if _, err := fx.products.Upsert(context.Background(), domain.Item{
		ID:     id,
		Name:   id,
		Price:  price,
		Active: true,
	}); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}
