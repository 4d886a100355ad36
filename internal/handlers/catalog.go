package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kaimono-app/api/internal/platform/httpx"
	"github.com/kaimono-app/api/internal/services"
)

const maxCatalogBodySize = 16 * 1024

// CatalogHandlers exposes catalog read, upsert and barcode endpoints.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs handlers backed by the catalog service.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes wires the /catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/items", h.listItems)
	r.Put("/items/{itemID}", h.upsertItem)
	r.Delete("/items/{itemID}", h.deleteItem)
	r.Get("/barcodes/{jan}", h.resolveBarcode)
}

type itemPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	CategoryID  string `json:"categoryId,omitempty"`
	Active      bool   `json:"active"`
	Recommended bool   `json:"recommended"`
	Temporary   bool   `json:"temporary,omitempty"`
	ExpiresAt   string `json:"expiresAt,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

func buildItemPayload(item services.Item) itemPayload {
	payload := itemPayload{
		ID:          item.ID,
		Name:        item.Name,
		Price:       item.Price,
		CategoryID:  item.CategoryID,
		Active:      item.Active,
		Recommended: item.Recommended,
		Temporary:   item.Temporary,
		CreatedAt:   formatTime(item.CreatedAt),
		UpdatedAt:   formatTime(item.UpdatedAt),
	}
	if item.ExpiresAt != nil {
		payload.ExpiresAt = formatTime(*item.ExpiresAt)
	}
	return payload
}

func (h *CatalogHandlers) listItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var asOf time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("asOf")); raw != "" {
		parsed, err := parseRFC3339(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "asOf must be an RFC 3339 timestamp", http.StatusBadRequest))
			return
		}
		asOf = parsed
	}

	items, err := h.catalog.ListActiveItems(ctx, asOf)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	payload := make([]itemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, buildItemPayload(item))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": payload})
}

type upsertItemRequest struct {
	Name        string  `json:"name"`
	Price       *int64  `json:"price"`
	CategoryID  string  `json:"categoryId"`
	Active      *bool   `json:"active"`
	Recommended bool    `json:"recommended"`
	ExpiresAt   *string `json:"expiresAt"`
}

func (h *CatalogHandlers) upsertItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCatalogBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req upsertItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return
	}
	if req.Price == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "price is required", http.StatusBadRequest))
		return
	}

	cmd := services.UpsertItemCommand{
		ID:          chi.URLParam(r, "itemID"),
		Name:        req.Name,
		Price:       *req.Price,
		CategoryID:  req.CategoryID,
		Active:      true,
		Recommended: req.Recommended,
	}
	if req.Active != nil {
		cmd.Active = *req.Active
	}
	if req.ExpiresAt != nil && strings.TrimSpace(*req.ExpiresAt) != "" {
		expires, err := parseRFC3339(*req.ExpiresAt)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expiresAt must be an RFC 3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.ExpiresAt = &expires
	}

	item, err := h.catalog.UpsertItem(ctx, cmd)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"item": buildItemPayload(item)})
}

func (h *CatalogHandlers) deleteItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.catalog.DeleteItem(ctx, chi.URLParam(r, "itemID")); err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandlers) resolveBarcode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	item, err := h.catalog.ResolveBarcode(ctx, chi.URLParam(r, "jan"))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"item": buildItemPayload(item)})
}

func (h *CatalogHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_not_found", "item or barcode not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "catalog request failed", http.StatusInternalServerError))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}
