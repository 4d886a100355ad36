package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kaimono-app/api/internal/platform/httpx"
	"github.com/kaimono-app/api/internal/platform/observability"
	"github.com/kaimono-app/api/internal/platform/requestctx"
	"github.com/kaimono-app/api/internal/services"
)

const maxSessionBodySize = 16 * 1024

// SessionHandlers exposes shopping list session endpoints.
type SessionHandlers struct {
	sessions services.SelectionService
}

// NewSessionHandlers constructs handlers backed by the selection service.
func NewSessionHandlers(sessions services.SelectionService) *SessionHandlers {
	return &SessionHandlers{sessions: sessions}
}

// Routes wires the /sessions endpoints onto the provided router.
func (h *SessionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createSession)
	r.Get("/{sessionID}", h.getSession)
	r.Post("/{sessionID}/recommend", h.recommend)
	r.Post("/{sessionID}/items/{itemID}/lock", h.toggleLock)
	r.Patch("/{sessionID}/items/{itemID}", h.updateQuantity)
	r.Delete("/{sessionID}/items/{itemID}", h.deleteItem)
	r.Post("/{sessionID}/scan", h.addFromScan)
}

type selectionItemPayload struct {
	itemPayload
	Quantity int  `json:"quantity"`
	Locked   bool `json:"locked"`
}

type selectionPayload struct {
	ID          string                 `json:"id"`
	Items       []selectionItemPayload `json:"items"`
	Budget      int64                  `json:"budget"`
	Filters     map[string]bool        `json:"filters"`
	LockedTotal int64                  `json:"lockedTotal"`
	ListTotal   int64                  `json:"listTotal"`
	CreatedAt   string                 `json:"createdAt"`
	UpdatedAt   string                 `json:"updatedAt"`
}

func buildSelectionPayload(selection services.Selection) selectionPayload {
	payload := selectionPayload{
		ID:          selection.ID,
		Items:       make([]selectionItemPayload, 0, len(selection.CurrentList)),
		Budget:      selection.Budget,
		Filters:     selection.Filters,
		LockedTotal: selection.LockedTotal(),
		ListTotal:   selection.ListTotal(),
		CreatedAt:   formatTime(selection.CreatedAt),
		UpdatedAt:   formatTime(selection.UpdatedAt),
	}
	for _, item := range selection.CurrentList {
		payload.Items = append(payload.Items, selectionItemPayload{
			itemPayload: buildItemPayload(item),
			Quantity:    selection.Quantity(item.ID),
			Locked:      selection.Locked(item.ID),
		})
	}
	return payload
}

type createSessionRequest struct {
	Budget  int64           `json:"budget"`
	Filters map[string]bool `json:"filters"`
}

func (h *SessionHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "session service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxSessionBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createSessionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return
	}

	selection, err := h.sessions.CreateSelection(ctx, services.CreateSelectionCommand{
		Budget:  req.Budget,
		Filters: req.Filters,
	})
	if err != nil {
		h.writeSessionError(ctx, w, err)
		return
	}

	logSessionEvent(ctx, "session created", selection.ID)
	writeJSONResponse(w, http.StatusCreated, map[string]any{"session": buildSelectionPayload(selection)})
}

func (h *SessionHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "session service is unavailable", http.StatusServiceUnavailable))
		return
	}

	selection, err := h.sessions.GetSelection(ctx, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeSessionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"session": buildSelectionPayload(selection)})
}

type recommendRequest struct {
	Budget  *int64          `json:"budget"`
	Filters map[string]bool `json:"filters"`
}

func (h *SessionHandlers) recommend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "session service is unavailable", http.StatusServiceUnavailable))
		return
	}

	cmd := services.RecommendCommand{SessionID: chi.URLParam(r, "sessionID")}

	// The body is optional: an empty POST re-rolls with the session's
	// current budget and filters.
	body, err := readLimitedBody(r, maxSessionBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		var req recommendRequest
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
			return
		}
		cmd.Budget = req.Budget
		cmd.Filters = req.Filters
	}

	selection, err := h.sessions.Recommend(ctx, cmd)
	if err != nil {
		h.writeSessionError(ctx, w, err)
		return
	}

	logSessionEvent(ctx, "session recommended", selection.ID)
	writeJSONResponse(w, http.StatusOK, map[string]any{"session": buildSelectionPayload(selection)})
}

func (h *SessionHandlers) toggleLock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "session service is unavailable", http.StatusServiceUnavailable))
		return
	}

	selection, err := h.sessions.ToggleLock(ctx, chi.URLParam(r, "sessionID"), chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeSessionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"session": buildSelectionPayload(selection)})
}

type updateQuantityRequest struct {
	Delta *int `json:"delta"`
}

func (h *SessionHandlers) updateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "session service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxSessionBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateQuantityRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return
	}
	if req.Delta == nil || *req.Delta == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "delta must be a non-zero integer", http.StatusBadRequest))
		return
	}

	selection, err := h.sessions.UpdateQuantity(ctx, chi.URLParam(r, "sessionID"), chi.URLParam(r, "itemID"), *req.Delta)
	if err != nil {
		h.writeSessionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"session": buildSelectionPayload(selection)})
}

func (h *SessionHandlers) deleteItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "session service is unavailable", http.StatusServiceUnavailable))
		return
	}

	selection, err := h.sessions.DeleteItem(ctx, chi.URLParam(r, "sessionID"), chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeSessionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"session": buildSelectionPayload(selection)})
}

type scanRequest struct {
	JAN   string `json:"jan"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

func (h *SessionHandlers) addFromScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "session service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxSessionBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req scanRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return
	}

	selection, err := h.sessions.AddFromScan(ctx, services.AddFromScanCommand{
		SessionID: chi.URLParam(r, "sessionID"),
		JAN:       req.JAN,
		Name:      req.Name,
		Price:     req.Price,
	})
	if err != nil {
		h.writeSessionError(ctx, w, err)
		return
	}

	logSessionEvent(ctx, "scan added", selection.ID)
	writeJSONResponse(w, http.StatusOK, map[string]any{"session": buildSelectionPayload(selection)})
}

func (h *SessionHandlers) writeSessionError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrSelectionInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSelectionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "session not found", http.StatusNotFound))
	case errors.Is(err, services.ErrSelectionItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("item_not_in_list", "item is not in the list", http.StatusNotFound))
	case errors.Is(err, services.ErrSelectionUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "session service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("session_error", "session request failed", http.StatusInternalServerError))
	}
}

func logSessionEvent(ctx context.Context, message, sessionID string) {
	if logger := requestctx.Logger(ctx); logger != nil {
		logger.Info(message, zap.String("session_id", observability.SanitizeSessionID(sessionID)))
	}
}
