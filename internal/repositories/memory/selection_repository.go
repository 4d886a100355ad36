package memory

import (
	"context"
	"strings"
	"sync"

	domain "github.com/kaimono-app/api/internal/domain"
)

// SelectionRepository stores selection sessions in process memory.
type SelectionRepository struct {
	mu       sync.RWMutex
	sessions map[string]domain.Selection
}

func NewSelectionRepository() *SelectionRepository {
	return &SelectionRepository{sessions: make(map[string]domain.Selection)}
}

func (r *SelectionRepository) Insert(_ context.Context, selection domain.Selection) error {
	id := strings.TrimSpace(selection.ID)
	if id == "" {
		return conflictError("selections.insert", "session id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; ok {
		return conflictError("selections.insert", "session already exists")
	}
	r.sessions[id] = selection.Clone()
	return nil
}

func (r *SelectionRepository) FindByID(_ context.Context, sessionID string) (domain.Selection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	selection, ok := r.sessions[strings.TrimSpace(sessionID)]
	if !ok {
		return domain.Selection{}, notFoundError("selections.get", "session not found")
	}
	return selection.Clone(), nil
}

func (r *SelectionRepository) Update(_ context.Context, selection domain.Selection) error {
	id := strings.TrimSpace(selection.ID)
	if id == "" {
		return conflictError("selections.update", "session id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return notFoundError("selections.update", "session not found")
	}
	r.sessions[id] = selection.Clone()
	return nil
}
