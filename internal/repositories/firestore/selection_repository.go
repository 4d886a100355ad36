package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/kaimono-app/api/internal/domain"
	pfirestore "github.com/kaimono-app/api/internal/platform/firestore"
)

const selectionsCollection = "selections"

type selectionItemDocument struct {
	ItemID      string     `firestore:"itemId"`
	Name        string     `firestore:"name"`
	Price       int64      `firestore:"price"`
	CategoryID  string     `firestore:"categoryId"`
	Active      bool       `firestore:"active"`
	Recommended bool       `firestore:"recommended"`
	Temporary   bool       `firestore:"temporary"`
	ExpiresAt   *time.Time `firestore:"expiresAt,omitempty"`
}

type selectionDocument struct {
	Items      []selectionItemDocument `firestore:"items"`
	LockedIDs  []string                `firestore:"lockedIds"`
	Quantities map[string]int          `firestore:"quantities"`
	Budget     int64                   `firestore:"budget"`
	Filters    map[string]bool         `firestore:"filters"`
	CreatedAt  time.Time               `firestore:"createdAt"`
	UpdatedAt  time.Time               `firestore:"updatedAt"`
}

func newSelectionDocument(selection domain.Selection) selectionDocument {
	doc := selectionDocument{
		Items:      make([]selectionItemDocument, 0, len(selection.CurrentList)),
		LockedIDs:  make([]string, 0, len(selection.LockedIDs)),
		Quantities: selection.Quantities,
		Budget:     selection.Budget,
		Filters:    selection.Filters,
		CreatedAt:  selection.CreatedAt.UTC(),
		UpdatedAt:  selection.UpdatedAt.UTC(),
	}
	for _, item := range selection.CurrentList {
		entry := selectionItemDocument{
			ItemID:      item.ID,
			Name:        item.Name,
			Price:       item.Price,
			CategoryID:  item.CategoryID,
			Active:      item.Active,
			Recommended: item.Recommended,
			Temporary:   item.Temporary,
		}
		if item.ExpiresAt != nil {
			expires := item.ExpiresAt.UTC()
			entry.ExpiresAt = &expires
		}
		doc.Items = append(doc.Items, entry)
	}
	for id := range selection.LockedIDs {
		doc.LockedIDs = append(doc.LockedIDs, id)
	}
	return doc
}

func (d selectionDocument) toDomain(id string) domain.Selection {
	selection := domain.Selection{
		ID:          id,
		CurrentList: make([]domain.Item, 0, len(d.Items)),
		LockedIDs:   make(map[string]struct{}, len(d.LockedIDs)),
		Quantities:  d.Quantities,
		Budget:      d.Budget,
		Filters:     d.Filters,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if selection.Quantities == nil {
		selection.Quantities = make(map[string]int)
	}
	if selection.Filters == nil {
		selection.Filters = make(map[string]bool)
	}
	for _, entry := range d.Items {
		item := domain.Item{
			ID:          entry.ItemID,
			Name:        entry.Name,
			Price:       entry.Price,
			CategoryID:  entry.CategoryID,
			Active:      entry.Active,
			Recommended: entry.Recommended,
			Temporary:   entry.Temporary,
		}
		if entry.ExpiresAt != nil {
			expires := *entry.ExpiresAt
			item.ExpiresAt = &expires
		}
		selection.CurrentList = append(selection.CurrentList, item)
	}
	for _, lockedID := range d.LockedIDs {
		selection.LockedIDs[lockedID] = struct{}{}
	}
	return selection
}

// SelectionRepository persists selection sessions in Firestore.
type SelectionRepository struct {
	provider   *pfirestore.Provider
	selections *pfirestore.BaseRepository[selectionDocument]
}

func NewSelectionRepository(provider *pfirestore.Provider) (*SelectionRepository, error) {
	if provider == nil {
		return nil, errors.New("selection repository requires firestore provider")
	}
	selections := pfirestore.NewBaseRepository[selectionDocument](provider, selectionsCollection, nil, nil)
	return &SelectionRepository{provider: provider, selections: selections}, nil
}

func (r *SelectionRepository) Insert(ctx context.Context, selection domain.Selection) error {
	if r == nil || r.provider == nil {
		return errors.New("selection repository not initialised")
	}
	id := strings.TrimSpace(selection.ID)
	if id == "" {
		return errors.New("selection insert: session id is required")
	}

	ref, err := r.selections.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	// Create fails with AlreadyExists for duplicate ids; WrapError maps
	// that onto the conflict category.
	if _, err := ref.Create(ctx, newSelectionDocument(selection)); err != nil {
		return pfirestore.WrapError("selections.insert", err)
	}
	return nil
}

func (r *SelectionRepository) FindByID(ctx context.Context, sessionID string) (domain.Selection, error) {
	if r == nil || r.provider == nil {
		return domain.Selection{}, errors.New("selection repository not initialised")
	}
	doc, err := r.selections.Get(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return domain.Selection{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *SelectionRepository) Update(ctx context.Context, selection domain.Selection) error {
	if r == nil || r.provider == nil {
		return errors.New("selection repository not initialised")
	}
	id := strings.TrimSpace(selection.ID)
	if id == "" {
		return errors.New("selection update: session id is required")
	}
	_, err := r.selections.Set(ctx, id, newSelectionDocument(selection))
	return err
}
