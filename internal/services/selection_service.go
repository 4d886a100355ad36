package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/kaimono-app/api/internal/domain"
	"github.com/kaimono-app/api/internal/repositories"
)

// ErrSelectionInvalidInput indicates the caller supplied invalid input.
var ErrSelectionInvalidInput = errors.New("selection service: invalid input")

// ErrSelectionNotFound indicates the requested session does not exist.
var ErrSelectionNotFound = errors.New("selection service: not found")

// ErrSelectionItemNotFound indicates the referenced item is not in the session's list.
var ErrSelectionItemNotFound = errors.New("selection service: item not in list")

// ErrSelectionUnavailable indicates the selection service cannot fulfil the request due to missing dependencies or backend issues.
var ErrSelectionUnavailable = errors.New("selection service: unavailable")

var (
	errSelectionRepositoryRequired = errors.New("selection service: repository is required")
	errSelectionCatalogRequired    = errors.New("selection service: catalog is required")
	errSelectionEngineRequired     = errors.New("selection service: fill engine is required")
)

// DefaultRefillAttempts bounds the random search for a delete replacement.
const DefaultRefillAttempts = 15

// SelectionServiceDeps wires persistence, catalog access and the fill engine
// for session operations.
type SelectionServiceDeps struct {
	Repository repositories.SelectionRepository
	Catalog    CatalogService
	Engine     *FillEngine
	// RandomIndex returns a uniform index in [0, n); nil selects the
	// process entropy source. Tests inject a deterministic one.
	RandomIndex    func(n int) int
	RefillAttempts int
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(context.Context, string, map[string]any)
}

type selectionService struct {
	repo           repositories.SelectionRepository
	catalog        CatalogService
	engine         *FillEngine
	randomIndex    func(n int) int
	refillAttempts int
	now            func() time.Time
	newID          func() string
	logger         func(context.Context, string, map[string]any)

	// Session mutations are serialized per session id: the HTTP layer may
	// deliver concurrent requests, but each list mutates under one lock.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSelectionService constructs a SelectionService enforcing dependency validation.
func NewSelectionService(deps SelectionServiceDeps) (SelectionService, error) {
	if deps.Repository == nil {
		return nil, errSelectionRepositoryRequired
	}
	if deps.Catalog == nil {
		return nil, errSelectionCatalogRequired
	}
	if deps.Engine == nil {
		return nil, errSelectionEngineRequired
	}

	randomIndex := deps.RandomIndex
	if randomIndex == nil {
		randomIndex = rand.IntN
	}

	attempts := deps.RefillAttempts
	if attempts <= 0 {
		attempts = DefaultRefillAttempts
	}

	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &selectionService{
		repo:           deps.Repository,
		catalog:        deps.Catalog,
		engine:         deps.Engine,
		randomIndex:    randomIndex,
		refillAttempts: attempts,
		now:            func() time.Time { return now().UTC() },
		newID:          idGen,
		logger:         logger,
		locks:          make(map[string]*sync.Mutex),
	}, nil
}

func (s *selectionService) CreateSelection(ctx context.Context, cmd CreateSelectionCommand) (Selection, error) {
	if s == nil || s.repo == nil {
		return Selection{}, ErrSelectionUnavailable
	}

	budget := cmd.Budget
	if budget < 0 {
		budget = 0
	}

	now := s.now()
	selection := domain.Selection{
		ID:          s.newID(),
		CurrentList: []domain.Item{},
		LockedIDs:   make(map[string]struct{}),
		Quantities:  make(map[string]int),
		Budget:      budget,
		Filters:     copyFilters(cmd.Filters),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, selection); err != nil {
		return Selection{}, s.translateRepoError(err)
	}

	s.logger(ctx, "selection.created", map[string]any{
		"sessionID": selection.ID,
		"budget":    budget,
	})
	return selection.Clone(), nil
}

func (s *selectionService) GetSelection(ctx context.Context, sessionID string) (Selection, error) {
	if s == nil || s.repo == nil {
		return Selection{}, ErrSelectionUnavailable
	}
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return Selection{}, ErrSelectionInvalidInput
	}

	selection, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Selection{}, s.translateRepoError(err)
	}
	return selection.Clone(), nil
}

// Recommend rebuilds the non-locked part of the list within the effective
// budget. Extra quantities of locked items (beyond the first unit the engine
// already accounts for) are pre-paid out of the budget before the fill runs.
func (s *selectionService) Recommend(ctx context.Context, cmd RecommendCommand) (Selection, error) {
	if s == nil || s.repo == nil {
		return Selection{}, ErrSelectionUnavailable
	}
	id := strings.TrimSpace(cmd.SessionID)
	if id == "" {
		return Selection{}, ErrSelectionInvalidInput
	}

	unlock := s.lockSession(id)
	defer unlock()

	selection, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Selection{}, s.translateRepoError(err)
	}

	if cmd.Budget != nil {
		budget := *cmd.Budget
		if budget < 0 {
			budget = 0
		}
		selection.Budget = budget
	}
	if cmd.Filters != nil {
		selection.Filters = copyFilters(cmd.Filters)
	}

	asOf := s.now()
	catalog, err := s.catalog.ListActiveItems(ctx, asOf)
	if err != nil {
		return Selection{}, translateCatalogError(err)
	}

	var extraQuantityCost int64
	for _, item := range selection.CurrentList {
		if !selection.Locked(item.ID) {
			continue
		}
		if q := selection.Quantity(item.ID); q > 1 {
			extraQuantityCost += item.Price * int64(q-1)
		}
	}

	result := s.engine.Fill(ctx, FillCommand{
		Catalog:           catalog,
		CurrentItems:      selection.CurrentList,
		LockedIDs:         selection.LockedIDs,
		TotalBudget:       selection.Budget - extraQuantityCost,
		AllowedCategories: selection.AllowedCategories(),
		AsOf:              asOf,
	})

	selection.CurrentList = result.List
	s.reconcileQuantities(&selection)
	selection.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, selection); err != nil {
		return Selection{}, s.translateRepoError(err)
	}

	s.logger(ctx, "selection.recommended", map[string]any{
		"sessionID": id,
		"listSize":  len(selection.CurrentList),
		"unitTotal": result.Total,
	})
	return selection.Clone(), nil
}

func (s *selectionService) ToggleLock(ctx context.Context, sessionID, itemID string) (Selection, error) {
	if s == nil || s.repo == nil {
		return Selection{}, ErrSelectionUnavailable
	}
	id := strings.TrimSpace(sessionID)
	target := strings.TrimSpace(itemID)
	if id == "" || target == "" {
		return Selection{}, ErrSelectionInvalidInput
	}

	unlock := s.lockSession(id)
	defer unlock()

	selection, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Selection{}, s.translateRepoError(err)
	}
	if !selection.Contains(target) {
		return Selection{}, fmt.Errorf("%w: %s", ErrSelectionItemNotFound, target)
	}

	if selection.Locked(target) {
		delete(selection.LockedIDs, target)
	} else {
		selection.LockedIDs[target] = struct{}{}
	}
	selection.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, selection); err != nil {
		return Selection{}, s.translateRepoError(err)
	}
	return selection.Clone(), nil
}

// UpdateQuantity adjusts an item's quantity by delta, flooring at 1: a delta
// that would push the quantity below 1 leaves the selection untouched.
func (s *selectionService) UpdateQuantity(ctx context.Context, sessionID, itemID string, delta int) (Selection, error) {
	if s == nil || s.repo == nil {
		return Selection{}, ErrSelectionUnavailable
	}
	id := strings.TrimSpace(sessionID)
	target := strings.TrimSpace(itemID)
	if id == "" || target == "" || delta == 0 {
		return Selection{}, ErrSelectionInvalidInput
	}

	unlock := s.lockSession(id)
	defer unlock()

	selection, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Selection{}, s.translateRepoError(err)
	}
	if !selection.Contains(target) {
		return Selection{}, fmt.Errorf("%w: %s", ErrSelectionItemNotFound, target)
	}

	next := selection.Quantity(target) + delta
	if next < 1 {
		return selection.Clone(), nil
	}
	selection.Quantities[target] = next
	selection.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, selection); err != nil {
		return Selection{}, s.translateRepoError(err)
	}
	return selection.Clone(), nil
}

// DeleteItem removes an item and tries to fill the freed budget gap with
// random replacements. The replacement search is a bounded random probe over
// affordable catalog items, not a cap-checked engine run: replacements may
// exceed category caps, matching the list's manual-edit semantics.
func (s *selectionService) DeleteItem(ctx context.Context, sessionID, itemID string) (Selection, error) {
	if s == nil || s.repo == nil {
		return Selection{}, ErrSelectionUnavailable
	}
	id := strings.TrimSpace(sessionID)
	target := strings.TrimSpace(itemID)
	if id == "" || target == "" {
		return Selection{}, ErrSelectionInvalidInput
	}

	unlock := s.lockSession(id)
	defer unlock()

	selection, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Selection{}, s.translateRepoError(err)
	}
	if !selection.Contains(target) {
		return Selection{}, fmt.Errorf("%w: %s", ErrSelectionItemNotFound, target)
	}

	delete(selection.LockedIDs, target)
	delete(selection.Quantities, target)
	kept := selection.CurrentList[:0]
	for _, item := range selection.CurrentList {
		if item.ID != target {
			kept = append(kept, item)
		}
	}
	selection.CurrentList = kept

	if added := s.refillGap(ctx, &selection, target); len(added) > 0 {
		s.logger(ctx, "selection.refilled", map[string]any{
			"sessionID": id,
			"deleted":   target,
			"added":     added,
		})
	}

	selection.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, selection); err != nil {
		return Selection{}, s.translateRepoError(err)
	}
	return selection.Clone(), nil
}

// refillGap fills the budget gap left by a delete with random catalog items:
// bounded attempts, each picking one uniform item that fits the remaining
// gap, is not in the list, and is not the deleted item. Candidates matching
// the active category filters are preferred when any exist. The probe
// deliberately skips category cap checks; manual edits and their refills are
// not constrained the way engine fills are.
func (s *selectionService) refillGap(ctx context.Context, selection *domain.Selection, deletedID string) []string {
	gap := selection.Budget - selection.ListTotal()
	if gap <= 0 {
		return nil
	}

	catalog, err := s.catalog.ListActiveItems(ctx, s.now())
	if err != nil {
		s.logger(ctx, "selection.refill_catalog_failed", map[string]any{
			"sessionID": selection.ID,
			"error":     err.Error(),
		})
		return nil
	}

	allowed := selection.AllowedCategories()

	var added []string
	for attempt := 0; gap > 0 && attempt < s.refillAttempts; attempt++ {
		var pool, preferred []domain.Item
		for _, item := range catalog {
			if item.ID == deletedID || selection.Contains(item.ID) {
				continue
			}
			if item.Price <= 0 || item.Price > gap {
				continue
			}
			pool = append(pool, item)
			if allowed != nil && item.CategoryID != "" {
				if _, ok := allowed[item.CategoryID]; ok {
					preferred = append(preferred, item)
				}
			}
		}
		if len(preferred) > 0 {
			pool = preferred
		}
		if len(pool) == 0 {
			break
		}

		pick := pool[s.randomIndex(len(pool))]
		selection.CurrentList = append(selection.CurrentList, pick)
		selection.Quantities[pick.ID] = 1
		gap -= pick.Price
		added = append(added, pick.ID)
	}
	return added
}

// AddFromScan resolves a scanned barcode through the catalog and adds the
// item to the front of the list, locked. Scans represent items already in
// hand, so no budget check applies.
func (s *selectionService) AddFromScan(ctx context.Context, cmd AddFromScanCommand) (Selection, error) {
	if s == nil || s.repo == nil {
		return Selection{}, ErrSelectionUnavailable
	}
	id := strings.TrimSpace(cmd.SessionID)
	if id == "" {
		return Selection{}, ErrSelectionInvalidInput
	}

	item, err := s.catalog.ResolveScan(ctx, ResolveScanCommand{
		JAN:   cmd.JAN,
		Name:  cmd.Name,
		Price: cmd.Price,
	})
	if err != nil {
		return Selection{}, translateCatalogError(err)
	}

	unlock := s.lockSession(id)
	defer unlock()

	selection, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Selection{}, s.translateRepoError(err)
	}

	if !selection.Contains(item.ID) {
		selection.CurrentList = append([]domain.Item{item}, selection.CurrentList...)
	}
	if q, ok := selection.Quantities[item.ID]; ok {
		selection.Quantities[item.ID] = q + 1
	} else {
		selection.Quantities[item.ID] = 1
	}
	selection.LockedIDs[item.ID] = struct{}{}
	selection.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, selection); err != nil {
		return Selection{}, s.translateRepoError(err)
	}

	s.logger(ctx, "selection.scan_added", map[string]any{
		"sessionID": id,
		"itemID":    item.ID,
		"quantity":  selection.Quantities[item.ID],
	})
	return selection.Clone(), nil
}

// reconcileQuantities realigns the quantity map with the current list after a
// fill: new items start at 1, entries for departed items are dropped.
func (s *selectionService) reconcileQuantities(selection *domain.Selection) {
	present := make(map[string]struct{}, len(selection.CurrentList))
	for _, item := range selection.CurrentList {
		present[item.ID] = struct{}{}
		if _, ok := selection.Quantities[item.ID]; !ok {
			selection.Quantities[item.ID] = 1
		}
	}
	for itemID := range selection.Quantities {
		if _, ok := present[itemID]; !ok {
			delete(selection.Quantities, itemID)
		}
	}
}

func (s *selectionService) lockSession(sessionID string) func() {
	s.mu.Lock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (s *selectionService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrSelectionNotFound
		case repoErr.IsUnavailable():
			return ErrSelectionUnavailable
		}
		return ErrSelectionUnavailable
	}
	return ErrSelectionUnavailable
}

func translateCatalogError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCatalogInvalidInput) {
		return ErrSelectionInvalidInput
	}
	if errors.Is(err, ErrCatalogNotFound) {
		return ErrSelectionItemNotFound
	}
	return ErrSelectionUnavailable
}

func copyFilters(filters map[string]bool) map[string]bool {
	dup := make(map[string]bool, len(filters))
	for id, enabled := range filters {
		dup[id] = enabled
	}
	return dup
}
