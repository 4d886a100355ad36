package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	domain "github.com/kaimono-app/api/internal/domain"
)

// DefaultLowBudgetCutoff stops the greedy scan once the remaining budget
// drops below this many yen. Tuning knob inherited from the production
// behaviour; further search below this remainder is not worth the pass.
const DefaultLowBudgetCutoff int64 = 50

// FillEngineDeps wires the constraint policy and randomness source for the
// fill engine.
type FillEngineDeps struct {
	Policy *CapPolicy
	// Shuffle permutes a candidate group in place. Nil selects a uniform
	// shuffle backed by the process entropy source; tests inject a seeded
	// one for determinism.
	Shuffle func([]domain.Item)
	// LowBudgetCutoff overrides DefaultLowBudgetCutoff when positive.
	LowBudgetCutoff int64
	Clock           func() time.Time
	Logger          func(context.Context, string, map[string]any)
}

// FillEngine greedily fills the remaining budget with catalog items while
// honouring category caps and keeping locked items untouched. One invocation
// is a single O(catalog) pass; it never errors for "nothing fits".
type FillEngine struct {
	policy  CapPolicy
	shuffle func([]domain.Item)
	cutoff  int64
	now     func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewFillEngine constructs a FillEngine enforcing dependency validation.
func NewFillEngine(deps FillEngineDeps) (*FillEngine, error) {
	if deps.Policy == nil {
		return nil, errors.New("fill engine: cap policy is required")
	}

	shuffle := deps.Shuffle
	if shuffle == nil {
		shuffle = func(items []domain.Item) {
			rand.Shuffle(len(items), func(i, j int) {
				items[i], items[j] = items[j], items[i]
			})
		}
	}

	cutoff := deps.LowBudgetCutoff
	if cutoff <= 0 {
		cutoff = DefaultLowBudgetCutoff
	}

	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &FillEngine{
		policy:  *deps.Policy,
		shuffle: shuffle,
		cutoff:  cutoff,
		now:     func() time.Time { return now().UTC() },
		logger:  logger,
	}, nil
}

// FillCommand carries one fill invocation's inputs.
type FillCommand struct {
	// Catalog is the point-in-time snapshot; it may contain inactive or
	// expired items, the engine filters them.
	Catalog []domain.Item
	// CurrentItems is the list the locked items are extracted from;
	// non-locked members are discarded and recomputed.
	CurrentItems []domain.Item
	LockedIDs    map[string]struct{}
	// TotalBudget is the ceiling in yen. Callers subtract extra-quantity
	// cost before invoking; the engine treats every item as unit price.
	TotalBudget int64
	// AllowedCategories restricts new selections when non-nil. Items
	// without a category are excluded while a filter is active; locked
	// items are kept regardless.
	AllowedCategories map[string]struct{}
	// AsOf anchors the expiry check; zero means now.
	AsOf time.Time
}

// FillResult is the engine output: the locked items followed by the newly
// accepted ones, and their combined unit-price total.
type FillResult struct {
	List  []domain.Item
	Total int64
}

// Fill runs the greedy budget fill. The result total never exceeds
// TotalBudget unless the locked items alone already do; locked items are
// never evicted.
func (e *FillEngine) Fill(ctx context.Context, cmd FillCommand) FillResult {
	asOf := cmd.AsOf
	if asOf.IsZero() {
		asOf = e.now()
	}

	locked := make([]domain.Item, 0, len(cmd.LockedIDs))
	var total int64
	for _, item := range cmd.CurrentItems {
		if _, ok := cmd.LockedIDs[item.ID]; ok {
			locked = append(locked, item)
			total += item.Price
		}
	}

	remaining := cmd.TotalBudget - total
	if remaining <= 0 {
		// Locked items already consume the budget. Not an error: the
		// caller distinguishes this only by an empty added delta.
		return FillResult{List: locked, Total: total}
	}

	counts := make(map[string]int)
	for _, item := range locked {
		if item.CategoryID != "" {
			counts[item.CategoryID]++
		}
	}

	var recommended, others []domain.Item
	for _, item := range cmd.Catalog {
		if !e.candidate(item, cmd.LockedIDs, cmd.AllowedCategories, asOf) {
			continue
		}
		if item.Recommended {
			recommended = append(recommended, item)
			continue
		}
		// Boxed meals and noodles sell out quickly; they join a list only
		// via recommendation or a manual add, never the auto-fill.
		if item.CategoryID == domain.CategoryBoxedMeal || item.CategoryID == domain.CategoryNoodle {
			continue
		}
		others = append(others, item)
	}

	e.shuffle(recommended)
	e.shuffle(others)

	var added []domain.Item
	for _, item := range append(recommended, others...) {
		if item.Price <= remaining && e.policy.CanAdd(item, counts) {
			added = append(added, item)
			remaining -= item.Price
			total += item.Price
			if item.CategoryID != "" {
				counts[item.CategoryID]++
			}
		}
		if remaining < e.cutoff {
			break
		}
	}

	e.logger(ctx, "fill.completed", map[string]any{
		"lockedCount":      len(locked),
		"recommendedCount": len(recommended),
		"otherCount":       len(others),
		"addedCount":       len(added),
		"total":            total,
	})

	return FillResult{List: append(locked, added...), Total: total}
}

func (e *FillEngine) candidate(item domain.Item, lockedIDs, allowed map[string]struct{}, asOf time.Time) bool {
	if !item.Available(asOf) {
		return false
	}
	if item.Price < 0 {
		return false
	}
	if _, ok := lockedIDs[item.ID]; ok {
		return false
	}
	if allowed != nil {
		if item.CategoryID == "" {
			return false
		}
		if _, ok := allowed[item.CategoryID]; !ok {
			return false
		}
	}
	return true
}
