package services

import (
	domain "github.com/kaimono-app/api/internal/domain"
)

// DefaultCategoryCaps is the stock cap table: the maximum number of items of
// one category a single list may carry. Categories absent from the table are
// uncapped. The caps are configuration, not algorithm: swap the table to
// change composition rules without touching the fill engine.
var DefaultCategoryCaps = map[string]int{
	domain.CategoryBoxedMeal: 1,
	domain.CategoryNoodle:    1,
	domain.CategoryRiceBall:  2,
	domain.CategoryBeverage:  1,
	domain.CategorySnack:     2,
}

// CapPolicy answers whether one more item of a given category may join a
// list, given how many of that category are already present. It is a pure
// predicate; callers increment their own count map after a successful add.
type CapPolicy struct {
	caps map[string]int
}

// NewCapPolicy builds a policy from the supplied cap table. A nil table
// selects DefaultCategoryCaps. The table is copied.
func NewCapPolicy(caps map[string]int) CapPolicy {
	if caps == nil {
		caps = DefaultCategoryCaps
	}
	dup := make(map[string]int, len(caps))
	for category, limit := range caps {
		if limit < 0 {
			limit = 0
		}
		dup[category] = limit
	}
	return CapPolicy{caps: dup}
}

// Cap returns the configured cap for a category and whether one exists.
func (p CapPolicy) Cap(categoryID string) (int, bool) {
	limit, ok := p.caps[categoryID]
	return limit, ok
}

// CanAdd reports whether an item may be added given current per-category
// counts. Uncategorized items are always permitted; so are items of
// categories without a configured cap.
func (p CapPolicy) CanAdd(item domain.Item, counts map[string]int) bool {
	if item.CategoryID == "" {
		return true
	}
	limit, ok := p.caps[item.CategoryID]
	if !ok {
		return true
	}
	return counts[item.CategoryID] < limit
}
