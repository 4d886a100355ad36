package domain

import (
	"time"
)

// Category identifiers recognised by the composer. Categories originate in
// the catalog; the composer only attaches meaning to the ones below, anything
// else is passed through untouched.
const (
	// CategoryBoxedMeal covers bento and rice-bowl style meals.
	CategoryBoxedMeal = "boxed-meal"
	// CategoryNoodle covers noodle and soup dishes.
	CategoryNoodle = "noodle"
	// CategoryRiceBall covers onigiri.
	CategoryRiceBall = "rice-ball"
	// CategoryBeverage covers drinks.
	CategoryBeverage = "beverage"
	// CategorySnack covers snacks and desserts (merged upstream).
	CategorySnack = "snack"
	// CategoryDeli covers side dishes and salads.
	CategoryDeli = "deli"
	// CategoryBread covers bakery items.
	CategoryBread = "bread"
)

// Item is one purchasable catalog product. Prices are expressed in the
// smallest currency unit (yen); there is no fractional currency.
type Item struct {
	ID          string
	Name        string
	Price       int64
	CategoryID  string // empty means uncategorized
	Active      bool
	Recommended bool
	Temporary   bool // placeholder registered from an unknown barcode scan
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Available reports whether the item may be offered at the given instant.
// Inactive items and items past their expiry are never selectable.
func (i Item) Available(asOf time.Time) bool {
	if !i.Active {
		return false
	}
	if i.ExpiresAt != nil && !i.ExpiresAt.After(asOf) {
		return false
	}
	return true
}

// Barcode links a JAN code to a catalog item.
type Barcode struct {
	JAN    string
	ItemID string
}

// Selection is the per-session mutable state of one shopping list.
//
// Invariants maintained by the selection service:
//   - every id in LockedIDs appears in CurrentList;
//   - CurrentList never contains two items with the same id;
//   - every key in Quantities corresponds to an id in CurrentList
//     (dangling entries are reconciled after each list change).
type Selection struct {
	ID          string
	CurrentList []Item
	LockedIDs   map[string]struct{}
	Quantities  map[string]int // absent means 1
	Budget      int64
	Filters     map[string]bool // category id -> enabled; empty means allow all
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Quantity returns the effective quantity for an item id (default 1).
func (s Selection) Quantity(itemID string) int {
	if q, ok := s.Quantities[itemID]; ok && q > 0 {
		return q
	}
	return 1
}

// Contains reports whether the list already holds the given item id.
func (s Selection) Contains(itemID string) bool {
	for _, item := range s.CurrentList {
		if item.ID == itemID {
			return true
		}
	}
	return false
}

// Locked reports whether the given item id is pinned by the user.
func (s Selection) Locked(itemID string) bool {
	_, ok := s.LockedIDs[itemID]
	return ok
}

// LockedTotal sums the unit prices of locked items (quantity ignored; the
// fill engine reasons about unit prices only).
func (s Selection) LockedTotal() int64 {
	var total int64
	for _, item := range s.CurrentList {
		if s.Locked(item.ID) {
			total += item.Price
		}
	}
	return total
}

// ListTotal sums price times quantity over the whole list.
func (s Selection) ListTotal() int64 {
	var total int64
	for _, item := range s.CurrentList {
		total += item.Price * int64(s.Quantity(item.ID))
	}
	return total
}

// AllowedCategories converts the filter map into the allowed-category set the
// fill engine consumes: nil when every filter is disabled or absent (allow
// all), otherwise the set of enabled category ids.
func (s Selection) AllowedCategories() map[string]struct{} {
	var allowed map[string]struct{}
	for id, enabled := range s.Filters {
		if !enabled {
			continue
		}
		if allowed == nil {
			allowed = make(map[string]struct{})
		}
		allowed[id] = struct{}{}
	}
	return allowed
}

// Clone returns a deep copy so callers can hand snapshots across API
// boundaries without aliasing session-owned maps.
func (s Selection) Clone() Selection {
	dup := s
	dup.CurrentList = append([]Item(nil), s.CurrentList...)
	dup.LockedIDs = make(map[string]struct{}, len(s.LockedIDs))
	for id := range s.LockedIDs {
		dup.LockedIDs[id] = struct{}{}
	}
	dup.Quantities = make(map[string]int, len(s.Quantities))
	for id, q := range s.Quantities {
		dup.Quantities[id] = q
	}
	dup.Filters = make(map[string]bool, len(s.Filters))
	for id, enabled := range s.Filters {
		dup.Filters[id] = enabled
	}
	return dup
}
