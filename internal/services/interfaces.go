package services

import (
	"context"
	"time"

	domain "github.com/kaimono-app/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Item      = domain.Item
	Barcode   = domain.Barcode
	Selection = domain.Selection
)

// CatalogService manages the product catalog and barcode links.
type CatalogService interface {
	ListActiveItems(ctx context.Context, asOf time.Time) ([]Item, error)
	GetItem(ctx context.Context, itemID string) (Item, error)
	UpsertItem(ctx context.Context, cmd UpsertItemCommand) (Item, error)
	DeleteItem(ctx context.Context, itemID string) error
	ResolveBarcode(ctx context.Context, jan string) (Item, error)
	// ResolveScan resolves a JAN code to an item, registering a temporary
	// placeholder item when the code is unknown.
	ResolveScan(ctx context.Context, cmd ResolveScanCommand) (Item, error)
}

// UpsertItemCommand carries a catalog create/update request.
type UpsertItemCommand struct {
	ID          string
	Name        string
	Price       int64
	CategoryID  string
	Active      bool
	Recommended bool
	ExpiresAt   *time.Time
}

// ResolveScanCommand carries a barcode scan needing catalog resolution.
type ResolveScanCommand struct {
	JAN string
	// Name and Price seed the temporary item registered for an unknown
	// code. Name may be empty; the JAN code is used as a fallback label.
	Name  string
	Price int64
}

// SelectionService hosts shopping list sessions and their mutations.
type SelectionService interface {
	CreateSelection(ctx context.Context, cmd CreateSelectionCommand) (Selection, error)
	GetSelection(ctx context.Context, sessionID string) (Selection, error)
	Recommend(ctx context.Context, cmd RecommendCommand) (Selection, error)
	ToggleLock(ctx context.Context, sessionID, itemID string) (Selection, error)
	UpdateQuantity(ctx context.Context, sessionID, itemID string, delta int) (Selection, error)
	DeleteItem(ctx context.Context, sessionID, itemID string) (Selection, error)
	AddFromScan(ctx context.Context, cmd AddFromScanCommand) (Selection, error)
}

// CreateSelectionCommand opens a new session.
type CreateSelectionCommand struct {
	Budget  int64
	Filters map[string]bool
}

// RecommendCommand re-fills a session's list. Nil fields keep the session's
// current budget or filters.
type RecommendCommand struct {
	SessionID string
	Budget    *int64
	Filters   map[string]bool
}

// AddFromScanCommand adds a scanned product to a session. JAN resolution goes
// through the catalog; Name/Price seed a temporary item for unknown codes.
type AddFromScanCommand struct {
	SessionID string
	JAN       string
	Name      string
	Price     int64
}
