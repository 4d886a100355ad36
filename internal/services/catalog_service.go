package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/kaimono-app/api/internal/domain"
	"github.com/kaimono-app/api/internal/platform/textutil"
	"github.com/kaimono-app/api/internal/repositories"
)

// ErrCatalogInvalidInput indicates the caller supplied invalid input.
var ErrCatalogInvalidInput = errors.New("catalog service: invalid input")

// ErrCatalogNotFound indicates the requested item or barcode does not exist.
var ErrCatalogNotFound = errors.New("catalog service: not found")

// ErrCatalogUnavailable indicates the catalog service cannot fulfil the request due to missing dependencies or backend issues.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

var errCatalogRepositoryRequired = errors.New("catalog service: repository is required")

const maxItemNameLength = 200

// ClassificationJobMessage asks background staff tooling to categorise a
// temporary item registered from an unknown barcode.
type ClassificationJobMessage struct {
	ItemID      string    `json:"itemId"`
	JAN         string    `json:"jan"`
	Name        string    `json:"name"`
	Price       int64     `json:"price"`
	RequestedAt time.Time `json:"requestedAt"`
}

// ClassificationJobPublisher enqueues classification jobs for temporary items.
type ClassificationJobPublisher interface {
	PublishClassificationJob(ctx context.Context, message ClassificationJobMessage) (string, error)
}

// CatalogServiceDeps wires persistence and job publishing for catalog operations.
type CatalogServiceDeps struct {
	Repository repositories.ProductRepository
	// Classifier is optional; when nil, unknown-barcode items are still
	// registered but no job is published.
	Classifier  ClassificationJobPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type catalogService struct {
	repo       repositories.ProductRepository
	classifier ClassificationJobPublisher
	now        func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Repository == nil {
		return nil, errCatalogRepositoryRequired
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

	return &catalogService{
		repo:       deps.Repository,
		classifier: deps.Classifier,
		now:        func() time.Time { return now().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

func (s *catalogService) ListActiveItems(ctx context.Context, asOf time.Time) ([]Item, error) {
	if s == nil || s.repo == nil {
		return nil, ErrCatalogUnavailable
	}
	if asOf.IsZero() {
		asOf = s.now()
	}

	items, err := s.repo.ListActive(ctx, asOf.UTC())
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return items, nil
}

func (s *catalogService) GetItem(ctx context.Context, itemID string) (Item, error) {
	if s == nil || s.repo == nil {
		return Item{}, ErrCatalogUnavailable
	}
	id := strings.TrimSpace(itemID)
	if id == "" {
		return Item{}, ErrCatalogInvalidInput
	}

	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Item{}, s.translateRepoError(err)
	}
	return item, nil
}

func (s *catalogService) UpsertItem(ctx context.Context, cmd UpsertItemCommand) (Item, error) {
	if s == nil || s.repo == nil {
		return Item{}, ErrCatalogUnavailable
	}

	id := strings.TrimSpace(cmd.ID)
	if id == "" {
		return Item{}, fmt.Errorf("%w: item id is required", ErrCatalogInvalidInput)
	}
	name, err := s.cleanName(cmd.Name)
	if err != nil {
		return Item{}, err
	}
	if cmd.Price < 0 {
		return Item{}, fmt.Errorf("%w: price must not be negative", ErrCatalogInvalidInput)
	}

	now := s.now()
	item := domain.Item{
		ID:          id,
		Name:        name,
		Price:       cmd.Price,
		CategoryID:  strings.TrimSpace(cmd.CategoryID),
		Active:      cmd.Active,
		Recommended: cmd.Recommended,
		ExpiresAt:   cmd.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if existing, err := s.repo.FindByID(ctx, id); err == nil {
		item.CreatedAt = existing.CreatedAt
		item.Temporary = existing.Temporary
	} else if !isRepoNotFound(err) {
		return Item{}, s.translateRepoError(err)
	}

	saved, err := s.repo.Upsert(ctx, item)
	if err != nil {
		return Item{}, s.translateRepoError(err)
	}
	return saved, nil
}

func (s *catalogService) DeleteItem(ctx context.Context, itemID string) error {
	if s == nil || s.repo == nil {
		return ErrCatalogUnavailable
	}
	id := strings.TrimSpace(itemID)
	if id == "" {
		return ErrCatalogInvalidInput
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *catalogService) ResolveBarcode(ctx context.Context, jan string) (Item, error) {
	if s == nil || s.repo == nil {
		return Item{}, ErrCatalogUnavailable
	}
	code := strings.TrimSpace(jan)
	if code == "" {
		return Item{}, ErrCatalogInvalidInput
	}

	barcode, err := s.repo.ResolveBarcode(ctx, code)
	if err != nil {
		return Item{}, s.translateRepoError(err)
	}
	item, err := s.repo.FindByID(ctx, barcode.ItemID)
	if err != nil {
		return Item{}, s.translateRepoError(err)
	}
	return item, nil
}

// ResolveScan maps a JAN code to a catalog item. Unknown codes register a
// temporary placeholder so the scan can still join a list; a classification
// job is published for staff to categorise it afterwards.
func (s *catalogService) ResolveScan(ctx context.Context, cmd ResolveScanCommand) (Item, error) {
	if s == nil || s.repo == nil {
		return Item{}, ErrCatalogUnavailable
	}
	code := strings.TrimSpace(cmd.JAN)
	if code == "" {
		return Item{}, fmt.Errorf("%w: jan code is required", ErrCatalogInvalidInput)
	}

	barcode, err := s.repo.ResolveBarcode(ctx, code)
	if err == nil {
		item, err := s.repo.FindByID(ctx, barcode.ItemID)
		if err != nil {
			return Item{}, s.translateRepoError(err)
		}
		return item, nil
	}
	if !isRepoNotFound(err) {
		return Item{}, s.translateRepoError(err)
	}

	if cmd.Price < 0 {
		return Item{}, fmt.Errorf("%w: price must not be negative", ErrCatalogInvalidInput)
	}
	name, err := s.cleanName(cmd.Name)
	if err != nil {
		return Item{}, err
	}
	if name == "" {
		name = code
	}

	now := s.now()
	item := domain.Item{
		ID:        s.newID(),
		Name:      name,
		Price:     cmd.Price,
		Active:    true,
		Temporary: true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	saved, err := s.repo.LinkBarcode(ctx, item, code)
	if err != nil {
		return Item{}, s.translateRepoError(err)
	}

	s.logger(ctx, "catalog.temporary_item_registered", map[string]any{
		"itemID": saved.ID,
		"jan":    code,
	})

	if s.classifier != nil {
		msgID, err := s.classifier.PublishClassificationJob(ctx, ClassificationJobMessage{
			ItemID:      saved.ID,
			JAN:         code,
			Name:        saved.Name,
			Price:       saved.Price,
			RequestedAt: now,
		})
		if err != nil {
			// The item is already registered; classification can be
			// repaired by the admin tooling, so the scan still succeeds.
			s.logger(ctx, "catalog.classification_publish_failed", map[string]any{
				"itemID": saved.ID,
				"error":  err.Error(),
			})
		} else {
			s.logger(ctx, "catalog.classification_job_published", map[string]any{
				"itemID":    saved.ID,
				"messageID": msgID,
			})
		}
	}

	return saved, nil
}

func (s *catalogService) cleanName(raw string) (string, error) {
	name := textutil.NormalizeProductName(raw)
	if len(name) > maxItemNameLength {
		return "", fmt.Errorf("%w: name exceeds %d characters", ErrCatalogInvalidInput, maxItemNameLength)
	}
	return name, nil
}

func (s *catalogService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCatalogNotFound
		case repoErr.IsUnavailable():
			return ErrCatalogUnavailable
		}
		return ErrCatalogUnavailable
	}
	return ErrCatalogUnavailable
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
