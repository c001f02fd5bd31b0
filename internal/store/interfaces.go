package store

import (
	"context"
	"errors"

	"worktrack.app/relay/internal/model"
)

var (
	// ErrNotFound is returned when a requested entity does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint
	ErrConflict = errors.New("already exists")
)

// WorkItemStore is the slice of work item persistence the event pipeline needs:
// the external document id and the fan-out lookups used by cascades.
type WorkItemStore interface {
	// GetExternalDocID returns nil when the item exists but has never been indexed.
	GetExternalDocID(ctx context.Context, workItemID int64) (*string, error)
	SetExternalDocID(ctx context.Context, workItemID int64, docID string) error
	ClearExternalDocID(ctx context.Context, workItemID int64) error
	ListIDsByCategory(ctx context.Context, categoryID int64) ([]int64, error)
	// ListIDsByCustomField returns each work item holding a value for the field once.
	ListIDsByCustomField(ctx context.Context, fieldID int64) ([]int64, error)
	ListIDsByExternalDocIDs(ctx context.Context, orgID int64, docIDs []string) ([]int64, error)
}

// AutomationRuleStore defines the contract for automation rule data access
type AutomationRuleStore interface {
	FindActiveByEventType(ctx context.Context, orgID int64, eventType string) ([]model.AutomationRule, error)
	FindByID(ctx context.Context, orgID, id int64) (*model.AutomationRule, error)
	List(ctx context.Context, orgID int64) ([]model.AutomationRule, error)
	Create(ctx context.Context, rule *model.AutomationRule) error
	Update(ctx context.Context, rule *model.AutomationRule) error
	Delete(ctx context.Context, orgID, id int64) error
}

// ProjectionStore assembles the full snapshot of a work item.
type ProjectionStore interface {
	GetFullData(ctx context.Context, workItemID, orgID int64) (*model.Projection, error)
}
