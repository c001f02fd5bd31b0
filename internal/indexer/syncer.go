package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"worktrack.app/relay/common/logger"
	"worktrack.app/relay/internal/docstore"
	"worktrack.app/relay/internal/domain"
	"worktrack.app/relay/internal/store"
)

// DocumentStore is the external index. Implemented by docstore.Client.
type DocumentStore interface {
	Create(ctx context.Context, doc docstore.Document, ownerID string) (string, error)
	Update(ctx context.Context, docID string, doc docstore.Document) error
	Delete(ctx context.Context, docID string) error
	OwnerFor(orgID int64) string
}

// CascadeResult summarizes a fan-out over dependent work items.
type CascadeResult struct {
	Total  int
	Failed int
}

// Syncer keeps one index document per work item. The persisted doc id is the
// idempotency key: create is a no-op when one exists, and a legacy id is replaced by
// a fresh create before any update.
type Syncer struct {
	items       store.WorkItemStore
	projections store.ProjectionStore
	docs        DocumentStore
}

func NewSyncer(items store.WorkItemStore, projections store.ProjectionStore, docs DocumentStore) *Syncer {
	return &Syncer{items: items, projections: projections, docs: docs}
}

// Sync routes a message to the matching transition.
func (s *Syncer) Sync(ctx context.Context, msg domain.IndexSyncMessage) error {
	entityID, orgID := int64(msg.EntityID), int64(msg.OrgID)

	switch msg.EntityType {
	case domain.IndexWorkItem:
		switch msg.Action {
		case domain.ActionCreate:
			return s.Create(ctx, entityID, orgID)
		case domain.ActionUpdate:
			return s.Update(ctx, entityID, orgID)
		case domain.ActionDelete:
			return s.Delete(ctx, entityID, msg.ExternalDocID)
		}
	case domain.IndexCustomFieldValue:
		// Values belong to a work item; the message carries the parent id.
		return s.Update(ctx, entityID, orgID)
	case domain.IndexCategory:
		if msg.Action != domain.ActionUpdate {
			slog.DebugContext(ctx, "category change does not affect documents", "action", msg.Action)
			return nil
		}
		_, err := s.CascadeCategory(ctx, entityID, orgID)
		return err
	case domain.IndexCustomFieldSchema:
		if msg.Action != domain.ActionUpdate {
			slog.DebugContext(ctx, "custom field change does not affect documents", "action", msg.Action)
			return nil
		}
		_, err := s.CascadeCustomField(ctx, entityID, orgID)
		return err
	}
	return fmt.Errorf("unsupported index message %s.%s", msg.EntityType, msg.Action)
}

func (s *Syncer) Create(ctx context.Context, workItemID, orgID int64) error {
	ctx = withItem(ctx, workItemID, orgID)

	existing, err := s.items.GetExternalDocID(ctx, workItemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "work item not found, skipping create")
			return nil
		}
		return fmt.Errorf("loading doc id: %w", err)
	}
	if existing != nil {
		slog.InfoContext(ctx, "work item already indexed, skipping create", "doc_id", *existing)
		return nil
	}

	return s.createDocument(ctx, workItemID, orgID)
}

func (s *Syncer) Update(ctx context.Context, workItemID, orgID int64) error {
	ctx = withItem(ctx, workItemID, orgID)

	existing, err := s.items.GetExternalDocID(ctx, workItemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "work item not found, skipping update")
			return nil
		}
		return fmt.Errorf("loading doc id: %w", err)
	}

	if existing == nil {
		return s.createDocument(ctx, workItemID, orgID)
	}
	if docstore.IsLegacyID(*existing) {
		slog.InfoContext(ctx, "legacy doc id, recreating document", "legacy_doc_id", *existing)
		return s.createDocument(ctx, workItemID, orgID)
	}

	doc, ok, err := s.buildDocument(ctx, workItemID, orgID)
	if err != nil || !ok {
		return err
	}
	if err := s.docs.Update(ctx, *existing, doc); err != nil {
		return fmt.Errorf("updating document %s: %w", *existing, err)
	}
	slog.InfoContext(ctx, "work item reindexed", "doc_id", *existing)
	return nil
}

// Delete removes the remote document and always clears the stored id, even when the
// remote call fails. Legacy documents are not deleted remotely. knownDocID is the id
// captured when the event was published; it is the only handle left once the row is gone.
func (s *Syncer) Delete(ctx context.Context, workItemID int64, knownDocID *string) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{WorkItemID: logger.Ptr(workItemID)})

	existing, err := s.items.GetExternalDocID(ctx, workItemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if knownDocID != nil {
				s.deleteRemote(ctx, *knownDocID)
			}
			slog.InfoContext(ctx, "work item already removed")
			return nil
		}
		return fmt.Errorf("loading doc id: %w", err)
	}
	if existing == nil {
		existing = knownDocID
	}
	if existing == nil {
		return nil
	}

	s.deleteRemote(ctx, *existing)

	if err := s.items.ClearExternalDocID(ctx, workItemID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("clearing doc id: %w", err)
	}
	slog.InfoContext(ctx, "work item removed from index", "doc_id", *existing)
	return nil
}

func (s *Syncer) deleteRemote(ctx context.Context, docID string) {
	if docID == "" || docstore.IsLegacyID(docID) {
		return
	}
	if err := s.docs.Delete(ctx, docID); err != nil {
		slog.WarnContext(ctx, "document delete failed, clearing doc id anyway",
			"doc_id", docID,
			"error", err)
	}
}

// CascadeCategory reindexes every work item in a category, one at a time.
func (s *Syncer) CascadeCategory(ctx context.Context, categoryID, orgID int64) (CascadeResult, error) {
	ids, err := s.items.ListIDsByCategory(ctx, categoryID)
	if err != nil {
		return CascadeResult{}, fmt.Errorf("listing work items in category %d: %w", categoryID, err)
	}
	return s.cascade(ctx, "category", categoryID, orgID, ids), nil
}

// CascadeCustomField reindexes every distinct work item holding a value for the field.
func (s *Syncer) CascadeCustomField(ctx context.Context, fieldID, orgID int64) (CascadeResult, error) {
	ids, err := s.items.ListIDsByCustomField(ctx, fieldID)
	if err != nil {
		return CascadeResult{}, fmt.Errorf("listing work items for custom field %d: %w", fieldID, err)
	}
	return s.cascade(ctx, "custom_field", fieldID, orgID, ids), nil
}

func (s *Syncer) cascade(ctx context.Context, source string, sourceID, orgID int64, ids []int64) CascadeResult {
	result := CascadeResult{Total: len(ids)}
	slog.InfoContext(ctx, "cascading reindex",
		"source", source,
		"source_id", sourceID,
		"work_items", len(ids))

	for _, workItemID := range ids {
		if err := s.Update(ctx, workItemID, orgID); err != nil {
			result.Failed++
			slog.ErrorContext(ctx, "cascaded reindex failed",
				"source", source,
				"source_id", sourceID,
				"work_item_id", workItemID,
				"error", err)
		}
	}

	slog.InfoContext(ctx, "cascading reindex completed",
		"source", source,
		"source_id", sourceID,
		"total", result.Total,
		"failed", result.Failed)
	return result
}

func (s *Syncer) createDocument(ctx context.Context, workItemID, orgID int64) error {
	doc, ok, err := s.buildDocument(ctx, workItemID, orgID)
	if err != nil || !ok {
		return err
	}
	docID, err := s.docs.Create(ctx, doc, s.docs.OwnerFor(orgID))
	if err != nil {
		return fmt.Errorf("creating document: %w", err)
	}
	if err := s.items.SetExternalDocID(ctx, workItemID, docID); err != nil {
		return fmt.Errorf("persisting doc id %s: %w", docID, err)
	}
	slog.InfoContext(ctx, "work item indexed", "doc_id", docID)
	return nil
}

// buildDocument returns ok=false when the item vanished between the message and now.
func (s *Syncer) buildDocument(ctx context.Context, workItemID, orgID int64) (docstore.Document, bool, error) {
	projection, err := s.projections.GetFullData(ctx, workItemID, orgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "work item projection not found, skipping")
			return docstore.Document{}, false, nil
		}
		return docstore.Document{}, false, fmt.Errorf("loading projection: %w", err)
	}
	return BuildDocument(*projection), true, nil
}

func withItem(ctx context.Context, workItemID, orgID int64) context.Context {
	return logger.WithLogFields(ctx, logger.LogFields{
		WorkItemID: logger.Ptr(workItemID),
		OrgID:      logger.Ptr(orgID),
	})
}
