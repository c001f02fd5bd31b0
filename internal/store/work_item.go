package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"worktrack.app/relay/core/db"
)

type workItemStore struct {
	q db.Querier
}

func newWorkItemStore(q db.Querier) WorkItemStore {
	return &workItemStore{q: q}
}

func (s *workItemStore) GetExternalDocID(ctx context.Context, workItemID int64) (*string, error) {
	var docID *string
	err := s.q.QueryRow(ctx, `SELECT doc_id FROM work_items WHERE id = $1`, workItemID).Scan(&docID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if docID != nil && *docID == "" {
		return nil, nil
	}
	return docID, nil
}

func (s *workItemStore) SetExternalDocID(ctx context.Context, workItemID int64, docID string) error {
	return s.setDocID(ctx, workItemID, &docID)
}

func (s *workItemStore) ClearExternalDocID(ctx context.Context, workItemID int64) error {
	return s.setDocID(ctx, workItemID, nil)
}

func (s *workItemStore) setDocID(ctx context.Context, workItemID int64, docID *string) error {
	tag, err := s.q.Exec(ctx, `UPDATE work_items SET doc_id = $2, updated_at = now() WHERE id = $1`, workItemID, docID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *workItemStore) ListIDsByCategory(ctx context.Context, categoryID int64) ([]int64, error) {
	return s.listIDs(ctx, `SELECT id FROM work_items WHERE category_id = $1 ORDER BY id`, categoryID)
}

func (s *workItemStore) ListIDsByCustomField(ctx context.Context, fieldID int64) ([]int64, error) {
	return s.listIDs(ctx, `
		SELECT DISTINCT work_item_id FROM custom_field_values
		WHERE custom_field_meta_data_id = $1
		ORDER BY work_item_id`, fieldID)
}

func (s *workItemStore) ListIDsByExternalDocIDs(ctx context.Context, orgID int64, docIDs []string) ([]int64, error) {
	if len(docIDs) == 0 {
		return []int64{}, nil
	}
	// array_position keeps the ranking order of the supplied ids.
	return s.listIDs(ctx, `
		SELECT id FROM work_items
		WHERE org_id = $1 AND doc_id = ANY($2)
		ORDER BY array_position($2, doc_id)`, orgID, docIDs)
}

func (s *workItemStore) listIDs(ctx context.Context, sql string, args ...any) ([]int64, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collecting work item ids: %w", err)
	}
	return ids, nil
}
