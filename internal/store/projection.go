package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"worktrack.app/relay/core/db"
	"worktrack.app/relay/internal/model"
)

type projectionStore struct {
	q db.Querier
}

func newProjectionStore(q db.Querier) ProjectionStore {
	return &projectionStore{q: q}
}

func (s *projectionStore) GetFullData(ctx context.Context, workItemID, orgID int64) (*model.Projection, error) {
	var (
		p           model.Projection
		catID       *int64
		catOrgID    *int64
		catName     *string
		catKeyName  *string
		catExternal *string
	)
	err := s.q.QueryRow(ctx, `
		SELECT w.id, w.org_id, w.category_id, w.title, w.description, w.status, w.priority,
		       w.doc_id, w.created_at, w.updated_at,
		       c.id, c.org_id, c.name, c.key_name, c.external_tool
		FROM work_items w
		LEFT JOIN categories c ON c.id = w.category_id
		WHERE w.id = $1 AND w.org_id = $2`, workItemID, orgID).Scan(
		&p.WorkItem.ID, &p.WorkItem.OrgID, &p.WorkItem.CategoryID, &p.WorkItem.Title,
		&p.WorkItem.Description, &p.WorkItem.Status, &p.WorkItem.Priority,
		&p.WorkItem.ExternalDocID, &p.WorkItem.CreatedAt, &p.WorkItem.UpdatedAt,
		&catID, &catOrgID, &catName, &catKeyName, &catExternal,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading work item: %w", err)
	}
	if catID != nil {
		p.Category = &model.Category{
			ID:           *catID,
			OrgID:        derefOr(catOrgID, 0),
			Name:         derefOr(catName, ""),
			KeyName:      derefOr(catKeyName, ""),
			ExternalTool: catExternal,
		}
	}

	rows, err := s.q.Query(ctx, `
		SELECT m.id, m.category_id, m.key_name, m.name, m.data_type, m.description, m.enums,
		       v.value_text, v.value_number::float8, v.value_boolean
		FROM custom_field_values v
		JOIN custom_field_meta_data m ON m.id = v.custom_field_meta_data_id
		WHERE v.work_item_id = $1
		ORDER BY m.key_name`, workItemID)
	if err != nil {
		return nil, fmt.Errorf("loading custom fields: %w", err)
	}
	defer rows.Close()

	p.CustomFields = map[string]any{}
	p.CustomFieldsMetadata = map[string]model.CustomFieldMeta{}
	for rows.Next() {
		var (
			meta   model.CustomFieldMeta
			text   *string
			number *float64
			flag   *bool
		)
		if err := rows.Scan(&meta.ID, &meta.CategoryID, &meta.KeyName, &meta.Name, &meta.DataType,
			&meta.Description, &meta.Enums, &text, &number, &flag); err != nil {
			return nil, fmt.Errorf("scanning custom field: %w", err)
		}
		p.CustomFields[meta.KeyName] = fieldValue(meta.DataType, text, number, flag)
		p.CustomFieldsMetadata[meta.KeyName] = meta
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating custom fields: %w", err)
	}

	return &p, nil
}

// fieldValue picks the typed column matching the field's data type, falling back to
// whichever column is populated.
func fieldValue(dataType model.CustomFieldDataType, text *string, number *float64, flag *bool) any {
	switch dataType {
	case model.CustomFieldNumber:
		if number != nil {
			return *number
		}
	case model.CustomFieldBoolean:
		if flag != nil {
			return *flag
		}
	default:
		if text != nil {
			return *text
		}
	}
	switch {
	case text != nil:
		return *text
	case number != nil:
		return *number
	case flag != nil:
		return *flag
	}
	return nil
}

func derefOr[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}
