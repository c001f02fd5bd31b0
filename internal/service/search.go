package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"worktrack.app/relay/internal/docstore"
	"worktrack.app/relay/internal/store"
)

var ErrEmptyQuery = errors.New("search query is required")

const defaultSearchLimit = 20

// DocumentSearcher runs a similarity query. Implemented by docstore.Client.
type DocumentSearcher interface {
	Query(ctx context.Context, query, ownerID string) ([]docstore.QueryResult, error)
	OwnerFor(orgID int64) string
}

type SearchService interface {
	// Search returns the org's work item ids whose documents match query, best first.
	Search(ctx context.Context, orgID int64, query string, limit int) ([]int64, error)
}

type searchService struct {
	docs  DocumentSearcher
	items store.WorkItemStore
}

func NewSearchService(docs DocumentSearcher, items store.WorkItemStore) SearchService {
	return &searchService{docs: docs, items: items}
}

func (s *searchService) Search(ctx context.Context, orgID int64, query string, limit int) ([]int64, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	results, err := s.docs.Query(ctx, query, s.docs.OwnerFor(orgID))
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}

	seen := make(map[string]struct{}, len(results))
	docIDs := make([]string, 0, len(results))
	for _, r := range results {
		if r.DocID == "" {
			continue
		}
		if _, dup := seen[r.DocID]; dup {
			continue
		}
		seen[r.DocID] = struct{}{}
		docIDs = append(docIDs, r.DocID)
	}

	ids, err := s.items.ListIDsByExternalDocIDs(ctx, orgID, docIDs)
	if err != nil {
		return nil, fmt.Errorf("resolving documents: %w", err)
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	slog.DebugContext(ctx, "search completed", "documents", len(docIDs), "work_items", len(ids))
	return ids, nil
}
