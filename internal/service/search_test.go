package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"worktrack.app/relay/internal/docstore"
	"worktrack.app/relay/internal/service"
)

var _ = Describe("SearchService", func() {
	var (
		ctx      context.Context
		searcher *mockSearcher
		items    *mockWorkItemStore
		svc      service.SearchService
	)

	BeforeEach(func() {
		ctx = context.Background()
		searcher = &mockSearcher{}
		items = &mockWorkItemStore{}
		svc = service.NewSearchService(searcher, items)
	})

	It("resolves ranked documents to work items", func() {
		searcher.queryFn = func(_ context.Context, query, ownerID string) ([]docstore.QueryResult, error) {
			Expect(query).To(Equal("login bug"))
			Expect(ownerID).To(Equal("owner-3"))
			return []docstore.QueryResult{
				{DocID: "b", Score: 0.9},
				{DocID: "a", Score: 0.8},
				{DocID: "b", Score: 0.7},
				{DocID: "", Score: 0.5},
			}, nil
		}
		items.listByDocIDsFn = func(_ context.Context, orgID int64, docIDs []string) ([]int64, error) {
			Expect(orgID).To(Equal(int64(3)))
			Expect(docIDs).To(Equal([]string{"b", "a"}))
			return []int64{20, 10}, nil
		}

		ids, err := svc.Search(ctx, 3, "  login bug ", 0)

		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal([]int64{20, 10}))
	})

	It("applies the limit", func() {
		searcher.queryFn = func(_ context.Context, _, _ string) ([]docstore.QueryResult, error) {
			return []docstore.QueryResult{{DocID: "a"}, {DocID: "b"}, {DocID: "c"}}, nil
		}
		items.listByDocIDsFn = func(_ context.Context, _ int64, _ []string) ([]int64, error) {
			return []int64{1, 2, 3}, nil
		}

		ids, err := svc.Search(ctx, 3, "x", 2)

		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal([]int64{1, 2}))
	})

	It("rejects an empty query", func() {
		_, err := svc.Search(ctx, 3, "  ", 10)
		Expect(err).To(MatchError(service.ErrEmptyQuery))
	})

	It("wraps document store failures", func() {
		searcher.queryFn = func(_ context.Context, _, _ string) ([]docstore.QueryResult, error) {
			return nil, docstore.ErrStoreUnavailable
		}

		_, err := svc.Search(ctx, 3, "x", 10)
		Expect(errors.Is(err, docstore.ErrStoreUnavailable)).To(BeTrue())
	})
})
