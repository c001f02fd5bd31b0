package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"worktrack.app/relay/internal/docstore"
	"worktrack.app/relay/internal/http/handler"
	"worktrack.app/relay/internal/service"
)

var _ = Describe("SearchHandler", func() {
	var (
		router *gin.Engine
		svc    *mockSearchService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockSearchService{}
		router.POST("/search", handler.RequireOrgID(), handler.NewSearchHandler(svc).Search)
	})

	do := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(handler.OrgIDHeader, "42")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("returns work item ids as strings", func() {
		var gotQuery string
		var gotLimit int
		svc.searchFn = func(_ context.Context, orgID int64, query string, limit int) ([]int64, error) {
			Expect(orgID).To(Equal(int64(42)))
			gotQuery, gotLimit = query, limit
			return []int64{1789012345678901234, 5}, nil
		}

		w := do(`{"query":"login page broken","limit":5}`)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(gotQuery).To(Equal("login page broken"))
		Expect(gotLimit).To(Equal(5))

		var resp struct {
			WorkItemIDs []string `json:"work_item_ids"`
		}
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.WorkItemIDs).To(Equal([]string{"1789012345678901234", "5"}))
	})

	It("returns an empty list when nothing matches", func() {
		w := do(`{"query":"nothing"}`)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(MatchJSON(`{"work_item_ids":[]}`))
	})

	DescribeTable("maps errors to status codes",
		func(err error, status int) {
			svc.searchFn = func(context.Context, int64, string, int) ([]int64, error) {
				return nil, err
			}
			Expect(do(`{"query":"q"}`).Code).To(Equal(status))
		},
		Entry("empty query", service.ErrEmptyQuery, http.StatusBadRequest),
		Entry("search not configured", fmt.Errorf("query: %w", docstore.ErrNotConfigured), http.StatusServiceUnavailable),
		Entry("store unavailable", fmt.Errorf("query: %w", docstore.ErrStoreUnavailable), http.StatusBadGateway),
		Entry("anything else", fmt.Errorf("boom"), http.StatusInternalServerError),
	)

	It("rejects a missing query", func() {
		Expect(do(`{}`).Code).To(Equal(http.StatusBadRequest))
	})

	It("rejects an out of range limit", func() {
		Expect(do(`{"query":"q","limit":1000}`).Code).To(Equal(http.StatusBadRequest))
	})
})
