package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"worktrack.app/relay/internal/docstore"
	"worktrack.app/relay/internal/http/dto"
	"worktrack.app/relay/internal/service"
)

type SearchHandler struct {
	search service.SearchService
}

func NewSearchHandler(search service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

func (h *SearchHandler) Search(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids, err := h.search.Search(ctx, orgID(c), req.Query, req.Limit)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrEmptyQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, docstore.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search is not configured"})
		return
	case errors.Is(err, docstore.ErrStoreUnavailable):
		slog.WarnContext(ctx, "document store unavailable", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "search is temporarily unavailable"})
		return
	default:
		slog.ErrorContext(ctx, "search failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	resp := dto.SearchResponse{WorkItemIDs: make([]string, len(ids))}
	for i, id := range ids {
		resp.WorkItemIDs[i] = strconv.FormatInt(id, 10)
	}
	c.JSON(http.StatusOK, resp)
}
