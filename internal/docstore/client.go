package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"worktrack.app/relay/common/logger"
	"worktrack.app/relay/core/config"
	"worktrack.app/relay/internal/metrics"
)

var (
	// ErrStoreUnavailable is returned once every attempt of a call has failed.
	ErrStoreUnavailable = errors.New("document store unavailable")
	ErrNotConfigured    = errors.New("document store not configured")
	ErrInvalidResponse  = errors.New("invalid document store response")
)

const (
	maxRetries     = 2
	chunkStrategy  = "recursive"
	chunkSize      = 4000
	authHeaderName = "pauthkey"

	maxErrorBodyLen = 512
)

var currentIDPattern = regexp.MustCompile(`^[0-9a-f]{24}$`)

// IsLegacyID reports whether docID was issued by the predecessor index. Ids issued by
// the current store are 24-character lowercase hex object ids.
func IsLegacyID(docID string) bool {
	return docID != "" && !currentIDPattern.MatchString(docID)
}

type Document struct {
	Title       string
	Description string
	Content     string
}

type QueryResult struct {
	DocID string
	Score float64
}

type Client struct {
	cfg  config.DocStoreConfig
	http *http.Client
}

func New(cfg config.DocStoreConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// OwnerFor returns the owner id documents of an org are filed under.
func (c *Client) OwnerFor(orgID int64) string {
	if c.cfg.OwnerID != "" {
		return c.cfg.OwnerID
	}
	return strconv.FormatInt(orgID, 10)
}

type createRequest struct {
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	Content           string           `json:"content"`
	Settings          chunkingSettings `json:"settings"`
	CollectionDetails string           `json:"collection_details"`
	OwnerID           string           `json:"owner_id"`
}

type chunkingSettings struct {
	Strategy  string `json:"strategy"`
	ChunkSize int    `json:"chunkSize"`
}

type createResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		ID string `json:"_id"`
	} `json:"data"`
}

// Create indexes doc and returns the id the store assigned to it.
func (c *Client) Create(ctx context.Context, doc Document, ownerID string) (string, error) {
	var resp createResponse
	err := c.do(ctx, "create", http.MethodPost, c.cfg.APIURL+"/resource", createRequest{
		Title:       doc.Title,
		Description: doc.Description,
		Content:     doc.Content,
		Settings: chunkingSettings{
			Strategy:  chunkStrategy,
			ChunkSize: chunkSize,
		},
		CollectionDetails: c.cfg.CollectionMode,
		OwnerID:           ownerID,
	}, &resp)
	if err != nil {
		return "", err
	}
	if !resp.Success || resp.Data == nil || resp.Data.ID == "" {
		return "", ErrInvalidResponse
	}
	slog.InfoContext(ctx, "document created", "doc_id", resp.Data.ID, "owner_id", ownerID)
	return resp.Data.ID, nil
}

type updateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

func (c *Client) Update(ctx context.Context, docID string, doc Document) error {
	err := c.do(ctx, "update", http.MethodPut, c.cfg.APIURL+"/resource/"+docID, updateRequest{
		Title:       doc.Title,
		Description: doc.Description,
		Content:     doc.Content,
	}, nil)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "document updated", "doc_id", docID)
	return nil
}

// Delete removes a document. Callers treat failures as non-fatal.
func (c *Client) Delete(ctx context.Context, docID string) error {
	if err := c.do(ctx, "delete", http.MethodDelete, c.cfg.APIURL+"/resource/"+docID, nil, nil); err != nil {
		return err
	}
	slog.InfoContext(ctx, "document deleted", "doc_id", docID)
	return nil
}

type queryRequest struct {
	CollectionID string `json:"collection_id"`
	OwnerID      string `json:"owner_id"`
	Query        string `json:"query"`
}

type queryResponse struct {
	Results []struct {
		DocID string  `json:"doc_id"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// Query runs a semantic search and returns matching document ids in ranking order.
func (c *Client) Query(ctx context.Context, query, ownerID string) ([]QueryResult, error) {
	if c.cfg.CollectionID == "" {
		return nil, fmt.Errorf("%w: collection id missing", ErrNotConfigured)
	}
	var resp queryResponse
	err := c.do(ctx, "query", http.MethodPost, c.cfg.QueryURL+"/query", queryRequest{
		CollectionID: c.cfg.CollectionID,
		OwnerID:      ownerID,
		Query:        query,
	}, &resp)
	if err != nil {
		return nil, err
	}

	results := make([]QueryResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.DocID == "" {
			continue
		}
		results = append(results, QueryResult{DocID: r.DocID, Score: r.Score})
	}
	slog.DebugContext(ctx, "document query completed", "results", len(results), "owner_id", ownerID)
	return results, nil
}

// do performs one call with up to maxRetries extra attempts, waiting RetryDelay*n
// before attempt n+1.
func (c *Client) do(ctx context.Context, op, method, url string, body, out any) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "relay.docstore"})

	if !c.cfg.Enabled() {
		metrics.IncDocStoreRequest(op, "not_configured")
		return fmt.Errorf("%w: auth token missing", ErrNotConfigured)
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshaling %s request: %w", op, err)
		}
	}

	attempt := 0
	call := func() error {
		attempt++
		return c.send(ctx, method, url, payload, out)
	}

	policy := backoff.WithContext(&linearBackOff{base: c.cfg.RetryDelay, max: maxRetries}, ctx)
	err := backoff.RetryNotify(call, policy, func(err error, wait time.Duration) {
		slog.WarnContext(ctx, "document store call failed, retrying",
			"op", op,
			"attempt", attempt,
			"retry_in", wait,
			"error", err)
	})
	if err != nil {
		metrics.IncDocStoreRequest(op, "error")
		slog.ErrorContext(ctx, "document store call failed",
			"op", op,
			"attempts", attempt,
			"error", err)
		return fmt.Errorf("%w: %s after %d attempts: %v", ErrStoreUnavailable, op, attempt, err)
	}
	metrics.IncDocStoreRequest(op, "ok")
	return nil
}

func (c *Client) send(ctx context.Context, method, url string, payload []byte, out any) error {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(authHeaderName, c.cfg.AuthToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, logger.Truncate(strings.TrimSpace(string(respBody)), maxErrorBodyLen))
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// linearBackOff waits base*n before the n-th retry and stops after max retries.
type linearBackOff struct {
	base    time.Duration
	max     int
	retries int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	if b.retries >= b.max {
		return backoff.Stop
	}
	b.retries++
	return b.base * time.Duration(b.retries)
}

func (b *linearBackOff) Reset() {
	b.retries = 0
}
