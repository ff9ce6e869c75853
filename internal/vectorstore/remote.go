package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/models"
)

// remoteStore delegates vector operations to an HTTP vector service. Any
// transport or non-2xx failure surfaces as an external-service error.
type remoteStore struct {
	baseURL string
	client  *http.Client
	logger  arbor.ILogger
}

// NewRemoteStore creates the remote backend against the given base URL.
func NewRemoteStore(baseURL string, logger arbor.ILogger) (Store, error) {
	if baseURL == "" {
		return nil, apperr.Validation("remote vector backend requires a base URL")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, apperr.Validation("invalid remote vector URL %q: %v", baseURL, err)
	}

	return &remoteStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}, nil
}

type remoteAddRequest struct {
	Records []models.VectorRecord `json:"records"`
}

type remoteSearchRequest struct {
	Query   []float32         `json:"query"`
	TopK    int               `json:"top_k"`
	Filters map[string]string `json:"filters,omitempty"`
}

type remoteSearchResponse struct {
	Results []models.SearchResult `json:"results"`
}

type remoteCollectionsResponse struct {
	Collections []string `json:"collections"`
}

func (s *remoteStore) Add(ctx context.Context, collection string, records []models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	path := fmt.Sprintf("/collections/%s/add", url.PathEscape(collection))
	return s.do(ctx, http.MethodPost, path, remoteAddRequest{Records: records}, nil)
}

func (s *remoteStore) Search(ctx context.Context, collection string, query []float32, topK int, filters map[string]string) ([]models.SearchResult, error) {
	if topK <= 0 {
		return nil, apperr.Validation("top_k must be positive, got %d", topK)
	}

	var resp remoteSearchResponse
	path := fmt.Sprintf("/collections/%s/search", url.PathEscape(collection))
	if err := s.do(ctx, http.MethodPost, path, remoteSearchRequest{Query: query, TopK: topK, Filters: filters}, &resp); err != nil {
		return nil, err
	}
	if resp.Results == nil {
		return []models.SearchResult{}, nil
	}
	if len(resp.Results) > topK {
		resp.Results = resp.Results[:topK]
	}
	return resp.Results, nil
}

func (s *remoteStore) DeleteCollection(ctx context.Context, collection string) error {
	path := fmt.Sprintf("/collections/%s", url.PathEscape(collection))
	return s.do(ctx, http.MethodDelete, path, nil, nil)
}

func (s *remoteStore) ListCollections(ctx context.Context) ([]string, error) {
	var resp remoteCollectionsResponse
	if err := s.do(ctx, http.MethodGet, "/collections", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Collections == nil {
		return []string{}, nil
	}
	return resp.Collections, nil
}

func (s *remoteStore) Stats(ctx context.Context) (map[string]CollectionStats, error) {
	stats := make(map[string]CollectionStats)
	if err := s.do(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *remoteStore) Close() error { return nil }

func (s *remoteStore) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(err, apperr.KindData, "failed to encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return apperr.Wrap(err, apperr.KindExternalService, "failed to build vector service request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return apperr.Wrap(err, apperr.KindExternalService, "vector service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperr.ExternalService("vector service returned %d for %s %s: %s",
			resp.StatusCode, method, path, strings.TrimSpace(string(snippet)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperr.Wrap(err, apperr.KindExternalService, "failed to decode vector service response")
		}
	}
	return nil
}
