package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/models"
)

func TestRemoteSearch(t *testing.T) {
	var gotReq remoteSearchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/fraud_detection/search", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(remoteSearchResponse{Results: []models.SearchResult{
			{Record: models.VectorRecord{ChunkID: "a"}, Similarity: 0.9},
			{Record: models.VectorRecord{ChunkID: "b"}, Similarity: 0.5},
		}})
	}))
	defer server.Close()

	store, err := NewRemoteStore(server.URL, arbor.NewLogger())
	require.NoError(t, err)

	results, err := store.Search(context.Background(), "fraud_detection",
		[]float32{1, 0}, 2, map[string]string{"source": "report.csv"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Record.ChunkID)
	assert.Equal(t, 2, gotReq.TopK)
	assert.Equal(t, "report.csv", gotReq.Filters["source"])
}

func TestRemoteErrorsSurfaceAsExternalService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index corrupted", http.StatusInternalServerError)
	}))
	defer server.Close()

	store, err := NewRemoteStore(server.URL, arbor.NewLogger())
	require.NoError(t, err)

	_, err = store.Search(context.Background(), "c", []float32{1}, 5, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindExternalService))

	err = store.Add(context.Background(), "c", seedRecords())
	assert.True(t, apperr.IsKind(err, apperr.KindExternalService))
}

func TestRemoteUnreachable(t *testing.T) {
	store, err := NewRemoteStore("http://127.0.0.1:1", arbor.NewLogger())
	require.NoError(t, err)

	_, err = store.ListCollections(context.Background())
	assert.True(t, apperr.IsKind(err, apperr.KindExternalService))
}

func TestRemoteRequiresBaseURL(t *testing.T) {
	_, err := NewRemoteStore("", arbor.NewLogger())
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}
