package integrations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/crypto"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
	"github.com/ternarybob/trutina/internal/storage/sqlite"
)

func newTestService(t *testing.T) (*Service, interfaces.IntegrationStorage) {
	t.Helper()
	logger := arbor.NewLogger()
	dir := t.TempDir()

	db, err := sqlite.NewSQLiteDB(filepath.Join(dir, "admin.db"), logger, sqlite.MigrateAdmin)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	storage := sqlite.NewIntegrationStorage(db, logger)

	cipher, err := crypto.New("", filepath.Join(dir, ".encryption.key"), logger)
	require.NoError(t, err)
	return NewService(storage, cipher, logger), storage
}

func TestSaveEncryptsSecrets(t *testing.T) {
	service, storage := newTestService(t)
	ctx := context.Background()

	require.NoError(t, service.Save(ctx, &models.Integration{
		ID:         "redis",
		Name:       "Cache",
		ConfigJSON: `{"addr":"localhost:6379","password":"hunter2"}`,
	}))

	stored, err := storage.Get(ctx, "redis")
	require.NoError(t, err)
	var config map[string]string
	require.NoError(t, json.Unmarshal([]byte(stored.ConfigJSON), &config))
	assert.True(t, crypto.IsEncrypted(config["password"]), "password must be encrypted at rest")
	assert.Equal(t, "localhost:6379", config["addr"], "non-secret fields stay plaintext")

	redacted, err := service.Get(ctx, "redis")
	require.NoError(t, err)
	var visible map[string]string
	require.NoError(t, json.Unmarshal([]byte(redacted.ConfigJSON), &visible))
	assert.Equal(t, "********", visible["password"], "read endpoints redact secrets")
}

func TestTestRedisAgainstMiniredis(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	require.NoError(t, service.Save(ctx, &models.Integration{
		ID:         "redis",
		Name:       "Cache",
		ConfigJSON: `{"addr":"` + mr.Addr() + `"}`,
	}))

	result, err := service.Test(ctx, "redis")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.GreaterOrEqual(t, result.LatencyMS, 0.0)

	stored, err := service.Get(ctx, "redis")
	require.NoError(t, err)
	assert.Equal(t, models.IntegrationConnected, stored.Status)
	assert.NotNil(t, stored.LastSync)
}

func TestTestRedisUnreachable(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, service.Save(ctx, &models.Integration{
		ID:         "redis",
		Name:       "Cache",
		ConfigJSON: `{"addr":"127.0.0.1:1"}`,
	}))

	result, err := service.Test(ctx, "redis")
	require.NoError(t, err, "a failed probe is a result, not an error")
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Message)

	stored, err := service.Get(ctx, "redis")
	require.NoError(t, err)
	assert.Equal(t, models.IntegrationDisconnected, stored.Status)
}

func TestTestRESTEndpoint(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	var sawAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	require.NoError(t, service.Save(ctx, &models.Integration{
		ID:         "warehouse",
		Name:       "Warehouse API",
		ConfigJSON: `{"url":"` + server.URL + `","api_key":"sekrit"}`,
	}))

	result, err := service.Test(ctx, "warehouse")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Bearer sekrit", sawAuth, "the stored key is decrypted for the probe")
}

func TestTestUnknownIntegration(t *testing.T) {
	service, _ := newTestService(t)
	_, err := service.Test(context.Background(), "absent")
	require.Error(t, err)
}
