// Package integrations manages external service connections: persisted
// configs with encrypted secrets and live connection tests.
package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/crypto"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
)

const testTimeout = 5 * time.Second

// secretFields are encrypted in place inside config JSON before it
// reaches storage.
var secretFields = []string{"password", "api_key", "secret", "token"}

type Service struct {
	storage interfaces.IntegrationStorage
	cipher  *crypto.Cipher
	logger  arbor.ILogger
}

func NewService(storage interfaces.IntegrationStorage, cipher *crypto.Cipher, logger arbor.ILogger) *Service {
	return &Service{storage: storage, cipher: cipher, logger: logger}
}

// Save encrypts secret fields inside the config and upserts the row.
func (s *Service) Save(ctx context.Context, integration *models.Integration) error {
	if integration.ID == "" {
		return apperr.Validation("integration id is required")
	}
	encrypted, err := s.encryptSecrets(integration.ConfigJSON)
	if err != nil {
		return err
	}
	integration.ConfigJSON = encrypted
	if integration.Status == "" {
		integration.Status = models.IntegrationDisconnected
	}
	return s.storage.Upsert(ctx, integration)
}

// Get returns one integration with secret fields redacted.
func (s *Service) Get(ctx context.Context, id string) (*models.Integration, error) {
	integration, err := s.storage.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	integration.ConfigJSON = s.redactSecrets(integration.ConfigJSON)
	return integration, nil
}

// List returns all integrations with secret fields redacted.
func (s *Service) List(ctx context.Context) ([]*models.Integration, error) {
	integrations, err := s.storage.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, integration := range integrations {
		integration.ConfigJSON = s.redactSecrets(integration.ConfigJSON)
	}
	return integrations, nil
}

// Delete removes an integration.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.storage.Delete(ctx, id)
}

// Test performs a live connection attempt for a known integration ID and
// persists the resulting status.
func (s *Service) Test(ctx context.Context, id string) (*models.IntegrationTestResult, error) {
	integration, err := s.storage.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	config, err := s.decryptConfig(integration.ConfigJSON)
	if err != nil {
		return nil, err
	}

	testCtx, cancel := context.WithTimeout(ctx, testTimeout)
	defer cancel()

	start := time.Now()
	var testErr error
	switch id {
	case "pg":
		testErr = testPostgres(testCtx, config)
	case "redis":
		testErr = testRedis(testCtx, config)
	default:
		testErr = testREST(testCtx, config)
	}
	latency := float64(time.Since(start).Microseconds()) / 1000

	result := &models.IntegrationTestResult{ID: id, LatencyMS: latency}
	status := models.IntegrationConnected
	now := time.Now().UTC()
	var lastSync *time.Time = &now

	if testErr != nil {
		result.Message = testErr.Error()
		status = models.IntegrationDisconnected
		lastSync = nil
	} else {
		result.Success = true
	}

	if err := s.storage.UpdateStatus(ctx, id, status, lastSync); err != nil {
		s.logger.Warn().Str("integration", id).Err(err).Msg("Failed to persist integration status")
	}
	return result, nil
}

func testPostgres(ctx context.Context, config map[string]string) error {
	dsn := config["dsn"]
	if dsn == "" {
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
			valueOr(config, "user", "postgres"),
			config["password"],
			valueOr(config, "host", "localhost"),
			valueOr(config, "port", "5432"),
			valueOr(config, "database", "postgres"))
	}
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return apperr.Wrap(err, apperr.KindExternalService, "postgres connection failed")
	}
	defer conn.Close(ctx)
	if err := conn.Ping(ctx); err != nil {
		return apperr.Wrap(err, apperr.KindExternalService, "postgres ping failed")
	}
	return nil
}

func testRedis(ctx context.Context, config map[string]string) error {
	client := redis.NewClient(&redis.Options{
		Addr:     valueOr(config, "addr", "localhost:6379"),
		Password: config["password"],
	})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return apperr.Wrap(err, apperr.KindExternalService, "redis ping failed")
	}
	return nil
}

func testREST(ctx context.Context, config map[string]string) error {
	url := config["url"]
	if url == "" {
		return apperr.Validation("REST integration requires a url in its config")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperr.Wrap(err, apperr.KindValidation, "invalid REST endpoint url")
	}
	if key := config["api_key"]; key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return apperr.Wrap(err, apperr.KindExternalService, "REST endpoint unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return apperr.ExternalService("REST endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// encryptSecrets parses the config JSON and encrypts known secret fields
// in place.
func (s *Service) encryptSecrets(configJSON string) (string, error) {
	if configJSON == "" {
		return "{}", nil
	}
	var config map[string]interface{}
	if err := json.Unmarshal([]byte(configJSON), &config); err != nil {
		return "", apperr.Wrap(err, apperr.KindValidation, "config must be a JSON object")
	}
	for _, field := range secretFields {
		raw, ok := config[field].(string)
		if !ok || raw == "" {
			continue
		}
		encrypted, err := s.cipher.Encrypt(raw)
		if err != nil {
			return "", apperr.Wrap(err, apperr.KindModel, "failed to encrypt config secret")
		}
		config[field] = encrypted
	}
	out, err := json.Marshal(config)
	if err != nil {
		return "", apperr.Wrap(err, apperr.KindModel, "failed to encode config")
	}
	return string(out), nil
}

// decryptConfig flattens the config JSON into strings with secrets
// decrypted, ready for a connection attempt.
func (s *Service) decryptConfig(configJSON string) (map[string]string, error) {
	var raw map[string]interface{}
	if configJSON == "" {
		configJSON = "{}"
	}
	if err := json.Unmarshal([]byte(configJSON), &raw); err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "stored config is not valid JSON")
	}
	config := make(map[string]string, len(raw))
	for key, value := range raw {
		str, ok := value.(string)
		if !ok {
			str = fmt.Sprintf("%v", value)
		}
		if crypto.IsEncrypted(str) {
			str = s.cipher.Decrypt(str)
		}
		config[key] = str
	}
	return config, nil
}

// redactSecrets masks secret fields for read endpoints.
func (s *Service) redactSecrets(configJSON string) string {
	var config map[string]interface{}
	if err := json.Unmarshal([]byte(configJSON), &config); err != nil {
		return configJSON
	}
	changed := false
	for _, field := range secretFields {
		if raw, ok := config[field].(string); ok && raw != "" {
			config[field] = strings.Repeat("*", 8)
			changed = true
		}
	}
	if !changed {
		return configJSON
	}
	out, err := json.Marshal(config)
	if err != nil {
		return configJSON
	}
	return string(out)
}

func valueOr(config map[string]string, key, fallback string) string {
	if v := config[key]; v != "" {
		return v
	}
	return fallback
}
