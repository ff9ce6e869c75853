package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/interfaces"
)

// OllamaService talks to a local Ollama server. Requests are paced through
// a rate limiter so batch embedding runs do not starve interactive queries.
type OllamaService struct {
	baseURL       string
	model         string
	client        *http.Client
	embedClient   *http.Client
	limiter       *rate.Limiter
	logger        arbor.ILogger
}

// NewOllamaService creates the Ollama provider.
func NewOllamaService(cfg *common.LLMConfig, logger arbor.ILogger) (*OllamaService, error) {
	if cfg.OllamaBaseURL == "" {
		return nil, apperr.Validation("ollama base URL is required")
	}
	if cfg.OllamaModel == "" {
		return nil, apperr.Validation("ollama model name is required")
	}

	generateTimeout, err := time.ParseDuration(cfg.GenerateTimeout)
	if err != nil {
		return nil, apperr.Validation("invalid generate timeout %q: %v", cfg.GenerateTimeout, err)
	}
	embedTimeout, err := time.ParseDuration(cfg.EmbedTimeout)
	if err != nil {
		return nil, apperr.Validation("invalid embed timeout %q: %v", cfg.EmbedTimeout, err)
	}

	return &OllamaService{
		baseURL:     strings.TrimRight(cfg.OllamaBaseURL, "/"),
		model:       cfg.OllamaModel,
		client:      &http.Client{Timeout: generateTimeout},
		embedClient: &http.Client{Timeout: embedTimeout},
		limiter:     rate.NewLimiter(rate.Limit(5), 2),
		logger:      logger,
	}, nil
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (s *OllamaService) ProviderName() string { return "ollama" }

// IsAvailable checks the tags endpoint with a short deadline.
func (s *OllamaService) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, s.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (s *OllamaService) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", apperr.Wrap(err, apperr.KindExternalService, "ollama request cancelled while rate limited")
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  s.model,
		Prompt: userPrompt,
		System: systemPrompt,
		Stream: false,
	})
	if err != nil {
		return "", apperr.Wrap(err, apperr.KindExternalService, "failed to encode ollama request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", apperr.Wrap(err, apperr.KindExternalService, "failed to build ollama request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", apperr.Wrap(err, apperr.KindExternalService, "ollama unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", apperr.ExternalService("ollama generate returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.Wrap(err, apperr.KindExternalService, "failed to decode ollama response")
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", apperr.ExternalService("ollama returned an empty completion")
	}
	return out.Response, nil
}

// Embed requests an embedding from the Ollama embeddings endpoint.
func (s *OllamaService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, apperr.Wrap(err, apperr.KindExternalService, "ollama request cancelled while rate limited")
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: s.model, Prompt: text})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindExternalService, "failed to encode embed request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindExternalService, "failed to build embed request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.embedClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindExternalService, "ollama unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperr.ExternalService("ollama embeddings returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Wrap(err, apperr.KindExternalService, "failed to decode embed response")
	}
	if len(out.Embedding) == 0 {
		return nil, apperr.ExternalService("ollama returned an empty embedding")
	}

	vec := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (s *OllamaService) MethodName() string {
	return fmt.Sprintf("ollama/%s", s.model)
}

var _ interfaces.LLMService = (*OllamaService)(nil)
var _ interfaces.Embedder = (*OllamaService)(nil)
