package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/interfaces"
)

const (
	defaultGeminiModel      = "gemini-2.0-flash"
	defaultGeminiEmbedModel = "text-embedding-004"
)

// GeminiService generates completions and embeddings through the Gemini
// API.
type GeminiService struct {
	client     *genai.Client
	model      string
	embedModel string
	embedDim   int
	timeout    time.Duration
	logger     arbor.ILogger
}

// NewGeminiService creates the Gemini provider. embedDim fixes the output
// dimensionality of embeddings so they match the vector store collections.
func NewGeminiService(cfg *common.LLMConfig, embedDim int, logger arbor.ILogger) (*GeminiService, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, apperr.Validation("gemini provider requires an API key (BANKING_GEMINI_API_KEY)")
	}

	model := cfg.GeminiModel
	if model == "" {
		model = defaultGeminiModel
	}

	timeout, err := time.ParseDuration(cfg.GenerateTimeout)
	if err != nil {
		return nil, apperr.Validation("invalid generate timeout %q: %v", cfg.GenerateTimeout, err)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindExternalService, "failed to initialize gemini client")
	}

	return &GeminiService{
		client:     client,
		model:      model,
		embedModel: defaultGeminiEmbedModel,
		embedDim:   embedDim,
		timeout:    timeout,
		logger:     logger,
	}, nil
}

func (s *GeminiService) ProviderName() string { return "gemini" }

func (s *GeminiService) IsAvailable(ctx context.Context) bool { return true }

func (s *GeminiService) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	contents := []*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)}
	resp, err := s.client.Models.GenerateContent(callCtx, s.model, contents, config)
	if err != nil {
		return "", apperr.Wrap(err, apperr.KindExternalService, "gemini API call failed")
	}

	var response strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					response.WriteString(part.Text)
				}
			}
			if response.Len() > 0 {
				break
			}
		}
	}
	if response.Len() == 0 {
		return "", apperr.ExternalService("gemini returned no text content")
	}
	return response.String(), nil
}

// Embed generates a fixed-dimension embedding through the Gemini embedding
// model.
func (s *GeminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	outputDim := int32(s.embedDim)
	config := &genai.EmbedContentConfig{OutputDimensionality: &outputDim}

	result, err := s.client.Models.EmbedContent(ctx, s.embedModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, config)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindExternalService, "gemini embedding failed")
	}

	if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, apperr.ExternalService("gemini returned no embedding")
	}
	embedding := result.Embeddings[0].Values
	if len(embedding) != s.embedDim {
		return nil, apperr.ExternalService("gemini embedding dimension mismatch: expected %d, got %d",
			s.embedDim, len(embedding))
	}
	return embedding, nil
}

func (s *GeminiService) MethodName() string {
	return fmt.Sprintf("gemini/%s", s.embedModel)
}

var _ interfaces.LLMService = (*GeminiService)(nil)
var _ interfaces.Embedder = (*GeminiService)(nil)
