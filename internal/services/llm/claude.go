package llm

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/interfaces"
)

const defaultClaudeModel = "claude-sonnet-4-20250514"

// ClaudeService generates completions through the Anthropic API.
type ClaudeService struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	logger  arbor.ILogger
}

// NewClaudeService creates the Claude provider.
func NewClaudeService(cfg *common.LLMConfig, logger arbor.ILogger) (*ClaudeService, error) {
	if cfg.ClaudeAPIKey == "" {
		return nil, apperr.Validation("claude provider requires an API key (BANKING_CLAUDE_API_KEY)")
	}

	model := cfg.ClaudeModel
	if model == "" {
		model = defaultClaudeModel
	}

	timeout, err := time.ParseDuration(cfg.GenerateTimeout)
	if err != nil {
		return nil, apperr.Validation("invalid generate timeout %q: %v", cfg.GenerateTimeout, err)
	}

	return &ClaudeService{
		client:  anthropic.NewClient(option.WithAPIKey(cfg.ClaudeAPIKey)),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

func (s *ClaudeService) ProviderName() string { return "claude" }

// IsAvailable is true once the client is configured; the first real call
// surfaces auth failures.
func (s *ClaudeService) IsAvailable(ctx context.Context) bool { return true }

func (s *ClaudeService) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := s.client.Messages.New(callCtx, params)
	if err != nil {
		return "", apperr.Wrap(err, apperr.KindExternalService, "claude API call failed")
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}
	if response.Len() == 0 {
		return "", apperr.ExternalService("claude returned no text content")
	}
	return response.String(), nil
}

var _ interfaces.LLMService = (*ClaudeService)(nil)
