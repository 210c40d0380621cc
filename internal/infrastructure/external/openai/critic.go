package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// Backend names and their defaults
const (
	BackendOpenAI = "openai"
	BackendGrok   = "grok"

	GrokBaseURL      = "https://api.x.ai/v1"
	DefaultGrokModel = "grok-beta"
	DefaultModel     = openai.GPT4oMini
)

var (
	// ErrMissingAPIKey is returned when a model backend is configured without credentials
	ErrMissingAPIKey = errors.New("critique backend requires an API key")
	// ErrInvalidResponse is returned when the model reply cannot be read as a critique
	ErrInvalidResponse = errors.New("invalid critique response")
)

// Config selects the chat-completions endpoint used for critiques
type Config struct {
	Backend     string
	APIKey      string
	BaseURL     string
	Model       string
	PromptsPath string
	// Zero values keep the prompt file's settings
	Temperature float32
	MaxTokens   int
}

// Critic asks a chat model for a second opinion on an initial decision
type Critic struct {
	client  *openai.Client
	name    string
	model   string
	prompts *PromptConfig
	logger  *zap.Logger
}

var _ port.CritiqueBackend = (*Critic)(nil)

// NewCritic creates a model-backed critique backend. The grok backend talks
// to the xAI endpoint through the same OpenAI-compatible client.
func NewCritic(cfg Config, logger *zap.Logger) (*Critic, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	name := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if name == "" {
		name = BackendOpenAI
	}
	if name == BackendGrok {
		if cfg.BaseURL == "" {
			cfg.BaseURL = GrokBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = DefaultGrokModel
		}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	prompts, err := LoadPrompts(cfg.PromptsPath)
	if err != nil {
		return nil, err
	}
	if cfg.Temperature > 0 {
		prompts.Critique.Temperature = cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		prompts.Critique.MaxTokens = cfg.MaxTokens
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &Critic{
		client:  openai.NewClientWithConfig(clientCfg),
		name:    name,
		model:   cfg.Model,
		prompts: prompts,
		logger:  logger,
	}, nil
}

// Name returns the backend identifier recorded on each critique
func (c *Critic) Name() string {
	return c.name
}

type promptData struct {
	InvoiceNumber string
	Vendor        string
	Amount        float64
	Currency      string
	LineItems     []entity.LineItem
	Findings      []entity.Finding
	Approved      bool
	Reasons       []string
}

type critiqueResponse struct {
	Rationale      string   `json:"rationale"`
	Revised        bool     `json:"revised"`
	RevisedReasons []string `json:"revised_reasons"`
}

// Critique sends one chat completion and parses the reply. The caller owns
// the timeout and the fallback on error.
func (c *Critic) Critique(ctx context.Context, inv *entity.Invoice, initial entity.InitialDecision, findings []entity.Finding) (*entity.Critique, error) {
	if inv == nil {
		return nil, fmt.Errorf("%w: nil invoice", entity.ErrContractViolation)
	}

	data := promptData{
		InvoiceNumber: inv.InvoiceNumber,
		Vendor:        inv.Vendor,
		Amount:        inv.Amount,
		Currency:      inv.Currency,
		LineItems:     inv.LineItems,
		Findings:      findings,
		Approved:      initial.Approved,
		Reasons:       initial.Reasons,
	}
	if data.InvoiceNumber == "" {
		data.InvoiceNumber = "(no number)"
	}

	userPrompt, err := renderTemplate(c.prompts.Critique.UserTemplate, data)
	if err != nil {
		return nil, err
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.prompts.Critique.System},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: c.prompts.Critique.Temperature,
		MaxTokens:   c.prompts.Critique.MaxTokens,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("critique request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrInvalidResponse)
	}

	content := resp.Choices[0].Message.Content
	crit, err := parseCritique(content)
	if err != nil {
		c.logger.Warn("Unreadable critique reply",
			zap.String("backend", c.name),
			zap.String("model", c.model),
			zap.Error(err))
		return nil, err
	}
	crit.Backend = c.name

	c.logger.Debug("Critique received",
		zap.String("backend", c.name),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.Bool("revised", crit.Revised),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return crit, nil
}

// parseCritique reads the reply as JSON, falling back to the first object
// embedded in surrounding prose or code fences.
func parseCritique(content string) (*entity.Critique, error) {
	var out critiqueResponse
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		jsonStr := extractJSON(content)
		if jsonStr == "" {
			return nil, fmt.Errorf("%w: no JSON object in reply", ErrInvalidResponse)
		}
		if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}

	out.Rationale = strings.TrimSpace(out.Rationale)
	if out.Rationale == "" {
		return nil, fmt.Errorf("%w: empty rationale", ErrInvalidResponse)
	}

	var reasons []string
	for _, r := range out.RevisedReasons {
		if r = strings.TrimSpace(r); r != "" {
			reasons = append(reasons, r)
		}
	}

	return &entity.Critique{
		Rationale:      out.Rationale,
		Revised:        out.Revised,
		RevisedReasons: reasons,
	}, nil
}
