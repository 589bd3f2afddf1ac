package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"
)

// Config configures an EinoClient backed by OpenAI-compatible chat models.
type Config struct {
	APIKey  string
	BaseURL string
	Models  map[Tier]string
	// CallTimeout bounds each completion.
	CallTimeout time.Duration
	// RPS limits outbound completions across all tiers. Zero disables limiting.
	RPS    float64
	Burst  int
	Logger *slog.Logger
}

// EinoClient serves requests through eino chat models, one per tier.
type EinoClient struct {
	models  map[Tier]model.BaseChatModel
	names   map[Tier]string
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewEinoClient creates a chat model for every configured tier.
func NewEinoClient(ctx context.Context, cfg Config) (*EinoClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: OpenAI API key is required")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &EinoClient{
		models:  make(map[Tier]model.BaseChatModel, len(cfg.Models)),
		names:   make(map[Tier]string, len(cfg.Models)),
		timeout: cfg.CallTimeout,
		logger:  cfg.Logger,
	}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	for tier, name := range cfg.Models {
		if name == "" {
			continue
		}
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:   name,
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.CallTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("llm: create %s model %s: %w", tier, name, err)
		}
		c.models[tier] = cm
		c.names[tier] = name
	}
	return c, nil
}

// Generate runs a single-turn completion on the tier's model.
func (c *EinoClient) Generate(ctx context.Context, req Request) (string, error) {
	cm, ok := c.models[req.Tier]
	if !ok {
		return "", fmt.Errorf("%w: tier %s", ErrUnavailable, req.Tier)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("llm: wait for rate limiter: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]*schema.Message, 0, 2)
	if req.System != "" {
		messages = append(messages, schema.SystemMessage(req.System))
	}
	messages = append(messages, schema.UserMessage(req.Prompt))

	var opts []model.Option
	if req.Temperature != nil {
		opts = append(opts, model.WithTemperature(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}

	start := time.Now()
	resp, err := cm.Generate(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("llm: generate (%s/%s): %w", req.Tier, c.names[req.Tier], err)
	}
	c.logger.Debug("llm: completion",
		"tier", string(req.Tier),
		"model", c.names[req.Tier],
		"duration_ms", time.Since(start).Milliseconds(),
	)

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", fmt.Errorf("%w (%s/%s)", ErrEmptyResponse, req.Tier, c.names[req.Tier])
	}
	return content, nil
}
