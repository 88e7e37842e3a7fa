package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	client    *goopenai.Client
	model     goopenai.EmbeddingModel
	timeout   time.Duration
	dimension int
	logger    *zap.Logger
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	Logger    *zap.Logger
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	clientCfg := goopenai.DefaultConfig(key)
	clientCfg.BaseURL = cfg.BaseURL
	return &Client{
		client:  goopenai.NewClientWithConfig(clientCfg),
		model:   goopenai.EmbeddingModel(cfg.Model),
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + string(c.model) }

// Prepare is not required for remote embedding; the dimension is set on first embed.
func (c *Client) Prepare(context.Context, []string) error { return nil }

// Dimension returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input:          []string{text},
		Model:          c.model,
		EncodingFormat: goopenai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		c.logger.Error("openai embeddings failed", zap.String("model", string(c.model)), zap.Error(err))
		return nil, parseAPIError(err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("no embedding returned")
	}
	v := toFloat64(resp.Data[0].Embedding)
	if c.dimension == 0 {
		c.dimension = len(v)
	}
	return v, nil
}

func parseAPIError(err error) error {
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("openai embeddings failed: status %d: %w", reqErr.HTTPStatusCode, err)
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openai embeddings failed: status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	return fmt.Errorf("openai embeddings failed: %w", err)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
