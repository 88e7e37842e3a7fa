package huggingface

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/embeddings"
	lchf "github.com/tmc/langchaingo/embeddings/huggingface"
	"github.com/tmc/langchaingo/llms/huggingface"
	"go.uber.org/zap"
)

// DefaultModel is the sentence-transformers model used when none is configured.
const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

// Config configures the HuggingFace inference embedder.
type Config struct {
	Model    string
	TokenEnv string
	URL      string
	Logger   *zap.Logger
}

// Embedder adapts a langchaingo embedder to domain.Embedder.
type Embedder struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	logger    *zap.Logger
}

// New creates an embedder backed by the HuggingFace inference API.
func New(cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.TokenEnv == "" {
		cfg.TokenEnv = "HUGGINGFACEHUB_API_TOKEN"
	}
	token := os.Getenv(cfg.TokenEnv)
	if token == "" {
		return nil, fmt.Errorf("missing API token in env %s", cfg.TokenEnv)
	}
	opts := []huggingface.Option{huggingface.WithToken(token), huggingface.WithModel(cfg.Model)}
	if cfg.URL != "" {
		opts = append(opts, huggingface.WithURL(cfg.URL))
	}
	llm, err := huggingface.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("huggingface client: %w", err)
	}
	emb, err := lchf.NewHuggingface(
		lchf.WithClient(*llm),
		lchf.WithModel(cfg.Model),
		lchf.WithStripNewLines(true),
	)
	if err != nil {
		return nil, fmt.Errorf("huggingface embedder: %w", err)
	}
	return Wrap(emb, cfg.Model, cfg.Logger), nil
}

// Wrap adapts any langchaingo embedder.
func Wrap(emb embeddings.Embedder, model string, logger *zap.Logger) *Embedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{embedder: emb, model: model, logger: logger}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "huggingface:" + e.model }

// Prepare is a no-op; the model is pre-trained.
func (e *Embedder) Prepare(context.Context, []string) error { return nil }

// Dimension returns the dimensionality observed on the first embed.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed returns an embedding vector for the given text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	e.logger.Debug("generating embedding", zap.Int("length", len(text)))
	vecs, err := e.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		e.logger.Error("failed to generate embedding", zap.Error(err))
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, errors.New("no embedding returned")
	}
	out := make([]float64, len(vecs[0]))
	for i, x := range vecs[0] {
		out[i] = float64(x)
	}
	if e.dimension == 0 {
		e.dimension = len(out)
	}
	return out, nil
}
