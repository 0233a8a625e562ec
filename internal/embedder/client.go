// Package embedder adapts an OpenAI-compatible embeddings endpoint to the
// pipeline's Embedder collaborator interface.
package embedder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/kestrel-labs/codeindex/pkg/pipeline"
)

// DefaultModel matches the dimensionality most self-hosted and OpenAI-
// compatible embedding endpoints default to.
const DefaultModel = openai.SmallEmbedding3

// Config parameterizes New.
type Config struct {
	APIKey  string
	BaseURL string // optional: point at a self-hosted OpenAI-compatible endpoint.
	Model   openai.EmbeddingModel
	Logger  *slog.Logger
}

// Client computes embeddings through an OpenAI-compatible API. It satisfies
// pipeline.Embedder.
type Client struct {
	api    *openai.Client
	model  openai.EmbeddingModel
	logger *slog.Logger
}

var _ pipeline.Embedder = (*Client)(nil)

// New constructs a Client. An empty cfg.Model defaults to DefaultModel.
func New(cfg Config) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{api: openai.NewClientWithConfig(apiCfg), model: model, logger: logger}
}

// Embed implements pipeline.Embedder. The batch is submitted as a single
// request; a failure is reported for the whole batch, never per element.
func (c *Client) Embed(ctx context.Context, units []pipeline.EmbedUnit) ([]pipeline.Vector, error) {
	if len(units) == 0 {
		return nil, nil
	}

	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Text
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embed %d units: %w", len(units), err)
	}

	if len(resp.Data) != len(units) {
		return nil, fmt.Errorf("embed: expected %d vectors, got %d", len(units), len(resp.Data))
	}

	vectors := make([]pipeline.Vector, len(resp.Data))
	for _, d := range resp.Data {
		vectors[d.Index] = pipeline.Vector(d.Embedding)
	}

	c.logger.Debug("embedded batch", "count", len(units), "model", c.model)

	return vectors, nil
}
