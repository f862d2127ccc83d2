package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/m-mizutani/goerr/v2"

	"github.com/sherlock-kb/sherlock/internal/apperr"
	"github.com/sherlock-kb/sherlock/internal/logger"
)

const embedBatchSize = 64

// EmbeddingService generates text embeddings via an OpenAI-compatible API.
type EmbeddingService struct {
	client     *resty.Client
	model      string
	apiKey     string
	endpoint   string
	dimensions int
}

// EmbeddingServiceConfig holds configuration for the embedding service.
type EmbeddingServiceConfig struct {
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
}

// NewEmbeddingService creates a new EmbeddingService.
// Parameters:
//   - cfg: model, credential, and dimension configuration.
//
// Returns:
//   - *EmbeddingService: initialized embedding client.
//   - error: non-nil if the API key is missing.
func NewEmbeddingService(cfg *EmbeddingServiceConfig) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, goerr.New("embedding API key is not configured", goerr.T(apperr.TagConfig))
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(60 * time.Second)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &EmbeddingService{
		client:     client,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		endpoint:   baseURL + "/embeddings",
		dimensions: cfg.Dimensions,
	}, nil
}

// Dimensions returns the configured vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Embed generates an embedding for a single text. Empty or whitespace-only
// text is a validation error.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, goerr.New("cannot embed empty text", goerr.T(apperr.TagValidation))
	}

	vectors, err := s.call(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, goerr.New("no embedding in response", goerr.T(apperr.TagTransient))
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts, preserving input order.
// When a whole batch call fails, its items are retried one at a time so a
// single bad input cannot sink the rest; failed positions come back nil.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk := texts[start:end]

		vectors, err := s.call(ctx, chunk)
		if err == nil && len(vectors) == len(chunk) {
			copy(results[start:end], vectors)
			continue
		}

		logger.CtxWarn(ctx, "batch embedding failed, falling back to per-item calls: %v", err)
		for i, text := range chunk {
			vec, itemErr := s.Embed(ctx, text)
			if itemErr != nil {
				logger.CtxWarn(ctx, "embedding item %d failed: %v", start+i, itemErr)
				continue
			}
			results[start+i] = vec
		}
	}

	return results, nil
}

func (s *EmbeddingService) call(ctx context.Context, input []string) ([][]float32, error) {
	req := embeddingRequest{
		Model:      s.model,
		Input:      input,
		Dimensions: s.dimensions,
	}

	var resp embeddingResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.endpoint)

	if err != nil {
		return nil, goerr.Wrap(err, "failed to call embedding API", goerr.T(apperr.TagTransient))
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		} else {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		return nil, goerr.New("embedding API returned error",
			classifyStatus(httpResp.StatusCode()), goerr.V("detail", errorMsg))
	}

	if resp.Error != nil {
		return nil, goerr.New("embedding API error",
			goerr.T(apperr.TagTransient), goerr.V("detail", resp.Error.Message))
	}

	// The API does not guarantee response order; sort by index
	sort.Slice(resp.Data, func(i, j int) bool {
		return resp.Data[i].Index < resp.Data[j].Index
	})

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
