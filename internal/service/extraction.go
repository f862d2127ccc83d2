package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/m-mizutani/goerr/v2"

	"github.com/sherlock-kb/sherlock/internal/apperr"
	"github.com/sherlock-kb/sherlock/internal/domain"
	"github.com/sherlock-kb/sherlock/internal/prompts"
)

// Provider identifies the vision model backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

const anthropicVersion = "2023-06-01"

// ExtractionService calls a vision model to extract structured knowledge from
// an image.
type ExtractionService struct {
	client   *resty.Client
	provider Provider
	model    string
	apiKey   string
	baseURL  string
}

// ExtractionConfig holds configuration for the extraction service.
type ExtractionConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewExtractionService creates a new ExtractionService.
// Parameters:
//   - cfg: provider, model, and credential configuration.
//
// Returns:
//   - *ExtractionService: initialized extraction client.
//   - error: non-nil if the provider is unknown or the API key is missing.
func NewExtractionService(cfg *ExtractionConfig) (*ExtractionService, error) {
	provider := Provider(cfg.Provider)
	switch provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return nil, goerr.New("unknown vision provider",
			goerr.T(apperr.TagConfig), goerr.V("provider", cfg.Provider))
	}

	if cfg.APIKey == "" {
		return nil, goerr.New("vision API key is not configured",
			goerr.T(apperr.TagConfig), goerr.V("provider", cfg.Provider))
	}

	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(120 * time.Second)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		if provider == ProviderAnthropic {
			baseURL = "https://api.anthropic.com"
		} else {
			baseURL = "https://api.openai.com/v1"
		}
	}

	return &ExtractionService{
		client:   client,
		provider: provider,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		baseURL:  baseURL,
	}, nil
}

// GetModel returns the model name being used.
func (s *ExtractionService) GetModel() string {
	return s.model
}

// OpenAI-compatible Chat Completion API request/response structures
type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string for system, []interface{} for user with images
}

type openAITextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIImageContent struct {
	Type     string         `json:"type"`
	ImageURL openAIImageURL `json:"image_url"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Anthropic Messages API request/response structures
type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string        `json:"role"`
	Content []interface{} `json:"content"`
}

type anthropicTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicImageContent struct {
	Type   string               `json:"type"`
	Source anthropicImageSource `json:"source"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Extract sends the image to the vision model with the taxonomy-aware prompt
// and parses the response. Parse failures never surface as errors; they fall
// back to a degraded result that preserves the raw response text.
func (s *ExtractionService) Extract(ctx context.Context, imageData []byte, mimeType string, taxonomy *domain.TaxonomyConfig) (*domain.ExtractionResult, error) {
	prompt := prompts.BuildExtractionPrompt(taxonomy)

	var text string
	var err error
	if s.provider == ProviderAnthropic {
		text, err = s.callAnthropic(ctx, prompt, imageData, mimeType)
	} else {
		text, err = s.callOpenAI(ctx, prompt, imageData, mimeType)
	}
	if err != nil {
		return nil, err
	}

	result := ParseExtractionResponse(text)
	return result, nil
}

func (s *ExtractionService) callOpenAI(ctx context.Context, prompt string, imageData []byte, mimeType string) (string, error) {
	base64Image := base64.StdEncoding.EncodeToString(imageData)
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64Image)

	req := openAIRequest{
		Model: s.model,
		Messages: []openAIMessage{
			{
				Role: "user",
				Content: []interface{}{
					openAITextContent{
						Type: "text",
						Text: prompt,
					},
					openAIImageContent{
						Type: "image_url",
						ImageURL: openAIImageURL{
							URL:    dataURL,
							Detail: "high",
						},
					},
				},
			},
		},
		MaxTokens: 4096,
	}

	var resp openAIResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+s.apiKey).
		SetBody(req).
		SetResult(&resp).
		Post(s.baseURL + "/chat/completions")

	if err != nil {
		return "", goerr.Wrap(err, "failed to call vision API", goerr.T(apperr.TagTransient))
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		} else {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		return "", goerr.New("vision API returned error",
			classifyStatus(httpResp.StatusCode()), goerr.V("detail", errorMsg))
	}

	if resp.Error != nil {
		return "", goerr.New("vision API error",
			goerr.T(apperr.TagTransient), goerr.V("detail", resp.Error.Message))
	}

	if len(resp.Choices) == 0 {
		return "", goerr.New("no response from vision API",
			goerr.T(apperr.TagTransient), goerr.V("status", httpResp.StatusCode()))
	}

	return resp.Choices[0].Message.Content, nil
}

func (s *ExtractionService) callAnthropic(ctx context.Context, prompt string, imageData []byte, mimeType string) (string, error) {
	req := anthropicRequest{
		Model:     s.model,
		MaxTokens: 4096,
		Messages: []anthropicMessage{
			{
				Role: "user",
				Content: []interface{}{
					anthropicImageContent{
						Type: "image",
						Source: anthropicImageSource{
							Type:      "base64",
							MediaType: mimeType,
							Data:      base64.StdEncoding.EncodeToString(imageData),
						},
					},
					anthropicTextContent{
						Type: "text",
						Text: prompt,
					},
				},
			},
		},
	}

	var resp anthropicResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetHeader("x-api-key", s.apiKey).
		SetHeader("anthropic-version", anthropicVersion).
		SetBody(req).
		SetResult(&resp).
		Post(s.baseURL + "/v1/messages")

	if err != nil {
		return "", goerr.Wrap(err, "failed to call vision API", goerr.T(apperr.TagTransient))
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		} else {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		return "", goerr.New("vision API returned error",
			classifyStatus(httpResp.StatusCode()), goerr.V("detail", errorMsg))
	}

	if resp.Error != nil {
		return "", goerr.New("vision API error",
			goerr.T(apperr.TagTransient), goerr.V("detail", resp.Error.Message))
	}

	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", goerr.New("no text content in vision API response", goerr.T(apperr.TagTransient))
}

// classifyStatus maps an upstream HTTP status to an error tag option. Rate
// limits and server errors are retryable; auth failures are configuration
// problems.
func classifyStatus(status int) goerr.Option {
	switch {
	case status == http.StatusTooManyRequests:
		return goerr.T(apperr.TagTransient)
	case status >= 500:
		return goerr.T(apperr.TagTransient)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return goerr.T(apperr.TagConfig)
	default:
		return goerr.T(apperr.TagValidation)
	}
}
