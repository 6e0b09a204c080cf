package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	domai "github.com/bryanwahyu/photo-tagger/internal/domain/ai"
	"github.com/bryanwahyu/photo-tagger/internal/imageproc"
	"github.com/bryanwahyu/photo-tagger/internal/infra/ai/prompt"
	"github.com/bryanwahyu/photo-tagger/internal/retry"
)

const (
	defaultModel = "gpt-4o-mini"
	maxTokens    = 2048
)

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client is the vision classifier backed by an OpenAI vision model.
type Client struct {
	api    chatCompleter
	Model  string
	Retry  *retry.Config
	Logger *zap.Logger
}

var _ domai.VisionClassifier = (*Client)(nil)

// NewClient builds a classifier; baseURL may be empty.
func NewClient(apiKey, baseURL, model string, retryCfg *retry.Config, logger *zap.Logger) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{api: openai.NewClientWithConfig(cfg), Model: model, Retry: retryCfg, Logger: logger.Named("openai")}
}

// Analyze sends the image inline as a data URI and parses the JSON answer.
func (c *Client) Analyze(ctx context.Context, image []byte, features []domai.Feature) (*domai.VisionResult, error) {
	if len(image) == 0 {
		return nil, errors.New("empty image")
	}
	model := c.Model
	if model == "" {
		model = defaultModel
	}
	dataURI := "data:" + imageproc.MediaType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)

	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.VisionSystemPrompt(features)},
			{Role: openai.ChatMessageRoleUser, MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt.VisionUserPrompt()},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURI,
					Detail: openai.ImageURLDetailAuto,
				}},
			}},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(model) {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := retry.DoWithResult(ctx, c.Retry, func() (openai.ChatCompletionResponse, error) {
		return c.api.CreateChatCompletion(ctx, req)
	})
	if err != nil {
		return nil, mapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, domai.ErrEmptyResponse
	}
	c.Logger.Debug("vision completion",
		zap.String("model", model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return prompt.ParseVision(resp.Choices[0].Message.Content)
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// mapError turns HTTP 429 into ErrQuotaExceeded and wraps the rest.
func mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", domai.ErrQuotaExceeded, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", domai.ErrQuotaExceeded, reqErr.Err)
	}
	return fmt.Errorf("failed to create chat completion: %w", err)
}
