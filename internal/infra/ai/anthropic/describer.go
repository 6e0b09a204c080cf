package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	domai "github.com/bryanwahyu/photo-tagger/internal/domain/ai"
	"github.com/bryanwahyu/photo-tagger/internal/infra/ai/prompt"
	"github.com/bryanwahyu/photo-tagger/internal/retry"
)

const defaultModel = "claude-3-5-sonnet-20241022"

type messagesCreator interface {
	CreateMessages(ctx context.Context, req anthropic.MessagesRequest) (anthropic.MessagesResponse, error)
}

// Describer is the semantic describer backed by a Claude vision model.
type Describer struct {
	api    messagesCreator
	Model  string
	Retry  *retry.Config
	Logger *zap.Logger
}

var _ domai.SemanticDescriber = (*Describer)(nil)

func NewDescriber(apiKey, baseURL, model string, retryCfg *retry.Config, logger *zap.Logger) *Describer {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Describer{
		api:    anthropic.NewClient(apiKey, opts...),
		Model:  model,
		Retry:  retryCfg,
		Logger: logger.Named("anthropic"),
	}
}

// Describe sends the image with the gathered context and parses the JSON answer.
func (d *Describer) Describe(ctx context.Context, in domai.DescribeContext) (*domai.SemanticResult, error) {
	if in.ImageBase64 == "" {
		return nil, errors.New("empty image")
	}
	model := d.Model
	if model == "" {
		model = defaultModel
	}
	opts := in.Options
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = domai.DefaultDescribeOptions().MaxTokens
	}
	mediaType := in.MediaType
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	userPrompt := prompt.DescriberUserPrompt(in)
	temperature := opts.Temperature

	req := anthropic.MessagesRequest{
		Model:       anthropic.Model(model),
		System:      prompt.DescriberSystemPrompt(opts),
		MaxTokens:   opts.MaxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				anthropic.NewImageMessageContent(anthropic.NewMessageContentSource(
					anthropic.MessagesContentSourceTypeBase64, mediaType, in.ImageBase64,
				)),
				anthropic.NewTextMessageContent(userPrompt),
			}},
		},
	}

	resp, err := retry.DoWithResult(ctx, d.Retry, func() (anthropic.MessagesResponse, error) {
		return d.api.CreateMessages(ctx, req)
	})
	if err != nil {
		return nil, mapError(err)
	}

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return nil, domai.ErrEmptyResponse
	}
	result, err := prompt.ParseSemantic(text)
	if err != nil {
		return nil, err
	}
	result.Usage = domai.TokenUsage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	d.Logger.Debug("describer completion",
		zap.String("model", model),
		zap.Int("input_tokens", result.Usage.InputTokens),
		zap.Int("output_tokens", result.Usage.OutputTokens),
	)
	return result, nil
}

func responseText(resp anthropic.MessagesResponse) string {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			b.WriteString(*block.Text)
		}
	}
	return b.String()
}

func mapError(err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) && apiErr.IsRateLimitErr() {
		return fmt.Errorf("%w: %s", domai.ErrQuotaExceeded, apiErr.Message)
	}
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", domai.ErrQuotaExceeded, reqErr.Err)
	}
	return fmt.Errorf("failed to create message: %w", err)
}
