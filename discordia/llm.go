package discordia

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	// DefaultSystemPrompt is used when a handler doesn't supply its own.
	DefaultSystemPrompt = "You are a helpful Discord bot assistant."

	contextLengthExceededCode = "context_length_exceeded"
)

// LLMClient is the single capability Discordia needs from an LLM
// provider: given ordered conversation context and an optional system
// prompt, return response text.
type LLMClient interface {
	GenerateResponse(
		ctx context.Context,
		contextMessages []Message,
		systemPrompt string,
	) (string, error)
}

// ChatCompleter defines the methods used from the openai client, to
// enable testing/mocking.
type ChatCompleter interface {
	CreateChatCompletion(
		ctx context.Context,
		request openai.ChatCompletionRequest,
	) (openai.ChatCompletionResponse, error)
}

// LLM implements LLMClient over the OpenAI chat completions API.
//
// Calls are rate-limited and bounded by the configured request timeout -
// a hung provider call becomes a reported error rather than leaving the
// handler chain stuck.
type LLM struct {
	client         ChatCompleter
	config         *LLMConfig
	logger         *slog.Logger
	requestLimiter *rate.Limiter
}

func newLLM(config *LLMConfig, httpClient *http.Client) *LLM {
	clientCfg := openai.DefaultConfig(config.Token)
	if config.BaseURL != "" {
		clientCfg.BaseURL = config.BaseURL
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}

	l := &LLM{
		client: openai.NewClientWithConfig(clientCfg),
		config: config,
		requestLimiter: rate.NewLimiter(
			rate.Limit(config.MaxRequestsPerSecond),
			1,
		),
	}
	l.logger = slog.New(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "llm")
	return l
}

// GenerateResponse sends the ordered context to the provider and returns
// the generated text. Provider failures are mapped to the local error
// taxonomy: an oversized context becomes ContextTooLargeError, everything
// else LLMAPIError.
func (l *LLM) GenerateResponse(
	ctx context.Context,
	contextMessages []Message,
	systemPrompt string,
) (string, error) {
	if len(contextMessages) == 0 {
		l.logger.Warn("no context messages provided")
		return "There is no context to respond to.", nil
	}
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	if l.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.RequestTimeout)
		defer cancel()
	}

	if err := l.requestLimiter.Wait(ctx); err != nil {
		return "", LLMAPIError{Err: err}
	}

	messages := make(
		[]openai.ChatCompletionMessage,
		0,
		len(contextMessages)+1,
	)
	messages = append(
		messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		},
	)
	for _, m := range contextMessages {
		messages = append(
			messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: m.Content,
				Name:    m.AuthorID,
			},
		)
	}

	resp, err := l.client.CreateChatCompletion(
		ctx, openai.ChatCompletionRequest{
			Model:     l.config.Model,
			Messages:  messages,
			MaxTokens: l.config.MaxTokens,
		},
	)
	if err != nil {
		if isContextTooLarge(err) {
			return "", ContextTooLargeError{
				MessageCount: len(contextMessages),
				Err:          err,
			}
		}
		l.logger.Error("chat completion failed", tint.Err(err))
		return "", LLMAPIError{Err: err}
	}

	if len(resp.Choices) == 0 {
		return "", LLMAPIError{Err: errors.New("provider returned no choices")}
	}
	text := resp.Choices[0].Message.Content
	l.logger.Info(
		"generated response",
		"chars", len(text),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return text, nil
}

// isContextTooLarge distinguishes the provider's context-limit error from
// other API failures.
func isContextTooLarge(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && code == contextLengthExceededCode {
			return true
		}
		msg := strings.ToLower(apiErr.Message)
		return strings.Contains(msg, "context length") ||
			strings.Contains(msg, "maximum context")
	}
	return false
}
