package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"insight-backend/internal/llm"
	"insight-backend/internal/shared/telemetry"
	"insight-backend/internal/shared/util"
)

// Client implements llm.Client using OpenAI Chat Completions.
type Client struct {
	api   *openai.Client
	model string
	name  string
}

// NewClient constructs an OpenAI adapter.
func NewClient(apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("OPENAI_MODEL is required")
	}
	return &Client{api: openai.NewClient(apiKey), model: model, name: "openai"}, nil
}

// NewCompatibleClient constructs an adapter for an OpenAI-compatible endpoint
// (custom base URL), used for providers that speak the same wire protocol.
func NewCompatibleClient(name, apiKey, model, baseURL string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%s api key is required", name)
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%s model is required", name)
	}
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
	return &Client{api: openai.NewClientWithConfig(cfg), model: model, name: name}, nil
}

// Generate performs a one-shot chat completion.
func (c *Client) Generate(ctx context.Context, input llm.GenerateInput) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, c.request(input, false))
	if err != nil {
		return "", c.classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s response missing choices", llm.ErrBackendProtocol, c.name)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: %s response empty content", llm.ErrBackendProtocol, c.name)
	}
	c.logCall(input, resp.Usage.TotalTokens)
	return content, nil
}

// StreamGenerate opens a streaming chat completion.
func (c *Client) StreamGenerate(ctx context.Context, input llm.GenerateInput) (llm.Stream, error) {
	stream, err := c.api.CreateChatCompletionStream(ctx, c.request(input, true))
	if err != nil {
		return nil, c.classify(err)
	}
	c.logCall(input, 0)
	return &chatStream{inner: stream, name: c.name}, nil
}

func (c *Client) request(input llm.GenerateInput, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(input.SystemPrompt) != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: input.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: input.Prompt,
	})
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0,
		Stream:      stream,
	}
}

func (c *Client) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403 || apiErr.HTTPStatusCode == 429 {
			return fmt.Errorf("%w: %s http %d: %s", llm.ErrBackendUnavailable, c.name, apiErr.HTTPStatusCode, apiErr.Message)
		}
		return fmt.Errorf("%w: %s http %d: %s", llm.ErrBackendProtocol, c.name, apiErr.HTTPStatusCode, apiErr.Message)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", llm.ErrBackendUnavailable, c.name, err)
}

func (c *Client) logCall(input llm.GenerateInput, totalTokens int) {
	telemetry.Debug("llm.call", map[string]any{
		"backend":      c.name,
		"model":        c.model,
		"prompt_hash":  util.HashPrompt(input.SystemPrompt + "\n\n" + input.Prompt),
		"total_tokens": totalTokens,
	})
}

type chatStream struct {
	inner *openai.ChatCompletionStream
	name  string
}

func (s *chatStream) Recv() (string, error) {
	for {
		resp, err := s.inner.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", err
			}
			return "", fmt.Errorf("%w: %s stream: %v", llm.ErrBackendProtocol, s.name, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		return delta, nil
	}
}

func (s *chatStream) Close() error {
	return s.inner.Close()
}

var _ llm.Client = (*Client)(nil)
