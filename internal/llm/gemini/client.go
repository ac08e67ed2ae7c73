package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"insight-backend/internal/llm"
	"insight-backend/internal/shared/telemetry"
	"insight-backend/internal/shared/util"
)

// Client implements llm.Client using Google Gemini.
type Client struct {
	api   *genai.Client
	model string
}

// NewClient constructs a Gemini adapter.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}
	api, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("%w: gemini client init: %v", llm.ErrBackendUnavailable, err)
	}
	return &Client{api: api, model: model}, nil
}

// Close releases the underlying API client.
func (c *Client) Close() error {
	if c.api != nil {
		return c.api.Close()
	}
	return nil
}

// Generate performs a one-shot content generation.
func (c *Client) Generate(ctx context.Context, input llm.GenerateInput) (string, error) {
	model := c.generativeModel(input)
	resp, err := model.GenerateContent(ctx, genai.Text(input.Prompt))
	if err != nil {
		return "", classify(err)
	}
	text, err := textFromResponse(resp)
	if err != nil {
		return "", err
	}
	c.logCall(input)
	return text, nil
}

// StreamGenerate opens a streaming content generation. The returned stream's
// Close cancels the underlying call so abandonment does not leak the
// connection.
func (c *Client) StreamGenerate(ctx context.Context, input llm.GenerateInput) (llm.Stream, error) {
	model := c.generativeModel(input)
	streamCtx, cancel := context.WithCancel(ctx)
	iter := model.GenerateContentStream(streamCtx, genai.Text(input.Prompt))
	c.logCall(input)
	return &contentStream{iter: iter, cancel: cancel}, nil
}

func (c *Client) generativeModel(input llm.GenerateInput) *genai.GenerativeModel {
	model := c.api.GenerativeModel(c.model)
	model.SetTemperature(0)
	if strings.TrimSpace(input.SystemPrompt) != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(input.SystemPrompt)},
		}
	}
	return model
}

func (c *Client) logCall(input llm.GenerateInput) {
	telemetry.Debug("llm.call", map[string]any{
		"backend":     "gemini",
		"model":       c.model,
		"prompt_hash": util.HashPrompt(input.SystemPrompt + "\n\n" + input.Prompt),
	})
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: gemini: %v", llm.ErrBackendUnavailable, err)
}

func textFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: gemini response missing candidates", llm.ErrBackendProtocol)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: gemini response missing content", llm.ErrBackendProtocol)
	}
	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: gemini response has no text parts", llm.ErrBackendProtocol)
	}
	return strings.Join(parts, ""), nil
}

type contentStream struct {
	iter   *genai.GenerateContentResponseIterator
	cancel context.CancelFunc
}

func (s *contentStream) Recv() (string, error) {
	for {
		resp, err := s.iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				return "", io.EOF
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", err
			}
			return "", classify(err)
		}
		text, terr := textFromResponse(resp)
		if terr != nil {
			// Intermediate responses can carry empty candidates; skip them.
			continue
		}
		if text == "" {
			continue
		}
		return text, nil
	}
}

func (s *contentStream) Close() error {
	s.cancel()
	return nil
}

var _ llm.Client = (*Client)(nil)
