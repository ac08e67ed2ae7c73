// Package llm is the uniform gateway over interchangeable text-generation
// backends. Every backend is adapted to the same two operations; nothing
// above this layer branches on backend identity except to pick an adapter.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Client abstracts one generation backend.
type Client interface {
	// Generate returns the complete answer for a prompt in one shot.
	Generate(ctx context.Context, input GenerateInput) (string, error)
	// StreamGenerate returns a finite, non-restartable stream of text
	// increments. The caller must Close the stream, including on early
	// abandonment, so the underlying connection is released.
	StreamGenerate(ctx context.Context, input GenerateInput) (Stream, error)
}

// Stream yields text increments until io.EOF.
type Stream interface {
	// Recv returns the next text increment, or io.EOF when the backend
	// signals completion.
	Recv() (string, error)
	// Close releases the underlying connection. Safe to call more than once.
	Close() error
}

// GenerateInput captures the inputs for one generation call.
type GenerateInput struct {
	Prompt       string
	SystemPrompt string
}

// Sentinel errors; adapters wrap these with backend-specific detail.
var (
	// ErrBackendUnavailable covers transport and auth failures.
	ErrBackendUnavailable = errors.New("generation backend unavailable")
	// ErrBackendProtocol covers responses that cannot be decoded.
	ErrBackendProtocol = errors.New("generation backend protocol error")
)

// Backend identifies one adapter in the closed set.
type Backend string

const (
	BackendOpenAI   Backend = "openai"
	BackendGemini   Backend = "gemini"
	BackendDeepSeek Backend = "deepseek"
)

// ParseBackend normalizes and validates a backend identifier.
func ParseBackend(raw string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(raw))) {
	case BackendOpenAI:
		return BackendOpenAI, nil
	case BackendGemini:
		return BackendGemini, nil
	case BackendDeepSeek:
		return BackendDeepSeek, nil
	default:
		return "", fmt.Errorf("unknown backend %q", raw)
	}
}

// Registry holds the configured adapters, selected once per evaluation by
// backend identifier. Adapters are safe for concurrent use; the registry is
// populated at startup and read-only afterwards.
type Registry struct {
	clients map[Backend]Client
	models  map[Backend]string
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[Backend]Client),
		models:  make(map[Backend]string),
	}
}

// Register adds an adapter under the given identifier.
func (r *Registry) Register(backend Backend, model string, client Client) {
	r.clients[backend] = client
	r.models[backend] = model
}

// Get returns the adapter for a backend identifier.
func (r *Registry) Get(backend Backend) (Client, error) {
	client, ok := r.clients[backend]
	if !ok || client == nil {
		return nil, fmt.Errorf("backend %q not configured", backend)
	}
	return client, nil
}

// Model returns the configured model name for a backend, for telemetry.
func (r *Registry) Model(backend Backend) string {
	return r.models[backend]
}

// Backends lists the configured backend identifiers.
func (r *Registry) Backends() []Backend {
	out := make([]Backend, 0, len(r.clients))
	for b := range r.clients {
		out = append(out, b)
	}
	return out
}
