package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// ErrNoChoices is returned when the model answered without any completion.
var ErrNoChoices = errors.New("model returned no choices")

// Model sends a prompt and returns the raw response text.
type Model interface {
	Send(ctx context.Context, prompt string) (string, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, prompt string) (string, error)

func (f ModelFunc) Send(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Config selects the chat model and endpoint.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	System  string
	Logger  *slog.Logger
}

const defaultSystem = "You are a careful software engineer. Answer only with edit instructions in the requested format."

// OpenAI talks to an OpenAI compatible chat completion endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
	system string
	logger *slog.Logger
}

// NewOpenAI builds a client. BaseURL is optional.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	if cfg.Model == "" {
		return nil, errors.New("no model configured")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	system := cfg.System
	if system == "" {
		system = defaultSystem
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		system: system,
		logger: logger.With("component", "llm"),
	}, nil
}

func (o *OpenAI) Send(ctx context.Context, prompt string) (string, error) {
	o.logger.Debug("sending prompt", "model", o.model, "bytes", len(prompt))

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	o.logger.Debug("received response", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
