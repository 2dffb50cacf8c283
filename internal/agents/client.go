package agents

// #region imports
import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// #endregion

// #region chat-completer

// ChatCompleter is the slice of the OpenAI-compatible API the agents use.
// Tests inject a fake; production wires *openai.Client.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// #endregion chat-completer

// #region models

// Models names the model backing each pipeline role. Mutation wants a
// creative model, judging and auditing want deterministic ones.
type Models struct {
	Mutator    string
	Judge      string
	Supervisor string
}

// DefaultModels returns the production model assignment.
func DefaultModels() Models {
	return Models{
		Mutator:    "gpt-4o",
		Judge:      "gpt-4o",
		Supervisor: "gpt-4o-mini",
	}
}

// #endregion models

// #region client

// Client wraps one OpenAI-compatible endpoint shared by all three agents.
type Client struct {
	api    ChatCompleter
	models Models
}

// NewClient dials an OpenAI-compatible endpoint. An empty baseURL keeps the
// upstream default; a self-hosted gateway goes in via baseURL.
func NewClient(apiKey, baseURL string, models Models) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return NewClientWithAPI(openai.NewClientWithConfig(cfg), models)
}

// NewClientWithAPI wires an injected API implementation, for tests.
func NewClientWithAPI(api ChatCompleter, models Models) *Client {
	def := DefaultModels()
	if models.Mutator == "" {
		models.Mutator = def.Mutator
	}
	if models.Judge == "" {
		models.Judge = def.Judge
	}
	if models.Supervisor == "" {
		models.Supervisor = def.Supervisor
	}
	return &Client{api: api, models: models}
}

func (c *Client) complete(ctx context.Context, model, system, user string, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion (%s): %w", model, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// #endregion client
