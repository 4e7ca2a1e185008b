package llm

import (
	"context"
	"errors"
	"fmt"

	phttp "SqueezeScan/pkg/http"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("llm: api key not configured")

// Message is one chat turn, role "system", "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
		Finish  string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Result is a completed chat call.
type Result struct {
	Content    string
	Model      string
	TokensUsed int
}

// Options configures the chat client.
type Options struct {
	Endpoint    string // base URL of an OpenAI-compatible API
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Client calls an OpenAI-compatible chat completion API.
type Client struct {
	http *phttp.Client
	opts Options
}

func New(httpClient *phttp.Client, opts Options) *Client {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2000
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 0.3
	}
	return &Client{http: httpClient, opts: opts}
}

// Configured reports whether the client can make calls.
func (c *Client) Configured() bool {
	return c.opts.APIKey != "" && c.opts.Endpoint != ""
}

// ChatCompletion sends messages and returns the first choice.
func (c *Client) ChatCompletion(ctx context.Context, messages []Message) (*Result, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	var resp chatResponse
	err := c.http.SendAndParse(ctx, &phttp.RequestOptions{
		Method: phttp.MethodPost,
		URL:    c.opts.Endpoint + "/chat/completions",
		Headers: map[string]string{
			"Authorization": "Bearer " + c.opts.APIKey,
			"Content-Type":  "application/json",
		},
		Body: chatRequest{
			Model:       c.opts.Model,
			Messages:    messages,
			Temperature: c.opts.Temperature,
			MaxTokens:   c.opts.MaxTokens,
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("chat completion: api error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion: empty choices")
	}

	model := resp.Model
	if model == "" {
		model = c.opts.Model
	}
	return &Result{
		Content:    resp.Choices[0].Message.Content,
		Model:      model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}
