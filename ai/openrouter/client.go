package openrouter

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/qntx-caption/caption"
	"github.com/teranos/qntx-caption/errors"
	"github.com/teranos/qntx-caption/internal/httpclient"
	"github.com/teranos/qntx-caption/internal/util"
	"github.com/teranos/qntx-caption/logger"
)

const (
	// DefaultModel is the fallback model when none is specified.
	// Should match the default in am/defaults.go
	DefaultModel = "openai/gpt-4o-mini"

	// DefaultBaseURL is the OpenRouter API root
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultPrompt asks for alt text and nothing else
	DefaultPrompt = "Write a concise, literal alt-text caption for this image in one sentence. Reply with the caption only."

	maxRetries = 3
)

// Client is a vision chat client for OpenRouter and any OpenAI-compatible
// endpoint (Ollama, LM Studio, vLLM) reachable at BaseURL.
type Client struct {
	baseURL    string
	httpClient *httpclient.Client
	config     Config
	retryDelay time.Duration
	logger     *zap.SugaredLogger
}

// Config holds client configuration
type Config struct {
	APIKey string
	// BaseURL defaults to DefaultBaseURL
	BaseURL     string
	Model       string
	Prompt      string
	Temperature *float64 // nil = use default (0.2)
	MaxTokens   *int     // nil = use default (300)
	Timeout     time.Duration
	// Local marks a self-hosted endpoint: no API key needed and private
	// addresses are reachable
	Local  bool
	Title  string             // X-Title header for the OpenRouter dashboard
	Logger *zap.SugaredLogger // nil = component logger
}

// NewClient creates a client with caption-oriented defaults.
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	if config.Temperature == nil {
		config.Temperature = util.Ptr(0.2)
	}
	if config.MaxTokens == nil {
		config.MaxTokens = util.Ptr(300)
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	if config.Title == "" {
		config.Title = "qntx-caption"
	}

	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	log := config.Logger
	if log == nil {
		log = logger.ComponentLogger("openrouter")
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpclient.New(config.Timeout, httpclient.Options{AllowPrivate: config.Local}),
		config:     config,
		retryDelay: time.Second,
		logger:     log,
	}
}

// ChatCompletionRequest represents a request to the chat completions endpoint
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ContentPart is one part of a multimodal message content array.
type ContentPart struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	ImageURL *ContentPartImage `json:"image_url,omitempty"`
}

// ContentPartImage references an image by URL (https or data URI).
type ContentPartImage struct {
	URL string `json:"url"`
}

// Message is a chat message. Content is raw so it can be either a plain
// string or a []ContentPart array.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// NewTextMessage creates a Message with plain text content.
func NewTextMessage(role, text string) Message {
	raw, _ := json.Marshal(text)
	return Message{Role: role, Content: raw}
}

// NewImageMessage creates a Message asking about the image at imageURL.
func NewImageMessage(role, text, imageURL string) Message {
	raw, _ := json.Marshal([]ContentPart{
		{Type: "text", Text: text},
		{Type: "image_url", ImageURL: &ContentPartImage{URL: imageURL}},
	})
	return Message{Role: role, Content: raw}
}

// TextContent extracts the plain text from Content.
func (m Message) TextContent() string {
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	// some compatible servers answer with a parts array
	var parts []ContentPart
	if err := json.Unmarshal(m.Content, &parts); err == nil {
		var b strings.Builder
		for _, p := range parts {
			if p.Type == "text" {
				b.WriteString(p.Text)
			}
		}
		return b.String()
	}
	return string(m.Content)
}

// ChatCompletionResponse represents the response from chat completions
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice represents a completion choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CreateChatCompletion sends one chat completion request
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	header := http.Header{}
	if c.config.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	header.Set("X-Title", c.config.Title)

	var resp ChatCompletionResponse
	if err := c.httpClient.PostJSON(ctx, c.baseURL+"/chat/completions", header, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateCaption implements caption.Requester. Transient failures are
// retried up to three times with a linearly growing delay.
func (c *Client) GenerateCaption(ctx context.Context, req caption.Request) (string, error) {
	if !c.IsConfigured() {
		return "", errors.Wrap(errors.ErrNotConfigured, "OpenRouter API key not configured")
	}

	log := c.logger.With(logger.FieldRequestID, req.ID, "model", c.config.Model)
	chatReq := ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    []Message{NewImageMessage("user", c.config.Prompt, req.Target.URL)},
		Temperature: *c.config.Temperature,
		MaxTokens:   *c.config.MaxTokens,
	}

	log.Debugw("Caption chat request", logger.FieldURL, req.Target.URL)

	var resp *ChatCompletionResponse
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * c.retryDelay
			log.Debugw("Retrying caption request", "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", errors.Wrap(ctx.Err(), "caption request cancelled")
			}
		}

		resp, err = c.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			if attempt > 0 {
				log.Infow("Request succeeded after retries", "attempts", attempt+1)
			}
			break
		}

		log.Warnw("Caption API error",
			"attempt", attempt+1,
			logger.FieldError, err.Error(),
			logger.FieldURL, c.baseURL+"/chat/completions")

		if !IsRetryableError(err) {
			return "", errors.Wrap(err, "caption API error")
		}
	}
	if err != nil {
		return "", errors.Wrapf(err, "caption API error after %d attempts", maxRetries)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no response choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.TextContent())

	log.Debugw("Caption response",
		logger.FieldTextLength, len(text),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"estimated_cost_usd", CalculateCost(c.config.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens))

	return text, nil
}

// IsRetryableError reports whether err is a transient network failure or a
// 429/5xx response.
func IsRetryableError(err error) bool {
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT:
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection reset by peer",
		"connection refused",
		"temporary failure",
		"network is unreachable",
		"i/o timeout",
	} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

// IsConfigured returns true if the client can make requests
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != "" || c.config.Local
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.config.Model
}

// SetHTTPClient allows overriding the HTTP client for testing.
// Only use this in tests; it disables private address blocking.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.Wrap(client)
}
