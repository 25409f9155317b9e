package anthropic

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/qntx-caption/ai/openrouter"
	"github.com/teranos/qntx-caption/caption"
	"github.com/teranos/qntx-caption/errors"
	"github.com/teranos/qntx-caption/internal/httpclient"
	"github.com/teranos/qntx-caption/logger"
)

const (
	// DefaultModel is the default Claude model
	DefaultModel = "claude-sonnet-4-20250514"

	// BaseURL is the Anthropic API endpoint
	BaseURL = "https://api.anthropic.com/v1"

	// APIVersion is the required Anthropic API version header
	APIVersion = "2023-06-01"

	maxRetries = 3
)

// Client captions images through the Anthropic Messages API.
type Client struct {
	baseURL    string
	httpClient *httpclient.Client
	config     Config
	retryDelay time.Duration
	logger     *zap.SugaredLogger
}

// Config holds Anthropic client configuration
type Config struct {
	APIKey      string
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Logger      *zap.SugaredLogger
}

// NewClient creates a new Anthropic API client
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Prompt == "" {
		config.Prompt = openrouter.DefaultPrompt
	}
	if config.Temperature == 0 {
		config.Temperature = 0.2
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 300
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	log := config.Logger
	if log == nil {
		log = logger.ComponentLogger("anthropic")
	}

	return &Client{
		baseURL:    BaseURL,
		httpClient: httpclient.New(config.Timeout, httpclient.Options{}),
		config:     config,
		retryDelay: time.Second,
		logger:     log,
	}
}

// MessagesRequest represents a request to the Anthropic Messages API
type MessagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Message represents a message in the conversation
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a text or image block
type ContentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource points Claude at an image. Only URL sources are sent.
type ImageSource struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// MessagesResponse represents the response from the Messages API
type MessagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// Usage represents token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Text joins the text blocks of the response.
func (r *MessagesResponse) Text() string {
	var b strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// GenerateCaption implements caption.Requester.
func (c *Client) GenerateCaption(ctx context.Context, req caption.Request) (string, error) {
	if !c.IsConfigured() {
		return "", errors.Wrap(errors.ErrNotConfigured, "Anthropic API key not configured")
	}

	log := c.logger.With(logger.FieldRequestID, req.ID, "model", c.config.Model)
	msgReq := MessagesRequest{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Messages: []Message{{
			Role: "user",
			Content: []ContentBlock{
				{Type: "image", Source: &ImageSource{Type: "url", URL: req.Target.URL}},
				{Type: "text", Text: c.config.Prompt},
			},
		}},
	}

	var resp *MessagesResponse
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * c.retryDelay):
			case <-ctx.Done():
				return "", errors.Wrap(ctx.Err(), "caption request cancelled")
			}
		}

		resp, err = c.createMessages(ctx, msgReq)
		if err == nil {
			break
		}
		log.Warnw("Anthropic API error", "attempt", attempt+1, logger.FieldError, err.Error())
		if !openrouter.IsRetryableError(err) {
			return "", errors.Wrap(err, "Anthropic API error")
		}
	}
	if err != nil {
		return "", errors.Wrapf(err, "Anthropic API error after %d attempts", maxRetries)
	}

	text := strings.TrimSpace(resp.Text())
	log.Debugw("Anthropic response",
		logger.FieldTextLength, len(text),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"estimated_cost_usd", CalculateCost(c.config.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens))
	return text, nil
}

func (c *Client) createMessages(ctx context.Context, req MessagesRequest) (*MessagesResponse, error) {
	header := http.Header{}
	header.Set("x-api-key", c.config.APIKey)
	header.Set("anthropic-version", APIVersion)

	var resp MessagesResponse
	if err := c.httpClient.PostJSON(ctx, c.baseURL+"/messages", header, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IsConfigured returns true if the client has an API key
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// SetHTTPClient points the client at a test server.
// Only use this in tests; it disables private address blocking.
func (c *Client) SetHTTPClient(client *http.Client, baseURL string) {
	c.httpClient = httpclient.Wrap(client)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
}
