// Package hub requests captions from the content hub's GraphQL API, which
// generates them server-side for an organization.
package hub

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/qntx-caption/caption"
	"github.com/teranos/qntx-caption/errors"
	"github.com/teranos/qntx-caption/internal/httpclient"
	"github.com/teranos/qntx-caption/logger"
)

// DefaultEndpoint is the hub GraphQL endpoint
const DefaultEndpoint = "https://api.amplience.net/graphql"

// Query asks the organization node for a caption of one image.
const Query = `
  query generateCaptionForImage($orgId: ID!, $imageUrl: String!) {
    node(id: $orgId) {
      id
      ... on Organization {
        id
        generateCaptionForImage(imageUrl: $imageUrl) {
          caption
        }
      }
    }
  }`

// Config holds hub client configuration
type Config struct {
	Endpoint       string
	OrganizationID string
	Token          string
	Timeout        time.Duration
	Logger         *zap.SugaredLogger
}

// Client is a caption.Requester backed by the hub GraphQL API.
type Client struct {
	endpoint   string
	httpClient *httpclient.Client
	config     Config
	logger     *zap.SugaredLogger
}

// NewClient creates a hub client.
func NewClient(config Config) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	log := config.Logger
	if log == nil {
		log = logger.ComponentLogger("hub")
	}
	return &Client{
		endpoint:   config.Endpoint,
		httpClient: httpclient.New(config.Timeout, httpclient.Options{}),
		config:     config,
		logger:     log,
	}
}

// OrgNodeID encodes an organization id as its GraphQL node id.
func OrgNodeID(organizationID string) string {
	return base64.StdEncoding.EncodeToString([]byte("Organization:" + organizationID))
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data struct {
		Node *struct {
			ID                      string `json:"id"`
			GenerateCaptionForImage *struct {
				Caption string `json:"caption"`
			} `json:"generateCaptionForImage"`
		} `json:"node"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// GenerateCaption implements caption.Requester. A response without a
// caption yields "" and no error.
func (c *Client) GenerateCaption(ctx context.Context, req caption.Request) (string, error) {
	if !c.IsConfigured() {
		return "", errors.WithHint(
			errors.Wrap(errors.ErrNotConfigured, "hub organization id not configured"),
			"set hub.organization_id or CAPTION_HUB_ORGANIZATION_ID")
	}

	header := http.Header{}
	if c.config.Token != "" {
		header.Set("Authorization", "Bearer "+c.config.Token)
	}

	body := graphQLRequest{
		Query: Query,
		Variables: map[string]any{
			"orgId":    OrgNodeID(c.config.OrganizationID),
			"imageUrl": req.Target.URL,
		},
	}

	start := time.Now()
	var resp graphQLResponse
	if err := c.httpClient.PostJSON(ctx, c.endpoint, header, body, &resp); err != nil {
		return "", errors.Wrap(err, "generateCaptionForImage")
	}

	if len(resp.Errors) > 0 {
		msgs := make([]string, len(resp.Errors))
		for i, e := range resp.Errors {
			msgs[i] = e.Message
		}
		return "", errors.Newf("generateCaptionForImage: %s", strings.Join(msgs, "; "))
	}

	var text string
	if n := resp.Data.Node; n != nil && n.GenerateCaptionForImage != nil {
		text = n.GenerateCaptionForImage.Caption
	}

	c.logger.Debugw("Hub caption response",
		logger.FieldRequestID, req.ID,
		logger.FieldTextLength, len(text),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return text, nil
}

// IsConfigured reports whether an organization id is set.
func (c *Client) IsConfigured() bool {
	return c.config.OrganizationID != ""
}

// SetHTTPClient points the client at a test server.
// Only use this in tests; it disables private address blocking.
func (c *Client) SetHTTPClient(client *http.Client, endpoint string) {
	c.httpClient = httpclient.Wrap(client)
	c.endpoint = endpoint
}
