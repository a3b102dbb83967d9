// Package telegraph is the archive-host client: it rehosts normalized
// announcement bodies as permanent pages.
package telegraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/redive-tools/newswatch/pkg/config"
)

// DefaultBaseURL is the public Telegraph API endpoint.
const DefaultBaseURL = "https://api.telegra.ph"

// Client provides HTTP access to the archive host.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cfg        config.TelegraphConfig
}

// NewClient creates an archive-host client using the shared HTTP client.
func NewClient(httpClient *http.Client, cfg config.TelegraphConfig) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    DefaultBaseURL,
		cfg:        cfg,
	}
}

// WithBaseURL points the client at a different API host. For tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

type createPageRequest struct {
	AccessToken   string `json:"access_token"`
	Title         string `json:"title"`
	Content       []Node `json:"content"`
	AuthorName    string `json:"author_name,omitempty"`
	AuthorURL     string `json:"author_url,omitempty"`
	ReturnContent bool   `json:"return_content"`
}

type apiResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Result struct {
		URL  string `json:"url"`
		Path string `json:"path"`
	} `json:"result"`
}

// CreatePage uploads a page and returns its permanent URL.
func (c *Client) CreatePage(ctx context.Context, title string, content []Node) (string, error) {
	payload, err := json.Marshal(createPageRequest{
		AccessToken: c.cfg.AccessToken,
		Title:       title,
		Content:     content,
		AuthorName:  c.cfg.AuthorName,
		AuthorURL:   c.cfg.AuthorURL,
	})
	if err != nil {
		return "", fmt.Errorf("marshal page: %w", err)
	}

	url := c.baseURL + "/createPage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("archive host returned HTTP %d", resp.StatusCode)
	}

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if !api.OK {
		return "", fmt.Errorf("archive host rejected page: %s", api.Error)
	}
	return api.Result.URL, nil
}
