package catalogsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Travel Catalog HTTP API client.
type Client struct {
	BaseURL  string
	BasePath string
	// BearerToken is an optional preview token; it reveals unpublished content.
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

type Category struct {
	ID            string   `json:"id"`
	DefaultLocale string   `json:"default_locale"`
	Locales       []string `json:"locales"`
}

type Card struct {
	Slug             string `json:"slug"`
	Title            string `json:"title"`
	Subtitle         string `json:"subtitle,omitempty"`
	Thumbnail        string `json:"thumbnail,omitempty"`
	ShortDescription string `json:"short_description,omitempty"`
	Category         string `json:"category,omitempty"`
	IsLive           *bool  `json:"is_live,omitempty"`
}

type Cards struct {
	Category        string `json:"category"`
	RequestedLocale string `json:"requested_locale"`
	Locale          string `json:"locale"`
	Fallback        bool   `json:"fallback"`
	Title           string `json:"title"`
	Intro           string `json:"intro,omitempty"`
	Total           int    `json:"total"`
	Cards           []Card `json:"cards"`
}

type Item struct {
	CategoryID      string                     `json:"category_id"`
	Slug            string                     `json:"slug"`
	Title           string                     `json:"title"`
	HeroImage       string                     `json:"hero_image,omitempty"`
	LongDescription string                     `json:"long_description,omitempty"`
	Tags            []string                   `json:"tags"`
	IsLive          bool                       `json:"is_live"`
	Attributes      map[string]json.RawMessage `json:"attributes,omitempty"`
}

type ItemResult struct {
	Category        string `json:"category"`
	RequestedLocale string `json:"requested_locale"`
	Locale          string `json:"locale"`
	Fallback        bool   `json:"fallback"`
	Item            Item   `json:"item"`
	HTML            string `json:"html,omitempty"`
}

type PrefetchItem struct {
	Slug     string `json:"slug"`
	Status   string `json:"status"`
	Locale   string `json:"locale,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CardsQuery narrows a listing. Zero values mean no filter.
type CardsQuery struct {
	Locale      string
	Query       string
	Subcategory string
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Categories lists registered categories.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var resp []Category
	err := c.do(ctx, http.MethodGet, c.apiPath("categories"), nil, &resp)
	return resp, err
}

// Cards returns a category listing.
func (c *Client) Cards(ctx context.Context, category string, q CardsQuery) (Cards, error) {
	params := url.Values{}
	if q.Locale != "" {
		params.Set("locale", q.Locale)
	}
	if q.Query != "" {
		params.Set("q", q.Query)
	}
	if q.Subcategory != "" {
		params.Set("subcategory", q.Subcategory)
	}
	var resp Cards
	err := c.do(ctx, http.MethodGet, withQuery(c.categoryPath(category, "cards"), params), nil, &resp)
	return resp, err
}

// Item fetches one detail record; html asks the server to render its long description.
func (c *Client) Item(ctx context.Context, category, slug, locale string, html bool) (ItemResult, error) {
	params := url.Values{}
	if locale != "" {
		params.Set("locale", locale)
	}
	if html {
		params.Set("format", "html")
	}
	endpoint := c.categoryPath(category, "items/"+url.PathEscape(slug))
	var resp ItemResult
	err := c.do(ctx, http.MethodGet, withQuery(endpoint, params), nil, &resp)
	return resp, err
}

// Prefetch resolves several slugs in one call.
func (c *Client) Prefetch(ctx context.Context, category, locale string, slugs []string) ([]PrefetchItem, error) {
	body := map[string]any{
		"locale": locale,
		"slugs":  slugs,
	}
	var resp struct {
		Items []PrefetchItem `json:"items"`
	}
	err := c.do(ctx, http.MethodPost, c.categoryPath(category, "prefetch"), body, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) categoryPath(category, p string) string {
	return c.apiPath(fmt.Sprintf("categories/%s/%s", url.PathEscape(category), strings.TrimLeft(p, "/")))
}

func (c *Client) apiPath(p string) string {
	prefix := strings.Trim(c.BasePath, "/")
	if prefix == "" {
		return p
	}
	return prefix + "/" + p
}

func withQuery(endpoint string, params url.Values) string {
	if len(params) == 0 {
		return endpoint
	}
	return endpoint + "?" + params.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
