package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/hazardfeed/pkg/auth"
	"github.com/cuemby/hazardfeed/pkg/types"
)

// DefaultTimeout bounds a single REST call
const DefaultTimeout = 10 * time.Second

// APIError is a non-2xx response. It unwraps to the matching error kind in
// pkg/types so callers can use errors.Is.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return types.ErrValidation
	case http.StatusUnauthorized:
		return types.ErrAuth
	case http.StatusForbidden:
		return types.ErrForbidden
	case http.StatusNotFound:
		return types.ErrNotFound
	case http.StatusBadGateway:
		return types.ErrSourceUnavailable
	default:
		return nil
	}
}

// File is an attachment on a new post. Data is sent inline; URL references
// a file that is already hosted elsewhere.
type File struct {
	Name string `json:"name"`
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// NewPost is the body of a post submission
type NewPost struct {
	Content     string             `json:"content"`
	Location    string             `json:"location,omitempty"`
	Coordinates *types.Coordinates `json:"coordinates,omitempty"`
	Files       []File             `json:"files,omitempty"`
}

// NewDisaster is the body of a disaster marker submission
type NewDisaster struct {
	Type        string  `json:"type"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Description string  `json:"desc,omitempty"`
}

// Client talks to the hazardfeed HTTP API
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// BaseURL returns the server address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken sets the bearer token sent with every request. An empty token
// makes requests anonymous.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// ListPosts returns every post, newest first
func (c *Client) ListPosts(ctx context.Context) ([]*types.Post, error) {
	var posts []*types.Post
	if err := c.do(ctx, http.MethodGet, "/api/posts", nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// GetPost returns one post
func (c *Client) GetPost(ctx context.Context, id string) (*types.Post, error) {
	var post types.Post
	if err := c.do(ctx, http.MethodGet, "/api/posts/"+url.PathEscape(id), nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// CreatePost submits a post and returns the stored record
func (c *Client) CreatePost(ctx context.Context, post NewPost) (*types.Post, error) {
	var created types.Post
	if err := c.do(ctx, http.MethodPost, "/api/posts", post, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeletePost removes a post. Requires an admin token.
func (c *Client) DeletePost(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/posts/"+url.PathEscape(id), nil, nil)
}

// ListZones returns the current zone snapshot
func (c *Client) ListZones(ctx context.Context) ([]types.Zone, error) {
	var zones []types.Zone
	if err := c.do(ctx, http.MethodGet, "/api/zones", nil, &zones); err != nil {
		return nil, err
	}
	return zones, nil
}

// RefreshZones triggers a zone refresh and returns the new collection.
// Requires an admin or ddmo token.
func (c *Client) RefreshZones(ctx context.Context) ([]types.Zone, error) {
	var zones []types.Zone
	if err := c.do(ctx, http.MethodPost, "/api/zones/refresh", nil, &zones); err != nil {
		return nil, err
	}
	return zones, nil
}

// ListDisasters returns the map markers in the order they were added
func (c *Client) ListDisasters(ctx context.Context) ([]*types.Disaster, error) {
	var disasters []*types.Disaster
	if err := c.do(ctx, http.MethodGet, "/api/disasters", nil, &disasters); err != nil {
		return nil, err
	}
	return disasters, nil
}

// AddDisaster places a marker. Requires an admin, ddmo or ngo token.
func (c *Client) AddDisaster(ctx context.Context, d NewDisaster) (*types.Disaster, error) {
	var created types.Disaster
	if err := c.do(ctx, http.MethodPost, "/api/disasters", d, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Bulletin returns the raw High Wave Alert lines
func (c *Client) Bulletin(ctx context.Context) (*types.Bulletin, error) {
	var b types.Bulletin
	if err := c.do(ctx, http.MethodGet, "/api/hwa", nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Register creates an account. The session has no token for official
// accounts awaiting approval.
func (c *Client) Register(ctx context.Context, req auth.RegisterRequest) (*auth.Session, error) {
	var session auth.Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Login exchanges credentials for a session. It does not change the
// client's token; see Session for that.
func (c *Client) Login(ctx context.Context, username, password string) (*auth.Session, error) {
	body := map[string]string{"username": username, "password": password}
	var session auth.Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Approve approves an official account. Requires an admin token.
func (c *Client) Approve(ctx context.Context, userID string) (*types.User, error) {
	var user types.User
	if err := c.do(ctx, http.MethodPatch, "/api/auth/approve/"+url.PathEscape(userID), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
