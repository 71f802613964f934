package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("portal unavailable")
)

// APIError is a non-2xx envelope returned by the portal.
type APIError struct {
	Status  int
	Message string
	Detail  json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portal: status=%d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Client talks to the portal REST API. Token, when set, is sent as a bearer
// credential on every call.
type Client struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func New(baseURL string) *Client {
	if u, err := url.Parse(baseURL); err == nil && u.Scheme != "" && u.Host != "" {
		baseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.Token = token
	return &cp
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Error, Detail: env.Detail}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	IsAdmin     bool   `json:"isAdmin"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	var res LoginResult
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &res)
	return res, err
}

func (c *Client) VerifyToken(ctx context.Context) (User, error) {
	var res struct {
		User User `json:"user"`
	}
	err := c.do(ctx, http.MethodGet, "/auth/verify-token", nil, &res)
	return res.User, err
}

type KnowledgeBase struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	IconURL         *string   `json:"iconUrl"`
	EmbedCode       string    `json:"embedCode"`
	ExternalKbRef   string    `json:"externalKbRef"`
	ExternalFlowRef string    `json:"externalFlowRef"`
	CreatedBy       string    `json:"createdBy"`
	IsActive        bool      `json:"isActive"`
	ViewCount       int64     `json:"viewCount"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type ListResult struct {
	Entries    []KnowledgeBase `json:"entries"`
	Pagination Pagination      `json:"pagination"`
}

type ListParams struct {
	Search          string
	Page            int
	Limit           int
	IncludeInactive bool
}

func (p ListParams) encode() string {
	q := url.Values{}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.IncludeInactive {
		q.Set("includeInactive", "true")
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (c *Client) List(ctx context.Context, p ListParams) (ListResult, error) {
	var res ListResult
	err := c.do(ctx, http.MethodGet, "/knowledge-bases"+p.encode(), nil, &res)
	return res, err
}

func (c *Client) Get(ctx context.Context, id string) (KnowledgeBase, error) {
	var kb KnowledgeBase
	err := c.do(ctx, http.MethodGet, "/knowledge-bases/"+url.PathEscape(id), nil, &kb)
	return kb, err
}

// Input is the body of create and full update. Nil pointers are omitted.
type Input struct {
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	IconURL         *string `json:"iconUrl,omitempty"`
	EmbedCode       string  `json:"embedCode"`
	ExternalKbRef   string  `json:"externalKbRef,omitempty"`
	ExternalFlowRef string  `json:"externalFlowRef,omitempty"`
	IsActive        *bool   `json:"isActive,omitempty"`
}

func (c *Client) Create(ctx context.Context, in Input) (KnowledgeBase, error) {
	var kb KnowledgeBase
	err := c.do(ctx, http.MethodPost, "/knowledge-bases/create", in, &kb)
	return kb, err
}

func (c *Client) Update(ctx context.Context, id string, in Input) (KnowledgeBase, error) {
	var kb KnowledgeBase
	err := c.do(ctx, http.MethodPut, "/knowledge-bases/"+url.PathEscape(id), in, &kb)
	return kb, err
}

// Patch sends only the given fields, e.g. {"isActive": false}.
func (c *Client) Patch(ctx context.Context, id string, fields map[string]any) (KnowledgeBase, error) {
	var kb KnowledgeBase
	err := c.do(ctx, http.MethodPatch, "/knowledge-bases/"+url.PathEscape(id), fields, &kb)
	return kb, err
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/knowledge-bases/"+url.PathEscape(id), nil, nil)
}

func (c *Client) RecordView(ctx context.Context, id string) (int64, error) {
	var res struct {
		ViewCount int64 `json:"viewCount"`
	}
	err := c.do(ctx, http.MethodPost, "/knowledge-bases/"+url.PathEscape(id)+"/view", nil, &res)
	return res.ViewCount, err
}

func (c *Client) Batch(ctx context.Context, action string, ids []string) (int64, error) {
	var res struct {
		AffectedCount int64 `json:"affectedCount"`
	}
	err := c.do(ctx, http.MethodPost, "/knowledge-bases/batch", map[string]any{
		"action": action,
		"ids":    ids,
	}, &res)
	return res.AffectedCount, err
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
