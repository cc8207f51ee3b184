// Package authapi is the HTTP client for the remote auth service. Every call
// returns a normalized Result and never an error.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// TokenHeader carries the bearer token on authenticated calls.
const TokenHeader = "X-Api-Auth-Token"

const maxResponseBytes = 1 << 20

type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client rooted at baseURL, e.g. http://localhost:5000/api.
// A nil httpClient means http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse auth api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("auth api url must be http or https, got %q", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient}, nil
}

func (c *Client) Ping(ctx context.Context) Result[Empty] {
	return call[Empty](ctx, c, http.MethodGet, "", "", nil)
}

func (c *Client) Login(ctx context.Context, username, password string) Result[LoginDetails] {
	body := map[string]string{"username": username, "password": password}
	return call[LoginDetails](ctx, c, http.MethodPost, "/auth/ldap/login", "", body)
}

func (c *Client) Check(ctx context.Context, token string) Result[CheckDetails] {
	return call[CheckDetails](ctx, c, http.MethodPost, "/auth/check", token, nil)
}

func (c *Client) Logout(ctx context.Context, token string) Result[Empty] {
	return call[Empty](ctx, c, http.MethodPost, "/auth/logout", token, nil)
}

func (c *Client) Profile(ctx context.Context, token string) Result[ProfileDetails] {
	return call[ProfileDetails](ctx, c, http.MethodPost, "/user/profile", token, nil)
}

func (c *Client) UpdateProfile(ctx context.Context, token string, update ProfileUpdate) Result[Empty] {
	return call[Empty](ctx, c, http.MethodPut, "/user/profile", token, update)
}

func call[T any](ctx context.Context, c *Client, method, path, token string, payload any) Result[T] {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return unreachable[T](fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return unreachable[T](fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return unreachable[T](fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return unreachable[T](fmt.Errorf("read response: %w", err))
	}
	return normalize[T](b)
}
