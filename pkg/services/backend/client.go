// Package backend is the HTTP client of the agent and search API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/liut/agrochat/pkg/models/aigc"
	"github.com/liut/agrochat/pkg/models/search"
)

// endpoints
const (
	PathAgent    = "/api/agent"
	PathSearch   = "/api/search"
	PathRetrieve = "/api/retrieve"
	PathModels   = "/api/list_available_models"

	dftTimeout   = time.Second * 60
	maxErrorBody = 512
)

// errors
var (
	ErrEmptyQuery   = errors.New("empty query")
	ErrEmptyHistory = errors.New("empty chat history")
)

// StatusError is a non-2xx answer of the backend
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend status %d: %s", e.Code, e.Body)
}

// AgentRequest is the body of agent calls
type AgentRequest struct {
	ChatHistory aigc.Messages `json:"chat_history"`
	Company     string        `json:"company,omitempty"`
}

// Client ...
type Client struct {
	base          string
	hc            *http.Client
	searchTimeout time.Duration
}

// Option ...
type Option func(c *Client)

// WithHTTPClient replaces the transport, streaming calls rely on context deadlines
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

// WithSearchTimeout bounds search, retrieve and models calls
func WithSearchTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.searchTimeout = d
		}
	}
}

// New returns a client of the API at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		hc: &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
		},
		searchTimeout: dftTimeout,
	}
	for _, fn := range opts {
		fn(c)
	}
	return c
}

// BaseURL ...
func (c *Client) BaseURL() string {
	return c.base
}

// Agent posts the history to an agent endpoint and returns the event stream, the caller closes it.
// The stream lives as long as ctx, so set the deadline there.
func (c *Client) Agent(ctx context.Context, path string, ar AgentRequest) (io.ReadCloser, error) {
	if len(ar.ChatHistory) == 0 {
		return nil, ErrEmptyHistory
	}
	if len(path) == 0 {
		path = PathAgent
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, &ar)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	logger().Debugw("call agent", "path", path, "turns", len(ar.ChatHistory), "company", ar.Company)
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Search asks the backend for an answer
func (c *Client) Search(ctx context.Context, q search.Query) (res search.Answer, err error) {
	err = c.postJSON(ctx, PathSearch, q, &res)
	return
}

// Retrieve asks the backend for documents of each source
func (c *Client) Retrieve(ctx context.Context, q search.Query) (res search.Retrieved, err error) {
	err = c.postJSON(ctx, PathRetrieve, q, &res)
	return
}

// SearchAndRetrieve runs both calls at once
func (c *Client) SearchAndRetrieve(ctx context.Context, q search.Query) (res search.Result, err error) {
	if len(strings.TrimSpace(q.Query)) == 0 {
		err = ErrEmptyQuery
		return
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		a, err := c.Search(ctx, q)
		res.Answer = a.Answer
		return err
	})
	eg.Go(func() error {
		r, err := c.Retrieve(ctx, q)
		res.Retrieved = r
		return err
	})
	err = eg.Wait()
	return
}

// ListModels returns names of models usable with search
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.searchTimeout)
	defer cancel()
	req, err := c.newRequest(ctx, http.MethodGet, PathModels, nil)
	if err != nil {
		return nil, err
	}
	var res struct {
		Models []string `json:"models"`
	}
	if err = c.doJSON(req, &res); err != nil {
		return nil, err
	}
	return res.Models, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.searchTimeout)
	defer cancel()
	req, err := c.newRequest(ctx, http.MethodPost, path, in)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, in any) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends and checks status, the body is closed on failure
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		logger().Infow("backend request fail", "url", req.URL.String(), "err", err)
		return nil, fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logger().Infow("backend bad status", "url", req.URL.String(), "status", resp.StatusCode)
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}
