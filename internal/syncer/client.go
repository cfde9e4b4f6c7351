package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	clientTimeout = 15 * time.Second
	maxRetries    = 4
)

// Client talks the sync protocol against one peer endpoint. Transient
// transport failures are retried with exponential backoff; authentication
// and schema rejections are permanent and fail fast.
type Client struct {
	http       *http.Client
	baseURL    string
	credential string
}

// NewClient creates a sync client for one peer. LAN peers advertise IPv4
// addresses, so dialing is pinned to tcp4 to avoid v6 resolution stalls.
func NewClient(baseURL, credential string) *Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	return &Client{
		http: &http.Client{
			Timeout: clientTimeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					return dialer.DialContext(ctx, "tcp4", addr)
				},
			},
		},
		baseURL:    baseURL,
		credential: credential,
	}
}

// Status probes the peer's unauthenticated status operation
func (c *Client) Status(ctx context.Context) (*StatusInfo, error) {
	var info StatusInfo
	if err := c.doJSON(ctx, http.MethodGet, "/status", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Push sends an outbound envelope to the peer
func (c *Client) Push(ctx context.Context, env *Envelope) (*PushResult, error) {
	var result PushResult
	if err := c.doJSON(ctx, http.MethodPost, "/sync/push", env, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Pull fetches everything the peer changed since the given mark
func (c *Client) Pull(ctx context.Context, since time.Time) (*Envelope, error) {
	var env Envelope
	if err := c.doJSON(ctx, http.MethodPost, "/sync/pull", PullRequest{Since: since}, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// doJSON performs one JSON round trip with retries. 401 and 426 map to
// the permanent sentinels; other 4xx are permanent too since retrying the
// same request cannot change the answer.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("syncer: encode request: %w", err)
		}
	}

	attempt := func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.credential != "" {
			req.Header.Set("Authorization", "Bearer "+c.credential)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPeerUnreachable, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(ErrUnauthorized)
		case resp.StatusCode == http.StatusUpgradeRequired:
			return backoff.Permanent(ErrSchemaIncompatible)
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: peer returned %s", ErrPeerUnreachable, resp.Status)
		case resp.StatusCode >= 400:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("syncer: peer rejected %s %s: %s %s", method, path, resp.Status, bytes.TrimSpace(msg)))
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrPeerUnreachable, err)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	return backoff.Retry(attempt, policy)
}
