package statusapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	fspath "path"
	"time"

	"github.com/chitchatlabs/chitchat/internal/chitchat"
)

// Client queries a node's status HTTP API, used by operator tooling that
// wants a node's cluster view without speaking gossip itself.
type Client struct {
	httpClient *http.Client
	url        *url.URL
}

// NewClient creates a Client for the status server at url.
func NewClient(url *url.URL) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		url:        url,
	}
}

// Ready reports whether the node considers itself ready.
func (c *Client) Ready(ctx context.Context) (bool, error) {
	resp, err := c.do(ctx, "/ready")
	if err != nil {
		if httpErr, ok := err.(*statusError); ok && httpErr.code == http.StatusServiceUnavailable {
			return false, nil
		}
		return false, err
	}
	resp.Close()
	return true, nil
}

// Cluster fetches the node's full cluster snapshot.
func (c *Client) Cluster(ctx context.Context) (chitchat.ClusterSnapshot, error) {
	r, err := c.do(ctx, "/cluster")
	if err != nil {
		return chitchat.ClusterSnapshot{}, err
	}
	defer r.Close()

	var snapshot chitchat.ClusterSnapshot
	if err := json.NewDecoder(r).Decode(&snapshot); err != nil {
		return chitchat.ClusterSnapshot{}, fmt.Errorf("decode response: %w", err)
	}
	return snapshot, nil
}

// Node fetches a single peer's snapshot by node ID.
func (c *Client) Node(ctx context.Context, nodeID string) (chitchat.NodeSnapshot, error) {
	r, err := c.do(ctx, "/cluster/"+nodeID)
	if err != nil {
		return chitchat.NodeSnapshot{}, err
	}
	defer r.Close()

	var node chitchat.NodeSnapshot
	if err := json.NewDecoder(r).Decode(&node); err != nil {
		return chitchat.NodeSnapshot{}, fmt.Errorf("decode response: %w", err)
	}
	return node, nil
}

// Digest fetches the node's current per-peer digest summary.
func (c *Client) Digest(ctx context.Context) ([]DigestEntry, error) {
	r, err := c.do(ctx, "/digest")
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var entries []DigestEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return entries, nil
}

// SetLocalKey sets key to value on the node's own local state. ttl of zero
// means the key never expires.
func (c *Client) SetLocalKey(ctx context.Context, key, value string, ttl time.Duration) error {
	body, err := json.Marshal(setLocalKeyRequest{Value: value, TTLSeconds: int64(ttl.Seconds())})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	r, err := c.doWithBody(ctx, http.MethodPut, "/local/keys/"+key, body)
	if err != nil {
		return err
	}
	r.Close()
	return nil
}

// DeleteLocalKey tombstones key on the node's own local state.
func (c *Client) DeleteLocalKey(ctx context.Context, key string) error {
	r, err := c.doWithBody(ctx, http.MethodDelete, "/local/keys/"+key, nil)
	if err != nil {
		return err
	}
	r.Close()
	return nil
}

// Close releases any idle connections held by the client.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("request: bad status: %d", e.code)
}

func (c *Client) do(ctx context.Context, path string) (io.ReadCloser, error) {
	return c.doWithMethod(ctx, http.MethodGet, path, nil, http.StatusOK)
}

func (c *Client) doWithBody(ctx context.Context, method, path string, body []byte) (io.ReadCloser, error) {
	return c.doWithMethod(ctx, method, path, body, http.StatusNoContent)
}

func (c *Client) doWithMethod(ctx context.Context, method, path string, body []byte, wantStatus int) (io.ReadCloser, error) {
	reqURL := new(url.URL)
	*reqURL = *c.url
	reqURL.Path = fspath.Join(reqURL.Path, path)

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	if resp.StatusCode != wantStatus {
		defer resp.Body.Close()
		return nil, &statusError{code: resp.StatusCode}
	}

	return resp.Body, nil
}
