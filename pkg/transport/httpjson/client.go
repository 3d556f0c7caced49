package httpjson

import (
    "context"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/amirimatin/kvcoord/pkg/transport"
)

// Client fetches /status with a short retry and backoff.
type Client struct {
    httpc *http.Client
}

func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    return &Client{httpc: &http.Client{Timeout: timeout}}
}

func (c *Client) GetStatus(ctx context.Context, addr string) ([]byte, error) {
    url := fmt.Sprintf("http://%s/status", addr)
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
        if err != nil { return nil, err }
        body, err := c.fetch(req)
        if err == nil { return body, nil }
        lastErr = err
        select {
        case <-ctx.Done():
            return nil, ctx.Err()
        case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
        }
    }
    return nil, lastErr
}

func (c *Client) fetch(req *http.Request) ([]byte, error) {
    resp, err := c.httpc.Do(req)
    if err != nil { return nil, err }
    defer resp.Body.Close()
    b, err := io.ReadAll(resp.Body)
    if err != nil { return nil, err }
    if resp.StatusCode != http.StatusOK {
        return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
    }
    return b, nil
}

var _ transport.Client = (*Client)(nil)
