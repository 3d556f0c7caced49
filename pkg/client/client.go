// Package client talks the line protocol to a node: one TCP connection per
// request, closed after the response.
package client

import (
    "bufio"
    "context"
    "errors"
    "fmt"
    "io"
    "net"
    "strings"
    "time"

    "github.com/amirimatin/kvcoord/pkg/kv"
    "github.com/amirimatin/kvcoord/pkg/protocol"
)

var (
    ErrNotFound = errors.New("client: key not found")
    // ErrRejected means the node answered ERROR.
    ErrRejected = errors.New("client: request rejected")
)

type Client struct {
    addr    string
    timeout time.Duration
    dialer  net.Dialer
}

func New(addr string, timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    return &Client{addr: addr, timeout: timeout}
}

// Do sends one raw request line (a trailing newline is added when missing) and
// returns the raw response line without its newline.
func (c *Client) Do(ctx context.Context, line string) (string, error) {
    ctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
    if err != nil { return "", fmt.Errorf("client: dial %s: %w", c.addr, err) }
    defer conn.Close()
    if dl, ok := ctx.Deadline(); ok { _ = conn.SetDeadline(dl) }

    if !strings.HasSuffix(line, "\n") { line += "\n" }
    if _, err := io.WriteString(conn, line); err != nil {
        return "", fmt.Errorf("client: write: %w", err)
    }
    resp, err := bufio.NewReader(conn).ReadString('\n')
    if err != nil && !(errors.Is(err, io.EOF) && resp != "") {
        return "", fmt.Errorf("client: read: %w", err)
    }
    return strings.TrimRight(resp, "\r\n"), nil
}

func (c *Client) exec(ctx context.Context, cmd kv.Command) (protocol.Response, error) {
    line, err := protocol.Encode(cmd)
    if err != nil { return protocol.Response{}, fmt.Errorf("client: %s: %w", cmd, err) }
    raw, err := c.Do(ctx, line)
    if err != nil { return protocol.Response{}, err }
    resp, err := protocol.ParseResponse(raw)
    if err != nil { return protocol.Response{}, fmt.Errorf("%w: %q", ErrRejected, raw) }
    return resp, nil
}

// Get returns ErrNotFound when the node holds no value for key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
    resp, err := c.exec(ctx, kv.Get(key))
    if err != nil { return "", err }
    if resp.NotFound { return "", ErrNotFound }
    return resp.Value, nil
}

func (c *Client) Put(ctx context.Context, key, value string) error {
    _, err := c.exec(ctx, kv.Put(key, value))
    return err
}

func (c *Client) Delete(ctx context.Context, key string) error {
    _, err := c.exec(ctx, kv.Delete(key))
    return err
}

// Do is a one-shot Client.Do with the default timeout.
func Do(ctx context.Context, addr, line string) (string, error) {
    return New(addr, 0).Do(ctx, line)
}
