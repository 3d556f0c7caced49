package grpc

import (
    "context"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/credentials/insecure"

    "github.com/amirimatin/kvcoord/pkg/transport"
)

// Client dials per call; management queries are rare.
type Client struct {
    timeout time.Duration
}

func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    return &Client{timeout: timeout}
}

func (c *Client) GetStatus(ctx context.Context, addr string) ([]byte, error) {
    cctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    cc, err := grpc.NewClient(addr,
        grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
        grpc.WithTransportCredentials(insecure.NewCredentials()),
    )
    if err != nil { return nil, err }
    defer cc.Close()
    out := new(statusBlob)
    if err := cc.Invoke(cctx, getStatusMethod, &empty{}, out); err != nil { return nil, err }
    return out.Data, nil
}

var _ transport.Client = (*Client)(nil)
