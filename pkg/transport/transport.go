// Package transport defines the management API shared by the HTTP/JSON and
// gRPC implementations. Payloads are opaque JSON so the transports do not
// depend on coordinator types.
package transport

import "context"

// StatusFunc returns the JSON-encoded node status.
type StatusFunc func(ctx context.Context) ([]byte, error)

// HealthFunc reports whether the node is serving clients.
type HealthFunc func() bool

// Server exposes status and health to operators.
type Server interface {
    Start(ctx context.Context, status StatusFunc, health HealthFunc) error
    // Addr returns the bound address once started.
    Addr() string
    Stop(ctx context.Context) error
}

// Client queries a node's management API.
type Client interface {
    GetStatus(ctx context.Context, addr string) ([]byte, error)
}
