package grpc

import (
    "context"
    "errors"
    "io"
    "log"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    gogrpc "google.golang.org/grpc"
    "google.golang.org/grpc/credentials/insecure"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startServer(t *testing.T, status func(context.Context) ([]byte, error)) *Server {
    t.Helper()
    s := NewServer("127.0.0.1:0", log.New(io.Discard, "", 0))
    ctx, cancel := context.WithCancel(context.Background())
    require.NoError(t, s.Start(ctx, status, func() bool { return true }))
    t.Cleanup(func() {
        cancel()
        _ = s.Stop(context.Background())
    })
    return s
}

func TestGetStatus(t *testing.T) {
    s := startServer(t, func(context.Context) ([]byte, error) { return []byte(`{"keys":3}`), nil })
    b, err := NewClient(2*time.Second).GetStatus(context.Background(), s.Addr())
    require.NoError(t, err)
    assert.JSONEq(t, `{"keys":3}`, string(b))
}

func TestGetStatus_Error(t *testing.T) {
    s := startServer(t, func(context.Context) ([]byte, error) { return nil, errors.New("boom") })
    _, err := NewClient(2*time.Second).GetStatus(context.Background(), s.Addr())
    require.Error(t, err)
    assert.Contains(t, err.Error(), "boom")
}

func TestHealthService(t *testing.T) {
    s := startServer(t, func(context.Context) ([]byte, error) { return nil, nil })
    cc, err := gogrpc.NewClient(s.Addr(), gogrpc.WithTransportCredentials(insecure.NewCredentials()))
    require.NoError(t, err)
    defer cc.Close()

    hc := healthpb.NewHealthClient(cc)
    require.Eventually(t, func() bool {
        ctx, cancel := context.WithTimeout(context.Background(), time.Second)
        defer cancel()
        resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{})
        return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
    }, 3*time.Second, 50*time.Millisecond)
}
