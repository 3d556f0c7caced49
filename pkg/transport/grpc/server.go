package grpc

import (
    "context"
    "fmt"
    "log"
    "net"
    "sync"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/health"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"
    "google.golang.org/grpc/keepalive"

    "github.com/amirimatin/kvcoord/pkg/internal/logutil"
    "github.com/amirimatin/kvcoord/pkg/observability/tracing"
    "github.com/amirimatin/kvcoord/pkg/transport"
)

const (
    serviceName     = "kvcoord.v1.Management"
    getStatusMethod = "/" + serviceName + "/GetStatus"
)

// Server implements transport.Server over gRPC using a JSON codec.
type Server struct {
    bind   string
    logger *log.Logger

    mu  sync.Mutex
    lis net.Listener
    srv *grpc.Server
}

func NewServer(bind string, logger *log.Logger) *Server {
    if logger == nil { logger = log.Default() }
    return &Server{bind: bind, logger: logger}
}

type empty struct{}
type statusBlob struct {
    Data []byte `json:"data"`
}

type managementServer interface {
    GetStatus(ctx context.Context, in *empty) (*statusBlob, error)
}

type mgmtImpl struct{ status transport.StatusFunc }

func (m *mgmtImpl) GetStatus(ctx context.Context, _ *empty) (*statusBlob, error) {
    ctx, end := tracing.StartSpan(ctx, "grpc.status")
    b, err := m.status(ctx)
    end(err)
    if err != nil { return nil, err }
    return &statusBlob{Data: b}, nil
}

// Service descriptor and handler written by hand; no codegen required.
var _Management_serviceDesc = grpc.ServiceDesc{
    ServiceName: serviceName,
    HandlerType: (*managementServer)(nil),
    Methods: []grpc.MethodDesc{
        {MethodName: "GetStatus", Handler: _Management_GetStatus_Handler},
    },
}

func _Management_GetStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(empty)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(managementServer).GetStatus(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getStatusMethod}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(managementServer).GetStatus(ctx, req.(*empty))
    }
    return interceptor(ctx, in, info, handler)
}

func (s *Server) Start(ctx context.Context, status transport.StatusFunc, healthFn transport.HealthFunc) error {
    lis, err := net.Listen("tcp", s.bind)
    if err != nil { return fmt.Errorf("grpc: listen %s: %w", s.bind, err) }
    // The JSON codec is selected by content-subtype, so the protobuf health
    // service keeps working on the same server.
    srv := grpc.NewServer(
        grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}),
        grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}),
    )
    hs := health.NewServer()
    healthpb.RegisterHealthServer(srv, hs)
    srv.RegisterService(&_Management_serviceDesc, &mgmtImpl{status: status})

    s.mu.Lock()
    s.lis, s.srv = lis, srv
    s.mu.Unlock()

    if healthFn != nil {
        go watchHealth(ctx, hs, healthFn)
    }
    go func() {
        <-ctx.Done()
        _ = s.Stop(context.Background())
    }()
    go func() {
        if err := srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
            logutil.Errorf(s.logger, "grpc: serve: %v", err)
        }
    }()
    logutil.Infof(s.logger, "management api (grpc) on %s", lis.Addr())
    return nil
}

// watchHealth mirrors healthFn into the standard health service.
func watchHealth(ctx context.Context, hs *health.Server, healthFn transport.HealthFunc) {
    t := time.NewTicker(time.Second)
    defer t.Stop()
    for {
        st := healthpb.HealthCheckResponse_NOT_SERVING
        if healthFn() { st = healthpb.HealthCheckResponse_SERVING }
        hs.SetServingStatus("", st)
        hs.SetServingStatus(serviceName, st)
        select {
        case <-ctx.Done():
            hs.Shutdown()
            return
        case <-t.C:
        }
    }
}

func (s *Server) Addr() string {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.lis != nil { return s.lis.Addr().String() }
    return s.bind
}

func (s *Server) Stop(ctx context.Context) error {
    s.mu.Lock()
    srv := s.srv
    s.srv = nil
    s.mu.Unlock()
    if srv == nil { return nil }
    ch := make(chan struct{})
    go func() { srv.GracefulStop(); close(ch) }()
    select {
    case <-ch:
    case <-ctx.Done():
        srv.Stop()
    case <-time.After(2 * time.Second):
        srv.Stop()
    }
    return nil
}

var _ transport.Server = (*Server)(nil)
