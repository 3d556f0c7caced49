// Package server accepts client connections and runs the one-line protocol on
// each of them. Every accepted peer is announced as a cluster member; a peer
// whose connection fails with an I/O error is announced as lost.
package server

import (
    "context"
    "errors"
    "fmt"
    "log"
    "net"
    "sync"
    "time"

    "github.com/amirimatin/kvcoord/pkg/bus"
    "github.com/amirimatin/kvcoord/pkg/internal/logutil"
    "github.com/amirimatin/kvcoord/pkg/kv"
    obsmetrics "github.com/amirimatin/kvcoord/pkg/observability/metrics"
)

const DefaultBind = "127.0.0.1:8080"

var (
    ErrNoStore     = errors.New("server: nil Store")
    ErrNoPublisher = errors.New("server: nil Publisher")
    ErrStarted     = errors.New("server: already started")
)

type Options struct {
    // Bind is the client listen address; empty means DefaultBind.
    Bind      string
    Store     *kv.Store
    Publisher bus.Publisher
    // Journal, when set, receives every mutation handled here.
    Journal Journal
    // Timeout bounds reading the request and writing the response; 0 disables it.
    Timeout time.Duration
    // OnAccept runs for each accepted peer before its request is read.
    // Nil publishes NodeJoined(peer).
    OnAccept func(peer string)
    // OnFailure runs when a connection ends with an I/O error.
    // Nil publishes NodeLost(peer).
    OnFailure func(peer string, err error)
    Logger    *log.Logger
}

func (o *Options) Validate() error {
    if o.Store == nil { return ErrNoStore }
    if o.Publisher == nil { return ErrNoPublisher }
    if o.Bind == "" { o.Bind = DefaultBind }
    if o.Logger == nil { o.Logger = log.Default() }
    return nil
}

type Server struct {
    opts    Options
    handler *Handler

    mu     sync.Mutex
    ln     net.Listener
    conns  map[net.Conn]struct{}
    closed bool
    wg     sync.WaitGroup
}

func New(opts Options) (*Server, error) {
    if err := opts.Validate(); err != nil { return nil, err }
    if opts.OnAccept == nil {
        pub := opts.Publisher
        opts.OnAccept = func(peer string) { pub.Publish(bus.NodeJoined(peer)) }
    }
    if opts.OnFailure == nil {
        pub := opts.Publisher
        opts.OnFailure = func(peer string, _ error) { pub.Publish(bus.NodeLost(peer)) }
    }
    return &Server{
        opts:    opts,
        handler: NewHandler(opts.Store, opts.Publisher, opts.Journal, opts.Timeout, opts.Logger),
        conns:   make(map[net.Conn]struct{}),
    }, nil
}

// Start binds the listener and serves in the background until ctx is done or
// Stop is called. A bind failure is returned and nothing is started.
func (s *Server) Start(ctx context.Context) error {
    s.mu.Lock()
    if s.ln != nil || s.closed {
        s.mu.Unlock()
        return ErrStarted
    }
    ln, err := net.Listen("tcp", s.opts.Bind)
    if err != nil {
        s.mu.Unlock()
        return fmt.Errorf("server: listen %s: %w", s.opts.Bind, err)
    }
    s.ln = ln
    s.mu.Unlock()
    logutil.Infof(s.opts.Logger, "listening for clients on %s", ln.Addr())

    s.wg.Add(1)
    go s.acceptLoop(ctx, ln)
    go func() {
        <-ctx.Done()
        _ = s.Stop(context.Background())
    }()
    return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
    defer s.wg.Done()
    var backoff time.Duration
    for {
        conn, err := ln.Accept()
        if err != nil {
            if s.isClosed() || errors.Is(err, net.ErrClosed) { return }
            if backoff == 0 { backoff = 5 * time.Millisecond } else { backoff *= 2 }
            if backoff > time.Second { backoff = time.Second }
            logutil.Warnf(s.opts.Logger, "accept: %v; retrying in %s", err, backoff)
            time.Sleep(backoff)
            continue
        }
        backoff = 0
        if !s.track(conn) {
            _ = conn.Close()
            return
        }
        obsmetrics.ClientConnections.Inc()
        peer := conn.RemoteAddr().String()
        s.opts.OnAccept(peer)
        s.wg.Add(1)
        go s.serve(ctx, conn, peer)
    }
}

func (s *Server) serve(ctx context.Context, conn net.Conn, peer string) {
    defer s.wg.Done()
    defer s.untrack(conn)
    if err := s.handler.Handle(ctx, conn); err != nil {
        obsmetrics.ClientFailures.Inc()
        logutil.Warnf(s.opts.Logger, "connection %s failed: %v", peer, err)
        s.opts.OnFailure(peer, err)
    }
}

func (s *Server) track(c net.Conn) bool {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.closed { return false }
    s.conns[c] = struct{}{}
    return true
}

func (s *Server) untrack(c net.Conn) {
    _ = c.Close()
    s.mu.Lock()
    delete(s.conns, c)
    s.mu.Unlock()
}

func (s *Server) isClosed() bool {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.closed
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.ln != nil { return s.ln.Addr().String() }
    return s.opts.Bind
}

// Stop closes the listener and aborts reads on open connections, so idle
// clients no longer hold the server up; their handlers end with an I/O error
// and report the peer as failed. Responses already being written get until
// ctx is done, after which the remaining connections are closed.
func (s *Server) Stop(ctx context.Context) error {
    s.mu.Lock()
    if s.closed {
        s.mu.Unlock()
        return nil
    }
    s.closed = true
    var err error
    if s.ln != nil { err = s.ln.Close() }
    for c := range s.conns { _ = c.SetReadDeadline(time.Now()) }
    s.mu.Unlock()

    done := make(chan struct{})
    go func() { s.wg.Wait(); close(done) }()
    select {
    case <-done:
    case <-ctx.Done():
        s.mu.Lock()
        for c := range s.conns { _ = c.Close() }
        s.mu.Unlock()
        <-done
    }
    return err
}
