package server

import (
    "bufio"
    "context"
    "io"
    "net"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/amirimatin/kvcoord/pkg/bus"
    "github.com/amirimatin/kvcoord/pkg/kv"
)

type failures struct {
    mu    sync.Mutex
    peers []string
}

func (f *failures) add(peer string, _ error) {
    f.mu.Lock()
    f.peers = append(f.peers, peer)
    f.mu.Unlock()
}

func (f *failures) len() int {
    f.mu.Lock()
    defer f.mu.Unlock()
    return len(f.peers)
}

func startServer(t *testing.T, opts Options) *Server {
    t.Helper()
    opts.Bind = "127.0.0.1:0"
    if opts.Store == nil { opts.Store = kv.New() }
    if opts.Publisher == nil { opts.Publisher = &recorder{} }
    opts.Logger = quiet()
    s, err := New(opts)
    require.NoError(t, err)
    ctx, cancel := context.WithCancel(context.Background())
    require.NoError(t, s.Start(ctx))
    t.Cleanup(func() {
        cancel()
        _ = s.Stop(context.Background())
    })
    return s
}

func roundTrip(t *testing.T, addr, line string) string {
    t.Helper()
    c, err := net.Dial("tcp", addr)
    require.NoError(t, err)
    defer c.Close()
    _, err = io.WriteString(c, line)
    require.NoError(t, err)
    resp, err := bufio.NewReader(c).ReadString('\n')
    require.NoError(t, err)
    return resp
}

func TestServer_AcceptPublishesNodeJoined(t *testing.T) {
    rec := &recorder{}
    s := startServer(t, Options{Publisher: rec})

    assert.Equal(t, "OK\n", roundTrip(t, s.Addr(), "PUT a 1\n"))

    evs := rec.snapshot()
    require.GreaterOrEqual(t, len(evs), 2)
    assert.Equal(t, bus.KindJoined, evs[0].Kind)
    assert.NotEmpty(t, evs[0].Addr)
    assert.Equal(t, bus.KindCommand, evs[1].Kind)
}

func TestServer_NormalCompletionIsNotAFailure(t *testing.T) {
    f := &failures{}
    s := startServer(t, Options{OnFailure: f.add})
    assert.Equal(t, "ERROR\n", roundTrip(t, s.Addr(), "FOO\n"))
    assert.Equal(t, "NOT FOUND\n", roundTrip(t, s.Addr(), "GET nope\n"))
    time.Sleep(20 * time.Millisecond)
    assert.Equal(t, 0, f.len())
}

func TestServer_EmptyConnectionIsAFailure(t *testing.T) {
    f := &failures{}
    var accepted []string
    var mu sync.Mutex
    s := startServer(t, Options{
        OnFailure: f.add,
        OnAccept:  func(p string) { mu.Lock(); accepted = append(accepted, p); mu.Unlock() },
    })

    c, err := net.Dial("tcp", s.Addr())
    require.NoError(t, err)
    local := c.LocalAddr().String()
    require.NoError(t, c.Close())

    require.Eventually(t, func() bool { return f.len() == 1 }, 2*time.Second, 10*time.Millisecond)
    f.mu.Lock()
    assert.Equal(t, local, f.peers[0])
    f.mu.Unlock()
    mu.Lock()
    assert.Equal(t, []string{local}, accepted)
    mu.Unlock()
}

func TestServer_UnterminatedLineIsProcessed(t *testing.T) {
    store := kv.New()
    s := startServer(t, Options{Store: store})

    c, err := net.Dial("tcp", s.Addr())
    require.NoError(t, err)
    defer c.Close()
    _, err = io.WriteString(c, "PUT k v")
    require.NoError(t, err)
    require.NoError(t, c.(*net.TCPConn).CloseWrite())
    resp, err := bufio.NewReader(c).ReadString('\n')
    require.NoError(t, err)
    assert.Equal(t, "OK\n", resp)
    v, ok := store.Get("k")
    require.True(t, ok)
    assert.Equal(t, "v", v)
}

func TestServer_BindFailureAbortsStart(t *testing.T) {
    s1 := startServer(t, Options{})
    s2, err := New(Options{Bind: s1.Addr(), Store: kv.New(), Publisher: &recorder{}, Logger: quiet()})
    require.NoError(t, err)
    err = s2.Start(context.Background())
    require.Error(t, err)
    assert.Contains(t, err.Error(), "listen")
}

func TestNew_Validation(t *testing.T) {
    _, err := New(Options{Publisher: &recorder{}})
    assert.ErrorIs(t, err, ErrNoStore)
    _, err = New(Options{Store: kv.New()})
    assert.ErrorIs(t, err, ErrNoPublisher)

    s, err := New(Options{Store: kv.New(), Publisher: &recorder{}})
    require.NoError(t, err)
    assert.Equal(t, DefaultBind, s.Addr())
}

func TestServer_StopIsIdempotent(t *testing.T) {
    s := startServer(t, Options{})
    require.NoError(t, s.Stop(context.Background()))
    require.NoError(t, s.Stop(context.Background()))
    _, err := net.DialTimeout("tcp", s.Addr(), 200*time.Millisecond)
    assert.Error(t, err)
}

func TestServer_DefaultHooksPublishJoinedThenLost(t *testing.T) {
    rec := &recorder{}
    s := startServer(t, Options{Publisher: rec})
    c, err := net.Dial("tcp", s.Addr())
    require.NoError(t, err)
    peer := c.LocalAddr().String()
    require.NoError(t, c.Close())

    require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
    evs := rec.snapshot()
    assert.Equal(t, bus.NodeJoined(peer).String(), evs[0].String())
    assert.Equal(t, bus.NodeLost(peer).String(), evs[1].String())
}

func TestServer_StopDoesNotWaitForIdleClients(t *testing.T) {
    f := &failures{}
    s := startServer(t, Options{OnFailure: f.add})

    c, err := net.Dial("tcp", s.Addr())
    require.NoError(t, err)
    defer c.Close()
    require.Eventually(t, func() bool {
        s.mu.Lock()
        defer s.mu.Unlock()
        return len(s.conns) == 1
    }, time.Second, 5*time.Millisecond)

    stopped := make(chan error, 1)
    go func() { stopped <- s.Stop(context.Background()) }()
    select {
    case err := <-stopped:
        require.NoError(t, err)
    case <-time.After(time.Second):
        t.Fatal("Stop blocked on an idle client connection")
    }
    // the aborted read counts as a failed connection
    assert.Equal(t, 1, f.len())
}

func TestServer_OverlongLineIsRejected(t *testing.T) {
    store := kv.New()
    s := startServer(t, Options{Store: store})

    // one byte over, with no terminator in sight
    line := "PUT k " + strings.Repeat("v", MaxRequestLine-5)
    assert.Equal(t, "ERROR\n", roundTrip(t, s.Addr(), line))
    assert.Equal(t, 0, store.Len())

    // exactly at the limit, terminator included, is still served
    ok := "PUT k " + strings.Repeat("v", MaxRequestLine-7) + "\n"
    assert.Equal(t, "OK\n", roundTrip(t, s.Addr(), ok))
    assert.Equal(t, 1, store.Len())
}
