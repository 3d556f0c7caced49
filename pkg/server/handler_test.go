package server

import (
    "bufio"
    "context"
    "io"
    "log"
    "net"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/amirimatin/kvcoord/pkg/bus"
    "github.com/amirimatin/kvcoord/pkg/kv"
)

type recorder struct {
    mu     sync.Mutex
    events []bus.Event
}

func (r *recorder) Publish(ev bus.Event) int {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.events = append(r.events, ev)
    return 1
}

func (r *recorder) snapshot() []bus.Event {
    r.mu.Lock()
    defer r.mu.Unlock()
    return append([]bus.Event(nil), r.events...)
}

type memJournal struct{ cmds []kv.Command }

func (j *memJournal) Append(cmd kv.Command) error { j.cmds = append(j.cmds, cmd); return nil }

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

// exchange writes req on the client side of a pipe and returns the response
// line together with Handle's result.
func exchange(t *testing.T, h *Handler, req string) (string, error) {
    t.Helper()
    client, srv := net.Pipe()
    defer client.Close()
    errc := make(chan error, 1)
    go func() {
        errc <- h.Handle(context.Background(), srv)
        srv.Close()
    }()
    _, err := io.WriteString(client, req)
    require.NoError(t, err)
    resp, _ := bufio.NewReader(client).ReadString('\n')
    return resp, <-errc
}

func TestHandle_PutGetDel(t *testing.T) {
    store := kv.New()
    rec := &recorder{}
    j := &memJournal{}
    h := NewHandler(store, rec, j, 0, quiet())

    resp, err := exchange(t, h, "PUT a 1\n")
    require.NoError(t, err)
    assert.Equal(t, "OK\n", resp)

    resp, err = exchange(t, h, "GET a\n")
    require.NoError(t, err)
    assert.Equal(t, "OK 1\n", resp)

    resp, err = exchange(t, h, "DEL a\n")
    require.NoError(t, err)
    assert.Equal(t, "OK\n", resp)

    resp, err = exchange(t, h, "GET a\n")
    require.NoError(t, err)
    assert.Equal(t, "NOT FOUND\n", resp)

    evs := rec.snapshot()
    require.Len(t, evs, 2)
    assert.Equal(t, bus.CommandEvent(kv.Put("a", "1")).Command, evs[0].Command)
    assert.Equal(t, kv.Delete("a"), evs[1].Command)
    assert.Equal(t, []kv.Command{kv.Put("a", "1"), kv.Delete("a")}, j.cmds)
}

func TestHandle_MalformedIsNotAnError(t *testing.T) {
    h := NewHandler(kv.New(), &recorder{}, nil, 0, quiet())
    for _, req := range []string{"FOO\n", "GET\n", "PUT a\n", "PUT  a 1\n", "\n"} {
        resp, err := exchange(t, h, req)
        require.NoError(t, err, "request %q", req)
        assert.Equal(t, "ERROR\n", resp, "request %q", req)
    }
}

func TestHandle_EOFBeforeRequestFails(t *testing.T) {
    h := NewHandler(kv.New(), &recorder{}, nil, 0, quiet())
    client, srv := net.Pipe()
    require.NoError(t, client.Close())
    err := h.Handle(context.Background(), srv)
    require.Error(t, err)
}

func TestHandle_ReadTimeout(t *testing.T) {
    h := NewHandler(kv.New(), &recorder{}, nil, 30*time.Millisecond, quiet())
    client, srv := net.Pipe()
    defer client.Close()
    err := h.Handle(context.Background(), srv)
    require.Error(t, err)
    var ne net.Error
    require.ErrorAs(t, err, &ne)
    assert.True(t, ne.Timeout())
}
