package heartbeat

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/amirimatin/kvcoord/pkg/bus"
    "github.com/amirimatin/kvcoord/pkg/membership"
)

func TestEmitter_BeatPublishesPerMember(t *testing.T) {
    reg := membership.NewRegistry()
    reg.Add("a:1")
    reg.Add("b:2")
    b := bus.New(8)
    sub := b.Subscribe()
    defer sub.Close()

    e := New(time.Hour, reg, b, nil)
    assert.Equal(t, 2, e.Beat())

    ctx, cancel := context.WithTimeout(context.Background(), time.Second)
    defer cancel()
    for _, want := range []string{"a:1", "b:2"} {
        ev, err := sub.Recv(ctx)
        require.NoError(t, err)
        assert.Equal(t, bus.KindHeart, ev.Kind)
        assert.Equal(t, want, ev.Addr)
    }
}

func TestEmitter_RunTicksUntilCancelled(t *testing.T) {
    reg := membership.NewRegistry()
    reg.Add("a:1")
    b := bus.New(64)
    sub := b.Subscribe()
    defer sub.Close()

    ctx, cancel := context.WithCancel(context.Background())
    done := make(chan struct{})
    go func() { New(10*time.Millisecond, reg, b, nil).Run(ctx); close(done) }()

    rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer rcancel()
    for i := 0; i < 3; i++ {
        ev, err := sub.Recv(rctx)
        require.NoError(t, err)
        assert.Equal(t, "a:1", ev.Addr)
    }
    cancel()
    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatalf("emitter did not stop")
    }
}

func TestEmitter_EmptyRegistry(t *testing.T) {
    b := bus.New(4)
    sub := b.Subscribe()
    defer sub.Close()
    assert.Equal(t, 0, New(0, membership.NewRegistry(), b, nil).Beat())
    assert.Equal(t, 0, sub.Pending())
}
