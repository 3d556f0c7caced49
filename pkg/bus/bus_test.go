package bus

import (
    "context"
    "errors"
    "fmt"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/amirimatin/kvcoord/pkg/kv"
)

func recv(t *testing.T, s *Subscription) (Event, error) {
    t.Helper()
    ctx, cancel := context.WithTimeout(context.Background(), time.Second)
    defer cancel()
    return s.Recv(ctx)
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
    b := New(4)
    assert.Equal(t, 0, b.Publish(NodeJoined("127.0.0.1:1")))
}

func TestBus_OrderPerSubscriber(t *testing.T) {
    b := New(16)
    s1, s2 := b.Subscribe(), b.Subscribe()
    defer s1.Close()
    defer s2.Close()

    for i := 0; i < 5; i++ {
        n := b.Publish(CommandEvent(kv.Put("k", fmt.Sprint(i))))
        require.Equal(t, 2, n)
    }
    for _, s := range []*Subscription{s1, s2} {
        for i := 0; i < 5; i++ {
            ev, err := recv(t, s)
            require.NoError(t, err)
            assert.Equal(t, KindCommand, ev.Kind)
            assert.Equal(t, fmt.Sprint(i), ev.Command.Value)
        }
    }
}

func TestBus_SubscribeSeesOnlyLaterEvents(t *testing.T) {
    b := New(4)
    b.Publish(Heartbeat("early"))
    s := b.Subscribe()
    defer s.Close()
    b.Publish(Heartbeat("late"))

    ev, err := recv(t, s)
    require.NoError(t, err)
    assert.Equal(t, "late", ev.Addr)
    assert.Equal(t, 0, s.Pending())
}

func TestBus_LaggedSubscriberDropsOldest(t *testing.T) {
    b := New(3)
    slow := b.Subscribe()
    defer slow.Close()

    for i := 0; i < 5; i++ {
        b.Publish(Heartbeat(fmt.Sprint(i)))
    }

    _, err := recv(t, slow)
    var lagged *LaggedError
    require.True(t, errors.As(err, &lagged), "want LaggedError, got %v", err)
    assert.Equal(t, uint64(2), lagged.Missed)

    // delivery resumes with the oldest retained event
    for _, want := range []string{"2", "3", "4"} {
        ev, err := recv(t, slow)
        require.NoError(t, err)
        assert.Equal(t, want, ev.Addr)
    }
}

func TestBus_LagIsolatedToSlowSubscriber(t *testing.T) {
    b := New(2)
    slow, fast := b.Subscribe(), b.Subscribe()
    defer slow.Close()
    defer fast.Close()

    for i := 0; i < 4; i++ {
        b.Publish(Heartbeat(fmt.Sprint(i)))
        ev, err := recv(t, fast)
        require.NoError(t, err)
        assert.Equal(t, fmt.Sprint(i), ev.Addr)
    }
    _, err := recv(t, slow)
    var lagged *LaggedError
    assert.ErrorAs(t, err, &lagged)
}

func TestBus_RecvBlocksUntilPublish(t *testing.T) {
    b := New(4)
    s := b.Subscribe()
    defer s.Close()

    got := make(chan Event, 1)
    go func() {
        ev, err := s.Recv(context.Background())
        if err == nil { got <- ev }
    }()
    time.Sleep(20 * time.Millisecond)
    b.Publish(LeaderAnnounced("x"))

    select {
    case ev := <-got:
        assert.Equal(t, KindLeader, ev.Kind)
    case <-time.After(time.Second):
        t.Fatalf("timed out waiting for event")
    }
}

func TestBus_RecvHonoursContext(t *testing.T) {
    b := New(4)
    s := b.Subscribe()
    defer s.Close()

    ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
    defer cancel()
    _, err := s.Recv(ctx)
    assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBus_CloseDrainsThenErrClosed(t *testing.T) {
    b := New(4)
    s := b.Subscribe()
    b.Publish(ElectionProposal("a"))
    b.Close()

    ev, err := recv(t, s)
    require.NoError(t, err)
    assert.Equal(t, "a", ev.Addr)

    _, err = recv(t, s)
    assert.ErrorIs(t, err, ErrClosed)
    assert.Equal(t, 0, b.Publish(Heartbeat("after-close")))

    late := b.Subscribe()
    _, err = recv(t, late)
    assert.ErrorIs(t, err, ErrClosed)
}

func TestSubscription_CloseDetaches(t *testing.T) {
    b := New(4)
    s := b.Subscribe()
    require.Equal(t, 1, b.Len())
    s.Close()
    s.Close()
    assert.Equal(t, 0, b.Len())
    assert.Equal(t, 0, b.Publish(Heartbeat("x")))
}

func TestEvent_String(t *testing.T) {
    assert.Equal(t, "command(PUT a 1)", CommandEvent(kv.Put("a", "1")).String())
    assert.Equal(t, "heartbeat(h:1)", Heartbeat("h:1").String())
    assert.Equal(t, "node_lost(p:2)", NodeLost("p:2").String())
}
