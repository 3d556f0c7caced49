package coordinator

import (
    "context"
    "sync"
    "time"

    "github.com/amirimatin/kvcoord/pkg/kv"
)

type EventType string

const (
    EventMemberJoined  EventType = "member_joined"
    EventMemberLost    EventType = "member_lost"
    EventLeaderChanged EventType = "leader_changed"
    EventCommand       EventType = "command_applied"
)

// Event is an application-consumable notification from the event loop. Addr is
// set for member and leader events, Command for command events.
type Event struct {
    Type    EventType
    At      time.Time
    Addr    string
    Command kv.Command
}

// Subscribe returns a buffered channel of events, closed when ctx is done.
// Delivery is best-effort: a slow consumer misses events rather than stalling
// the event loop.
func (n *Node) Subscribe(ctx context.Context) <-chan Event {
    ch := make(chan Event, 64)
    n.watchers.add(ch)
    go func() {
        <-ctx.Done()
        n.watchers.remove(ch)
        close(ch)
    }()
    return ch
}

type watchers struct {
    mu   sync.Mutex
    subs map[chan Event]struct{}
}

func (w *watchers) add(ch chan Event) {
    w.mu.Lock()
    if w.subs == nil { w.subs = make(map[chan Event]struct{}) }
    w.subs[ch] = struct{}{}
    w.mu.Unlock()
}

func (w *watchers) remove(ch chan Event) {
    w.mu.Lock()
    delete(w.subs, ch)
    w.mu.Unlock()
}

func (w *watchers) publish(ev Event) {
    w.mu.Lock()
    for ch := range w.subs {
        select {
        case ch <- ev:
        default:
        }
    }
    w.mu.Unlock()
}
