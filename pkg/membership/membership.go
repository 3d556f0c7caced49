package membership

import (
    "context"
    "time"
)

// MetaClientAddr is the gossip metadata key under which a node advertises
// the address of its client protocol listener.
const MetaClientAddr = "client"

// MemberInfo describes a node as observed by the gossip layer.
type MemberInfo struct {
    ID   string
    Addr string
    Meta map[string]string
}

// ClientAddr returns the advertised client endpoint, falling back to the
// gossip address when none was advertised.
func (m MemberInfo) ClientAddr() string {
    if m.Meta != nil {
        if a := m.Meta[MetaClientAddr]; a != "" { return a }
    }
    return m.Addr
}

type EventType string

const (
    EventJoin   EventType = "join"
    EventLeave  EventType = "leave"
    EventFailed EventType = "failed"
)

// Event is the translated gossip membership change notification.
type Event struct {
    Type   EventType
    Member MemberInfo
    At     time.Time
}

// Membership is the optional gossip discovery layer. Joins it reports are
// fed into the coordinator as NodeJoined events; leaves and failures take
// the same path as a failed client connection.
type Membership interface {
    Start(ctx context.Context) error
    Join(seeds []string) error
    Local() MemberInfo
    Members() []MemberInfo
    Events() <-chan Event
    Leave() error
    Stop() error
}

// HealthReporter is implemented by gossip layers that expose a local health
// score (higher is worse, -1 when not running). Surfaced in node status.
type HealthReporter interface {
    HealthScore() int
}
