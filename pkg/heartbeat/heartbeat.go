// Package heartbeat periodically re-announces every registry member on the
// bus. Heartbeats carry no failure detection: nothing is evicted when they
// stop.
package heartbeat

import (
    "context"
    "log"
    "time"

    "github.com/amirimatin/kvcoord/pkg/bus"
    "github.com/amirimatin/kvcoord/pkg/internal/logutil"
)

// DefaultInterval is the period between heartbeat rounds.
const DefaultInterval = 5 * time.Second

// MemberLister is the read side of the membership registry.
type MemberLister interface {
    Members() []string
}

type Emitter struct {
    interval time.Duration
    members  MemberLister
    pub      bus.Publisher
    logger   *log.Logger
}

func New(interval time.Duration, members MemberLister, pub bus.Publisher, logger *log.Logger) *Emitter {
    if interval <= 0 { interval = DefaultInterval }
    if logger == nil { logger = log.Default() }
    return &Emitter{interval: interval, members: members, pub: pub, logger: logger}
}

// Run emits a round every interval until ctx is done.
func (e *Emitter) Run(ctx context.Context) {
    ticker := time.NewTicker(e.interval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            n := e.Beat()
            logutil.Debugf(e.logger, "heartbeat round: %d members", n)
        }
    }
}

// Beat publishes one Heartbeat per member from a single registry snapshot and
// returns how many were sent.
func (e *Emitter) Beat() int {
    members := e.members.Members()
    for _, m := range members {
        e.pub.Publish(bus.Heartbeat(m))
    }
    return len(members)
}
