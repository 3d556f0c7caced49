package coordinator

import (
    "context"
    "errors"
    "time"

    "github.com/amirimatin/kvcoord/pkg/bus"
    "github.com/amirimatin/kvcoord/pkg/internal/logutil"
    "github.com/amirimatin/kvcoord/pkg/membership"
    obsmetrics "github.com/amirimatin/kvcoord/pkg/observability/metrics"
)

// run is the event loop. It owns sub for its whole life and ends only when the
// bus is closed or ctx is done; a lag report is logged and skipped.
func (n *Node) run(ctx context.Context, sub *bus.Subscription) {
    defer n.loop.Done()
    defer sub.Close()
    for {
        ev, err := sub.Recv(ctx)
        if err != nil {
            var lag *bus.LaggedError
            if errors.As(err, &lag) {
                n.lagged.Add(lag.Missed)
                logutil.Warnf(n.opts.Logger, "event loop lagged, %d events missed", lag.Missed)
                continue
            }
            return
        }
        n.apply(ev)
    }
}

func (n *Node) apply(ev bus.Event) {
    switch ev.Kind {
    case bus.KindCommand:
        if err := n.store.Apply(ev.Command); err != nil {
            logutil.Errorf(n.opts.Logger, "apply %s: %v", ev.Command, err)
            return
        }
        n.watchers.publish(Event{Type: EventCommand, At: ev.At, Command: ev.Command})
    case bus.KindJoined:
        n.elector.OnNodeJoined(ev.Addr)
        logutil.Infof(n.opts.Logger, "node joined: %s", ev.Addr)
        n.watchers.publish(Event{Type: EventMemberJoined, At: ev.At, Addr: ev.Addr})
    case bus.KindLost:
        if removed := n.elector.OnMemberLost(ev.Addr); removed > 0 {
            logutil.Infof(n.opts.Logger, "node removed: %s", ev.Addr)
            n.watchers.publish(Event{Type: EventMemberLost, At: ev.At, Addr: ev.Addr})
        }
    case bus.KindElection:
        n.elector.OnProposal(ev.Addr)
    case bus.KindLeader:
        n.elector.OnLeader(ev.Addr)
        logutil.Infof(n.opts.Logger, "leader elected: %s", ev.Addr)
        n.watchers.publish(Event{Type: EventLeaderChanged, At: ev.At, Addr: ev.Addr})
    case bus.KindHeart:
        n.seen.Add(1)
        obsmetrics.Heartbeats.Inc()
        logutil.Debugf(n.opts.Logger, "heartbeat: %s", ev.Addr)
    default:
        logutil.Warnf(n.opts.Logger, "unknown event kind %q", ev.Kind)
    }
}

// gossip turns membership changes into bus events keyed by the peer's client
// address, so they share the connection-driven join and shrink paths.
func (n *Node) gossip(ctx context.Context, m membership.Membership) {
    evs := m.Events()
    for {
        select {
        case <-ctx.Done():
            return
        case e, ok := <-evs:
            if !ok { return }
            addr := e.Member.ClientAddr()
            switch e.Type {
            case membership.EventJoin:
                n.bus.Publish(bus.NodeJoined(addr))
            case membership.EventLeave, membership.EventFailed:
                n.bus.Publish(bus.NodeLost(addr))
            }
            logutil.Debugf(n.opts.Logger, "gossip %s: %s (%s) at %s", e.Type, e.Member.ID, addr, e.At.Format(time.RFC3339))
        }
    }
}
