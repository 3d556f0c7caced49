// Package coordinator assembles a node: the store, the event bus, membership
// registry, leadership cell, heartbeat emitter and client server, plus the
// optional gossip, management API and command journal. One event loop applies
// every bus event to node state.
package coordinator

import (
    "context"
    "encoding/json"
    "fmt"
    "sync"
    "sync/atomic"

    "github.com/amirimatin/kvcoord/pkg/bus"
    "github.com/amirimatin/kvcoord/pkg/election"
    "github.com/amirimatin/kvcoord/pkg/heartbeat"
    "github.com/amirimatin/kvcoord/pkg/internal/logutil"
    "github.com/amirimatin/kvcoord/pkg/kv"
    "github.com/amirimatin/kvcoord/pkg/membership"
    obsmetrics "github.com/amirimatin/kvcoord/pkg/observability/metrics"
    "github.com/amirimatin/kvcoord/pkg/server"
    "github.com/amirimatin/kvcoord/pkg/storage/journal"
)

// Node is one coordinator process. Leader election is best-effort: there is
// no term and no quorum, so concurrent partitions may each elect a leader.
type Node struct {
    opts Options

    store   *kv.Store
    bus     *bus.Bus
    reg     *membership.Registry
    cell    *election.Cell
    elector *election.Elector
    beats   *heartbeat.Emitter

    srv     *server.Server
    journal *journal.Journal

    watchers watchers
    seen     atomic.Uint64
    lagged   atomic.Uint64
    serving  atomic.Bool
    addr     atomic.Value

    mu      sync.Mutex
    started bool
    stopped bool
    cancel  context.CancelFunc
    loop    sync.WaitGroup
}

// New builds a node from validated options. It performs no network or disk
// activity; call Start to launch it.
func New(opts Options) (*Node, error) {
    if err := opts.Validate(); err != nil { return nil, err }
    n := &Node{
        opts:  opts,
        store: kv.New(),
        bus:   bus.New(opts.BusCapacity),
        reg:   membership.NewRegistry(),
        cell:  &election.Cell{},
    }
    n.elector = election.NewElector(n.cell, n.reg, n.bus, opts.Logger)
    n.beats = heartbeat.New(opts.HeartbeatInterval, n.reg, n.bus, opts.Logger)
    return n, nil
}

// Start replays the journal, subscribes the event loop, binds the client
// listener and launches the heartbeat, gossip and management components.
// A bind failure is returned and leaves nothing running.
func (n *Node) Start(ctx context.Context) (err error) {
    n.mu.Lock()
    defer n.mu.Unlock()
    if n.stopped { return ErrStopped }
    if n.started { return ErrStarted }
    obsmetrics.Register()

    runCtx, cancel := context.WithCancel(ctx)
    defer func() {
        if err != nil {
            cancel()
            n.teardown()
        }
    }()

    if n.opts.DataDir != "" {
        j, err := journal.Open(journal.Options{Dir: n.opts.DataDir, NoSync: n.opts.JournalNoSync, Logger: n.opts.Logger})
        if err != nil { return err }
        n.journal = j
        if _, err := j.Replay(n.store.Apply); err != nil { return fmt.Errorf("coordinator: replay journal: %w", err) }
    }

    // The loop must be subscribed before the first connection is accepted.
    sub := n.bus.Subscribe()
    n.loop.Add(1)
    go n.run(runCtx, sub)

    sopts := server.Options{
        Bind:      n.opts.ClientAddr,
        Store:     n.store,
        Publisher: n.bus,
        Timeout:   n.opts.Timeout,
        Logger:    n.opts.Logger,
    }
    if n.journal != nil { sopts.Journal = n.journal }
    srv, err := server.New(sopts)
    if err != nil { return err }
    if err := srv.Start(runCtx); err != nil { return err }
    n.srv = srv

    go n.beats.Run(runCtx)

    if m := n.opts.Membership; m != nil {
        if err := m.Start(runCtx); err != nil { return fmt.Errorf("coordinator: gossip: %w", err) }
        go n.gossip(runCtx, m)
        if d := n.opts.Discovery; d != nil {
            if seeds := d.Seeds(); len(seeds) > 0 {
                logutil.Infof(n.opts.Logger, "joining gossip seeds: %v", seeds)
                if err := m.Join(seeds); err != nil {
                    logutil.Warnf(n.opts.Logger, "gossip join failed: %v", err)
                }
            }
        }
    }

    if mg := n.opts.Management; mg != nil {
        if err := mg.Start(runCtx, n.statusJSON, n.Healthy); err != nil { return fmt.Errorf("coordinator: management: %w", err) }
    }

    n.cancel = cancel
    n.started = true
    n.addr.Store(srv.Addr())
    n.serving.Store(true)
    logutil.Infof(n.opts.Logger, "node serving clients on %s", srv.Addr())
    return nil
}

// Stop closes the client listener, leaves gossip, drains the event loop and
// compacts and closes the journal. It is safe to call more than once.
func (n *Node) Stop(ctx context.Context) error {
    n.mu.Lock()
    defer n.mu.Unlock()
    if n.stopped { return nil }
    n.stopped = true
    if !n.started { return nil }
    n.serving.Store(false)

    var firstErr error
    if n.srv != nil {
        if err := n.srv.Stop(ctx); err != nil { firstErr = err }
    }
    if m := n.opts.Membership; m != nil {
        _ = m.Leave()
        _ = m.Stop()
    }
    if mg := n.opts.Management; mg != nil {
        _ = mg.Stop(ctx)
    }

    // Closing the bus lets the loop apply what is queued before it exits.
    n.bus.Close()
    done := make(chan struct{})
    go func() { n.loop.Wait(); close(done) }()
    select {
    case <-done:
    case <-ctx.Done():
        logutil.Warnf(n.opts.Logger, "event loop did not drain before shutdown deadline")
    }
    n.cancel()

    if n.journal != nil {
        if n.journal.Len() > n.opts.JournalCompactAbove {
            if err := n.journal.Compact(n.store.Items()); err != nil {
                logutil.Errorf(n.opts.Logger, "journal compaction failed: %v", err)
            }
        }
        if err := n.journal.Close(); err != nil && firstErr == nil { firstErr = err }
    }
    logutil.Infof(n.opts.Logger, "node stopped")
    return firstErr
}

// teardown releases what a failed Start acquired. Callers hold n.mu.
func (n *Node) teardown() {
    if n.srv != nil { _ = n.srv.Stop(context.Background()) }
    if m := n.opts.Membership; m != nil { _ = m.Stop() }
    n.bus.Close()
    n.loop.Wait()
    if n.journal != nil { _ = n.journal.Close() }
    n.stopped = true
}

// Addr returns the bound client address once started.
func (n *Node) Addr() string {
    if a, ok := n.addr.Load().(string); ok { return a }
    return n.opts.ClientAddr
}

// Leader reports the current leader, if any.
func (n *Node) Leader() (string, bool) { return n.cell.Leader() }

// Healthy is true between a successful Start and Stop.
func (n *Node) Healthy() bool { return n.serving.Load() }

func (n *Node) Status(ctx context.Context) (*NodeStatus, error) {
    if err := ctx.Err(); err != nil { return nil, err }
    st := &NodeStatus{
        Healthy:    n.Healthy(),
        ClientAddr: n.Addr(),
        Members:    n.reg.Members(),
        Keys:       n.store.Len(),
        Heartbeats: n.seen.Load(),
        Lagged:     n.lagged.Load(),
    }
    if l, ok := n.cell.Leader(); ok {
        st.Leader = l
    } else if len(st.Members) > 0 {
        st.Warnings = append(st.Warnings, "no leader elected")
    }
    if st.Lagged > 0 {
        st.Warnings = append(st.Warnings, fmt.Sprintf("event loop missed %d events", st.Lagged))
    }
    if m := n.opts.Membership; m != nil {
        st.Gossip = m.Members()
        if hr, ok := m.(membership.HealthReporter); ok && hr.HealthScore() > 0 {
            st.Warnings = append(st.Warnings, fmt.Sprintf("gossip health score %d", hr.HealthScore()))
        }
    }
    return st, nil
}

func (n *Node) statusJSON(ctx context.Context) ([]byte, error) {
    st, err := n.Status(ctx)
    if err != nil { return nil, err }
    return json.Marshal(st)
}
