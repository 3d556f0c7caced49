package memberlist

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "net"
    "strconv"
    "sync"
    "time"

    "github.com/hashicorp/memberlist"

    "github.com/amirimatin/kvcoord/pkg/internal/logutil"
    base "github.com/amirimatin/kvcoord/pkg/membership"
)

// Options configures gossip discovery.
type Options struct {
    // NodeID is the unique gossip name of this node.
    NodeID string
    // Bind is the gossip bind address (host:port, port 0 picks a free one).
    Bind string
    // Advertise optionally overrides the address peers use to reach us.
    Advertise string
    // ClientAddr is advertised in metadata so peers can register our client endpoint.
    ClientAddr string
    Logger     *log.Logger

    // Zero means memberlist LAN defaults.
    ProbeInterval time.Duration
    ProbeTimeout  time.Duration
    SuspicionMult int
}

// impl implements base.Membership using HashiCorp memberlist.
type impl struct {
    mu     sync.RWMutex
    opts   Options
    ml     *memberlist.Memberlist
    evts   chan base.Event
    closed bool
}

func New(opts Options) (base.Membership, error) {
    if opts.NodeID == "" {
        return nil, fmt.Errorf("memberlist: empty NodeID")
    }
    if opts.Bind == "" {
        return nil, fmt.Errorf("memberlist: empty Bind address")
    }
    if opts.Logger == nil { opts.Logger = log.Default() }
    return &impl{opts: opts, evts: make(chan base.Event, 64)}, nil
}

func (m *impl) Start(ctx context.Context) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.ml != nil { return nil }
    if m.closed { return fmt.Errorf("memberlist: stopped") }

    cfg := memberlist.DefaultLANConfig()
    cfg.Name = m.opts.NodeID
    host, port, err := splitHostPort(m.opts.Bind)
    if err != nil { return fmt.Errorf("memberlist: invalid bind address %q: %w", m.opts.Bind, err) }
    cfg.BindAddr, cfg.BindPort = host, port
    if m.opts.Advertise != "" {
        ahost, aport, err := splitHostPort(m.opts.Advertise)
        if err != nil { return fmt.Errorf("memberlist: invalid advertise address %q: %w", m.opts.Advertise, err) }
        cfg.AdvertiseAddr, cfg.AdvertisePort = ahost, aport
    }
    if m.opts.ProbeInterval > 0 { cfg.ProbeInterval = m.opts.ProbeInterval }
    if m.opts.ProbeTimeout > 0 { cfg.ProbeTimeout = m.opts.ProbeTimeout }
    if m.opts.SuspicionMult > 0 { cfg.SuspicionMult = m.opts.SuspicionMult }
    cfg.LogOutput = m.opts.Logger.Writer()

    meta := map[string]string{}
    if m.opts.ClientAddr != "" { meta[base.MetaClientAddr] = m.opts.ClientAddr }
    metaBytes, err := json.Marshal(meta)
    if err != nil { return err }
    cfg.Events = &eventDelegate{self: m.opts.NodeID, emit: m.emit}
    cfg.Delegate = &nodeDelegate{meta: metaBytes}

    ml, err := memberlist.Create(cfg)
    if err != nil { return fmt.Errorf("memberlist: create: %w", err) }
    m.ml = ml
    logutil.Infof(m.opts.Logger, "gossip started: id=%s addr=%s", m.opts.NodeID, toMember(ml.LocalNode()).Addr)

    go func() {
        <-ctx.Done()
        _ = m.Stop()
    }()
    return nil
}

func (m *impl) Join(seeds []string) error {
    m.mu.RLock()
    ml := m.ml
    m.mu.RUnlock()
    if ml == nil { return fmt.Errorf("memberlist: not started") }
    if len(seeds) == 0 { return nil }
    n, err := ml.Join(seeds)
    if err != nil { return fmt.Errorf("memberlist: join %v: %w", seeds, err) }
    logutil.Infof(m.opts.Logger, "gossip joined %d of %d seeds", n, len(seeds))
    return nil
}

func (m *impl) Local() base.MemberInfo {
    m.mu.RLock()
    defer m.mu.RUnlock()
    if m.ml == nil { return base.MemberInfo{} }
    return toMember(m.ml.LocalNode())
}

func (m *impl) Members() []base.MemberInfo {
    m.mu.RLock()
    defer m.mu.RUnlock()
    if m.ml == nil { return nil }
    nodes := m.ml.Members()
    out := make([]base.MemberInfo, 0, len(nodes))
    for _, n := range nodes { out = append(out, toMember(n)) }
    return out
}

func (m *impl) Events() <-chan base.Event { return m.evts }

func (m *impl) Leave() error {
    m.mu.RLock()
    ml := m.ml
    m.mu.RUnlock()
    if ml == nil { return nil }
    return ml.Leave(time.Second)
}

func (m *impl) Stop() error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.closed { return nil }
    m.closed = true
    if m.ml != nil {
        _ = m.ml.Shutdown()
        m.ml = nil
    }
    close(m.evts)
    return nil
}

// HealthScore implements membership.HealthReporter.
func (m *impl) HealthScore() int {
    m.mu.RLock()
    defer m.mu.RUnlock()
    if m.ml == nil { return -1 }
    return m.ml.GetHealthScore()
}

func (m *impl) emit(e base.Event) {
    // callbacks may race with Stop closing the channel
    defer func() { recover() }()
    select {
    case m.evts <- e:
    default:
        logutil.Warnf(m.opts.Logger, "gossip: dropping %s event for %s: channel full", e.Type, e.Member.ID)
    }
}

// eventDelegate translates memberlist callbacks. Our own node is skipped: the
// local client listener is not a peer.
type eventDelegate struct {
    self string
    emit func(e base.Event)
}

func (d *eventDelegate) NotifyJoin(n *memberlist.Node) {
    if n == nil || n.Name == d.self { return }
    d.emit(base.Event{Type: base.EventJoin, Member: toMember(n), At: time.Now()})
}

func (d *eventDelegate) NotifyLeave(n *memberlist.Node) {
    if n == nil || n.Name == d.self { return }
    // memberlist reports dead nodes through NotifyLeave as well
    typ := base.EventLeave
    if n.State == memberlist.StateDead { typ = base.EventFailed }
    d.emit(base.Event{Type: typ, Member: toMember(n), At: time.Now()})
}

// NotifyUpdate is metadata churn only; membership is unchanged.
func (d *eventDelegate) NotifyUpdate(*memberlist.Node) {}

func toMember(n *memberlist.Node) base.MemberInfo {
    meta := map[string]string{}
    if len(n.Meta) > 0 { _ = json.Unmarshal(n.Meta, &meta) }
    return base.MemberInfo{ID: n.Name, Addr: net.JoinHostPort(n.Addr.String(), strconv.Itoa(int(n.Port))), Meta: meta}
}

func splitHostPort(addr string) (string, int, error) {
    host, ps, err := net.SplitHostPort(addr)
    if err != nil { return "", 0, err }
    p, err := strconv.Atoi(ps)
    if err != nil || p < 0 || p > 65535 { return "", 0, fmt.Errorf("invalid port: %q", ps) }
    return host, p, nil
}

// nodeDelegate propagates static metadata (the client address).
type nodeDelegate struct{ meta []byte }

func (d *nodeDelegate) NodeMeta(limit int) []byte {
    if len(d.meta) <= limit { return d.meta }
    return nil
}

func (d *nodeDelegate) NotifyMsg([]byte)                       {}
func (d *nodeDelegate) GetBroadcasts(int, int) [][]byte        { return nil }
func (d *nodeDelegate) LocalState(join bool) []byte            { return nil }
func (d *nodeDelegate) MergeRemoteState(buf []byte, join bool) {}
