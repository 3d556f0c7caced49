// Package election implements the bully-style leader election run over the
// bus. Candidates are ordered by the text of their address; there are no
// terms and no quorum, so a later, greater address always deposes the current
// leader. This is best effort and not split-brain safe.
package election

import (
    "log"

    "github.com/amirimatin/kvcoord/pkg/bus"
    "github.com/amirimatin/kvcoord/pkg/internal/logutil"
    "github.com/amirimatin/kvcoord/pkg/membership"
    obsmetrics "github.com/amirimatin/kvcoord/pkg/observability/metrics"
)

// Elector applies membership and election events to the registry and the
// leadership cell. Registry and cell are locked independently; no method
// holds both at once.
type Elector struct {
    cell   *Cell
    reg    *membership.Registry
    pub    bus.Publisher
    logger *log.Logger
}

func NewElector(cell *Cell, reg *membership.Registry, pub bus.Publisher, logger *log.Logger) *Elector {
    if logger == nil { logger = log.Default() }
    return &Elector{cell: cell, reg: reg, pub: pub, logger: logger}
}

// OnNodeJoined records addr and, when nobody leads yet, proposes it.
func (e *Elector) OnNodeJoined(addr string) {
    e.reg.Add(addr)
    if _, ok := e.cell.Leader(); !ok {
        e.pub.Publish(bus.ElectionProposal(addr))
    }
}

// OnProposal accepts addr when the cell is empty or addr outranks the
// current leader, then announces it. It reports whether addr won.
func (e *Elector) OnProposal(addr string) bool {
    if !e.cell.challenge(addr) {
        obsmetrics.ElectionProposals.WithLabelValues("rejected").Inc()
        logutil.Debugf(e.logger, "election proposal rejected: %s", addr)
        return false
    }
    obsmetrics.ElectionProposals.WithLabelValues("accepted").Inc()
    e.pub.Publish(bus.LeaderAnnounced(addr))
    return true
}

// OnLeader assigns the cell unconditionally.
func (e *Elector) OnLeader(addr string) {
    e.cell.Set(addr)
    obsmetrics.LeaderChanges.Inc()
}

// OnMemberLost removes every registry entry for addr. If addr was leading,
// the cell is cleared and the greatest remaining member is proposed. It
// returns the number of entries removed.
func (e *Elector) OnMemberLost(addr string) int {
    n := e.reg.Remove(addr)
    if n == 0 || !e.cell.clearIf(addr) { return n }
    logutil.Warnf(e.logger, "leader %s departed; re-running election", addr)
    if next, ok := greatest(e.reg.Members()); ok {
        e.pub.Publish(bus.ElectionProposal(next))
    }
    return n
}

// Leader exposes the current cell value.
func (e *Elector) Leader() (string, bool) { return e.cell.Leader() }

func greatest(addrs []string) (string, bool) {
    if len(addrs) == 0 { return "", false }
    best := addrs[0]
    for _, a := range addrs[1:] {
        if Outranks(a, best) { best = a }
    }
    return best, true
}
