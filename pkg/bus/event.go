package bus

import (
    "fmt"
    "time"

    "github.com/amirimatin/kvcoord/pkg/kv"
)

type Kind string

const (
    KindCommand  Kind = "command"
    KindJoined   Kind = "node_joined"
    KindLost     Kind = "node_lost"
    KindElection Kind = "election"
    KindLeader   Kind = "leader"
    KindHeart    Kind = "heartbeat"
)

// Event is a control-plane message. Command events carry Command; every other
// kind carries a peer address in Addr.
type Event struct {
    Kind    Kind
    Command kv.Command
    Addr    string
    At      time.Time
}

func CommandEvent(cmd kv.Command) Event { return Event{Kind: KindCommand, Command: cmd, At: time.Now()} }
func NodeJoined(addr string) Event      { return Event{Kind: KindJoined, Addr: addr, At: time.Now()} }
func NodeLost(addr string) Event        { return Event{Kind: KindLost, Addr: addr, At: time.Now()} }
func ElectionProposal(addr string) Event { return Event{Kind: KindElection, Addr: addr, At: time.Now()} }
func LeaderAnnounced(addr string) Event { return Event{Kind: KindLeader, Addr: addr, At: time.Now()} }
func Heartbeat(addr string) Event       { return Event{Kind: KindHeart, Addr: addr, At: time.Now()} }

func (e Event) String() string {
    if e.Kind == KindCommand {
        return fmt.Sprintf("%s(%s)", e.Kind, e.Command)
    }
    return fmt.Sprintf("%s(%s)", e.Kind, e.Addr)
}
