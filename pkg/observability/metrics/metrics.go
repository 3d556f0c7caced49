package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    StoreKeys = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "kvcoord",
        Subsystem: "store",
        Name:      "keys",
        Help:      "Current number of keys held by the store",
    })

    StoreApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "kvcoord",
        Subsystem: "store",
        Name:      "applied_total",
        Help:      "Commands re-applied from the bus, by op",
    }, []string{"op"})

    ClientRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "kvcoord",
        Subsystem: "client",
        Name:      "requests_total",
        Help:      "Client requests handled, by verb and response",
    }, []string{"verb", "result"})

    ClientConnections = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "kvcoord",
        Subsystem: "client",
        Name:      "connections_total",
        Help:      "Total accepted client connections",
    })

    ClientFailures = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "kvcoord",
        Subsystem: "client",
        Name:      "io_failures_total",
        Help:      "Connections that ended with an I/O error",
    })

    BusPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "kvcoord",
        Subsystem: "bus",
        Name:      "published_total",
        Help:      "Events published to the bus, by kind",
    }, []string{"kind"})

    BusDropped = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "kvcoord",
        Subsystem: "bus",
        Name:      "dropped_total",
        Help:      "Events dropped from a lagging subscriber queue",
    })

    BusSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "kvcoord",
        Subsystem: "bus",
        Name:      "subscribers",
        Help:      "Number of active bus subscriptions",
    })

    ClusterMembers = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "kvcoord",
        Name:      "members_total",
        Help:      "Current length of the membership registry",
    })

    LeaderChanges = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "kvcoord",
        Name:      "leader_changes_total",
        Help:      "Total number of leader announcements applied",
    })

    ElectionProposals = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "kvcoord",
        Name:      "election_proposals_total",
        Help:      "Election proposals processed, by outcome",
    }, []string{"outcome"})

    Heartbeats = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "kvcoord",
        Name:      "heartbeats_total",
        Help:      "Heartbeat events observed by the event loop",
    })

    JournalAppends = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "kvcoord",
        Subsystem: "journal",
        Name:      "appends_total",
        Help:      "Commands appended to the on-disk journal",
    })
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(StoreKeys)
        prometheus.MustRegister(StoreApplied)
        prometheus.MustRegister(ClientRequests)
        prometheus.MustRegister(ClientConnections)
        prometheus.MustRegister(ClientFailures)
        prometheus.MustRegister(BusPublished)
        prometheus.MustRegister(BusDropped)
        prometheus.MustRegister(BusSubscribers)
        prometheus.MustRegister(ClusterMembers)
        prometheus.MustRegister(LeaderChanges)
        prometheus.MustRegister(ElectionProposals)
        prometheus.MustRegister(Heartbeats)
        prometheus.MustRegister(JournalAppends)
    })
}
