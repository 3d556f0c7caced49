package static

import (
    "strings"

    "github.com/amirimatin/kvcoord/pkg/discovery"
)

// Seeds is a fixed seed list.
type Seeds struct {
    list []string
}

func New(seeds ...string) *Seeds {
    return &Seeds{list: discovery.SplitList(strings.Join(seeds, ","))}
}

// FromCSV builds a list from "host:port,host:port".
func FromCSV(csv string) *Seeds { return &Seeds{list: discovery.SplitList(csv)} }

func (s *Seeds) Seeds() []string { return append([]string(nil), s.list...) }

var _ discovery.Source = (*Seeds)(nil)
