// Package file reads gossip seeds from a file (or glob of files), one or more
// comma-separated addresses per line with # comments. A non-empty environment
// variable, when configured, takes precedence over the file.
package file

import (
    "bufio"
    "os"
    "path/filepath"
    "strings"
    "sync"
    "time"

    "github.com/amirimatin/kvcoord/pkg/discovery"
)

type Options struct {
    Path string
    Env  string
    // Refresh bounds how long a cached read is reused; default 5s.
    Refresh time.Duration
}

type Seeds struct {
    opts Options

    mu     sync.Mutex
    loaded time.Time
    mtime  time.Time
    cache  []string
}

func New(opts Options) *Seeds {
    if opts.Refresh <= 0 { opts.Refresh = 5 * time.Second }
    return &Seeds{opts: opts}
}

func (s *Seeds) Seeds() []string {
    if s.opts.Env != "" {
        if v := strings.TrimSpace(os.Getenv(s.opts.Env)); v != "" {
            return discovery.Sorted(discovery.SplitList(v))
        }
    }
    if s.opts.Path == "" { return nil }

    s.mu.Lock()
    defer s.mu.Unlock()
    now := time.Now()
    if st, err := os.Stat(s.opts.Path); err == nil {
        if st.ModTime().After(s.mtime) || now.Sub(s.loaded) >= s.opts.Refresh {
            s.cache = discovery.Sorted(readSeeds(s.opts.Path))
            s.loaded, s.mtime = now, st.ModTime()
        }
        return append([]string(nil), s.cache...)
    }
    if matches, _ := filepath.Glob(s.opts.Path); len(matches) > 0 {
        var all []string
        for _, m := range matches { all = append(all, readSeeds(m)...) }
        s.cache = discovery.Sorted(all)
        s.loaded = now
    }
    return append([]string(nil), s.cache...)
}

func readSeeds(path string) []string {
    f, err := os.Open(path)
    if err != nil { return nil }
    defer f.Close()
    var out []string
    sc := bufio.NewScanner(f)
    for sc.Scan() {
        line := strings.TrimSpace(sc.Text())
        if line == "" || strings.HasPrefix(line, "#") { continue }
        out = append(out, discovery.SplitList(line)...)
    }
    if sc.Err() != nil { return nil }
    return out
}

var _ discovery.Source = (*Seeds)(nil)
