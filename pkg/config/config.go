// Package config loads the node's YAML configuration file. $VAR and ${VAR}
// references are expanded from the environment before parsing and every
// referenced variable must be set.
package config

import (
    "bytes"
    "errors"
    "fmt"
    "io"
    "os"
    "time"

    "gopkg.in/yaml.v3"
)

type File struct {
    Node       Node       `yaml:"node"`
    Heartbeat  Heartbeat  `yaml:"heartbeat"`
    Gossip     Gossip     `yaml:"gossip"`
    Management Management `yaml:"management"`
    Storage    Storage    `yaml:"storage"`
    Log        Log        `yaml:"log"`
    Tracing    Tracing    `yaml:"tracing"`
}

type Node struct {
    ClientAddr  string        `yaml:"client_addr"`
    Timeout     time.Duration `yaml:"timeout"`
    BusCapacity int           `yaml:"bus_capacity"`
}

type Heartbeat struct {
    Interval time.Duration `yaml:"interval"`
}

type Gossip struct {
    NodeID    string   `yaml:"node_id"`
    Bind      string   `yaml:"bind"`
    Advertise string   `yaml:"advertise"`
    Discovery string   `yaml:"discovery"`
    Seeds     []string `yaml:"seeds"`
    SeedsFile string   `yaml:"seeds_file"`
    SeedsEnv  string   `yaml:"seeds_env"`
}

type Management struct {
    Addr  string `yaml:"addr"`
    Proto string `yaml:"proto"`
}

type Storage struct {
    DataDir      string `yaml:"data_dir"`
    NoSync       bool   `yaml:"no_sync"`
    CompactAbove int    `yaml:"compact_above"`
}

type Log struct {
    Level  string `yaml:"level"`
    Format string `yaml:"format"`
}

type Tracing struct {
    Enabled bool `yaml:"enabled"`
}

// ExpandEnvStrict substitutes ${VAR} and $VAR references and fails on the
// first unset one. A variable set to the empty string is accepted.
func ExpandEnvStrict(s string) (string, error) {
    var missing string
    out := os.Expand(s, func(name string) string {
        v, ok := os.LookupEnv(name)
        if !ok && missing == "" { missing = name }
        return v
    })
    if missing != "" {
        return "", fmt.Errorf("environment variable %s is not set", missing)
    }
    return out, nil
}

// Load reads, expands and parses path. Unknown keys are rejected.
func Load(path string) (*File, error) {
    raw, err := os.ReadFile(path)
    if err != nil { return nil, fmt.Errorf("config: read file: %w", err) }
    return Parse(raw)
}

func Parse(raw []byte) (*File, error) {
    expanded, err := ExpandEnvStrict(string(raw))
    if err != nil { return nil, fmt.Errorf("config: %w", err) }
    var f File
    dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
    dec.KnownFields(true)
    if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
        return nil, fmt.Errorf("config: parse: %w", err)
    }
    if err := f.Validate(); err != nil { return nil, err }
    return &f, nil
}

func (f *File) Validate() error {
    switch f.Management.Proto {
    case "", "http", "grpc":
    default:
        return fmt.Errorf("config: management.proto must be http or grpc, got %q", f.Management.Proto)
    }
    switch f.Gossip.Discovery {
    case "", "static", "file":
    default:
        return fmt.Errorf("config: gossip.discovery must be static or file, got %q", f.Gossip.Discovery)
    }
    if f.Node.Timeout < 0 || f.Heartbeat.Interval < 0 {
        return errors.New("config: durations must not be negative")
    }
    if f.Storage.CompactAbove < 0 {
        return errors.New("config: storage.compact_above must not be negative")
    }
    return nil
}
