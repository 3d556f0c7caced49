package kv

import "fmt"

// Op identifies the kind of a Command.
type Op string

const (
    OpPut    Op = "put"
    OpGet    Op = "get"
    OpDelete Op = "delete"
)

// Command is a store operation. Only Put and Delete are ever replicated; Get
// is answered synchronously by the connection that asked for it.
type Command struct {
    Op    Op     `json:"op"`
    Key   string `json:"key"`
    Value string `json:"value,omitempty"`
}

func Put(key, value string) Command { return Command{Op: OpPut, Key: key, Value: value} }
func Get(key string) Command        { return Command{Op: OpGet, Key: key} }
func Delete(key string) Command     { return Command{Op: OpDelete, Key: key} }

// Mutates reports whether applying the command changes store state.
func (c Command) Mutates() bool { return c.Op == OpPut || c.Op == OpDelete }

func (c Command) String() string {
    switch c.Op {
    case OpPut:
        return fmt.Sprintf("PUT %s %s", c.Key, c.Value)
    case OpGet:
        return fmt.Sprintf("GET %s", c.Key)
    case OpDelete:
        return fmt.Sprintf("DEL %s", c.Key)
    default:
        return fmt.Sprintf("%s %s", c.Op, c.Key)
    }
}
