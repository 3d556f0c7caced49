// Package protocol implements the plain-text client protocol: one request line
// per connection, answered by one response line.
//
//    GET <key>          ->  OK <value> | NOT FOUND
//    PUT <key> <value>  ->  OK
//    DEL <key>          ->  OK
//    anything else      ->  ERROR
package protocol

import (
    "errors"
    "strings"

    "github.com/amirimatin/kvcoord/pkg/kv"
)

const (
    VerbGet = "GET"
    VerbPut = "PUT"
    VerbDel = "DEL"
)

// Responses, newline-terminated as written on the wire.
const (
    RespOK       = "OK\n"
    RespNotFound = "NOT FOUND\n"
    RespError    = "ERROR\n"
)

var ErrMalformed = errors.New("protocol: malformed request")

// Request is a parsed client line.
type Request struct {
    Verb    string
    Command kv.Command
}

// Parse splits a request line on single spaces. Surrounding whitespace
// (including the trailing newline) is ignored; repeated inner spaces produce
// empty tokens and therefore a malformed request.
func Parse(line string) (Request, error) {
    parts := strings.Split(strings.TrimSpace(line), " ")
    switch {
    case len(parts) == 2 && parts[0] == VerbGet && parts[1] != "":
        return Request{Verb: VerbGet, Command: kv.Get(parts[1])}, nil
    case len(parts) == 3 && parts[0] == VerbPut && parts[1] != "" && parts[2] != "":
        return Request{Verb: VerbPut, Command: kv.Put(parts[1], parts[2])}, nil
    case len(parts) == 2 && parts[0] == VerbDel && parts[1] != "":
        return Request{Verb: VerbDel, Command: kv.Delete(parts[1])}, nil
    }
    return Request{}, ErrMalformed
}

// Encode renders a command as a request line (used by clients).
func Encode(cmd kv.Command) (string, error) {
    if cmd.Key == "" || strings.ContainsAny(cmd.Key, " \r\n") || strings.ContainsAny(cmd.Value, " \r\n") {
        return "", ErrMalformed
    }
    switch cmd.Op {
    case kv.OpGet:
        return VerbGet + " " + cmd.Key + "\n", nil
    case kv.OpPut:
        if cmd.Value == "" { return "", ErrMalformed }
        return VerbPut + " " + cmd.Key + " " + cmd.Value + "\n", nil
    case kv.OpDelete:
        return VerbDel + " " + cmd.Key + "\n", nil
    }
    return "", ErrMalformed
}

func OKValue(value string) string { return "OK " + value + "\n" }

// Response is a decoded server reply.
type Response struct {
    OK       bool
    NotFound bool
    Value    string
}

// ParseResponse decodes a reply line. ERROR and unknown lines report ErrMalformed.
func ParseResponse(line string) (Response, error) {
    line = strings.TrimRight(line, "\r\n")
    switch {
    case line == "OK":
        return Response{OK: true}, nil
    case line == "NOT FOUND":
        return Response{NotFound: true}, nil
    case strings.HasPrefix(line, "OK "):
        return Response{OK: true, Value: strings.TrimPrefix(line, "OK ")}, nil
    }
    return Response{}, ErrMalformed
}
