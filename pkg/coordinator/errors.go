package coordinator

import "errors"

var (
    ErrStarted    = errors.New("coordinator: already started")
    ErrStopped    = errors.New("coordinator: stopped")
    ErrNotStarted = errors.New("coordinator: not started")
)
