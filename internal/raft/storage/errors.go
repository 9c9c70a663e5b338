package storage

import "errors"

// ErrClosed is returned by a store used after Close
var ErrClosed = errors.New("stable store is closed")
