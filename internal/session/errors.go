package session

import "errors"

// ErrDisposed is returned by Acquire after the manager has been disposed.
var ErrDisposed = errors.New("session manager disposed")
