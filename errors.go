package prefstore

import "errors"

// ErrClosed is returned by operations on a store after Close.
var ErrClosed = errors.New("store is closed")

// ErrWatcherRunning is returned by Watch when a watcher is already active.
var ErrWatcherRunning = errors.New("watcher already running")
