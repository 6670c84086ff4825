package svc

import "errors"

// ErrNoFeedsEnabled is returned when no configured feed has a registered protocol.
var ErrNoFeedsEnabled = errors.New("no feeds enabled")

// ErrStorageInitFailed wraps any failure opening a storage backend.
var ErrStorageInitFailed = errors.New("storage initialization failed")
