// Package blobstore implements the optional offload path for oversized
// serializedCommand payloads (§4.11). serializedCommand remains opaque to
// every other component; this package only changes where the bytes live.
package blobstore

import (
	"context"
	"errors"
)

// ErrBackendUnconfigured is returned when a command's payload was offloaded
// but no backend is configured to retrieve it (§7 "ErrBlobUnavailable").
var ErrBackendUnconfigured = errors.New("blobstore: no backend configured to resolve offloaded payload")

// Location tags where a payload's bytes actually live.
const (
	LocationInline = "inline"
	LocationS3     = "s3"
	LocationLocal  = "local"
)

// Store offloads and retrieves oversized command payloads.
type Store interface {
	// Put stores payload under a key derived from the command identity and
	// returns the location tag and key to persist alongside the command
	// row.
	Put(ctx context.Context, aggregateID string, sequenceNumber int64, payload string) (location, key string, err error)

	// Get retrieves a previously offloaded payload.
	Get(ctx context.Context, location, key string) (string, error)
}
