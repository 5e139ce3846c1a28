package blobstore

import "context"

// Threshold decides between storing a payload inline and offloading it to a
// backing Store, based on size (§4.11). A nil Backend means "always inline",
// which is what the in-memory scheduler and most tests use.
type Threshold struct {
	Backend   Store
	InlineMax int64
}

// Resolve returns the location/key/inline-payload triple to persist for a
// given command payload. When the payload is offloaded, the returned
// inline string is empty.
func (t Threshold) Resolve(ctx context.Context, aggregateID string, sequenceNumber int64, payload string) (location, key, inline string, err error) {
	if t.Backend == nil || int64(len(payload)) <= t.InlineMax {
		return LocationInline, "", payload, nil
	}
	location, key, err = t.Backend.Put(ctx, aggregateID, sequenceNumber, payload)
	if err != nil {
		return "", "", "", err
	}
	return location, key, "", nil
}

// Load reverses Resolve: given the persisted location/key/inline fields, it
// returns the original payload.
func (t Threshold) Load(ctx context.Context, location, key, inline string) (string, error) {
	if location == "" || location == LocationInline {
		return inline, nil
	}
	if t.Backend == nil {
		return "", ErrBackendUnconfigured
	}
	return t.Backend.Get(ctx, location, key)
}
