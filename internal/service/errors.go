package service

import (
	"errors"
	"fmt"

	"clanwatch/internal/feed"
	"clanwatch/internal/storage"
)

// Error kinds exposed to transport layers. These alias the sentinels used
// deeper in the stack so handlers can match with errors.Is without
// importing storage or feed directly.
var (
	ErrInvalidInput    = storage.ErrInvalidInput
	ErrNotFound        = storage.ErrNotFound
	ErrFeedUnavailable = feed.ErrUnavailable

	// ErrStorageUnavailable marks store failures that are neither input nor
	// lookup problems, a connection loss or query failure. Transport layers
	// map it to a service-unavailable response.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// classifyStoreErr lets the input and lookup sentinels pass through and tags
// every other store failure as a storage outage.
func classifyStoreErr(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
