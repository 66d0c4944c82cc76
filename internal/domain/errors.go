package domain

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limited")
	ErrLockHeld    = errors.New("lock already held")
	ErrUnavailable = errors.New("feature unavailable")

	// ErrTransport covers non-success HTTP statuses and network failures
	// while talking to the market data provider.
	ErrTransport = errors.New("market data transport error")

	// ErrParse is returned when the provider's response body is not the
	// expected list of assets.
	ErrParse = errors.New("market data parse error")

	// ErrStaleResponse marks a fetch result that was discarded because a
	// newer fetch had been started before it completed.
	ErrStaleResponse = errors.New("stale market data response")
)
