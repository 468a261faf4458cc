package binance

import "errors"

// Fatal conditions that callers should not retry around.
var (
	// ErrTimeout signals the exchange did not answer within the HTTP timeout.
	ErrTimeout = errors.New("binance: request timed out")

	// ErrRestricted signals an HTTP 451 geo-restriction response.
	ErrRestricted = errors.New("binance: service unavailable from this region (451)")

	// ErrRateLimited signals the request budget is exhausted even after retries.
	ErrRateLimited = errors.New("binance: rate limited")

	// ErrNoAssets signals the ticker listing produced no usable symbols.
	ErrNoAssets = errors.New("binance: no assets matched the volume filter")
)

// APIError carries the exchange's error payload for non-2xx responses.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "binance: API error"
}
