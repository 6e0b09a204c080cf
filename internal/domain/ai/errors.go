package ai

import "errors"

var (
	// ErrQuotaExceeded indicates a provider answered with a quota/limit error (HTTP 429 or similar).
	ErrQuotaExceeded = errors.New("ai quota exceeded")
	// ErrEmptyResponse means the provider returned no usable content.
	ErrEmptyResponse = errors.New("ai provider returned empty response")
	// ErrPayloadTooLarge means the image could not be brought under the provider upload ceiling.
	ErrPayloadTooLarge = errors.New("image exceeds provider upload limit")
)
