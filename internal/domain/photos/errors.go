package photos

import "errors"

var (
	// ErrNotFound is returned by single-row repository getters when nothing matches.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the requester does not own the photo.
	ErrForbidden = errors.New("photo belongs to another user")
	// ErrNoImageData means neither the cache nor the blob store had bytes.
	ErrNoImageData = errors.New("no image data available")
)
