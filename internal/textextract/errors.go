package textextract

import "errors"

var (
	// ErrNotFound is returned when a local document path does not exist.
	ErrNotFound = errors.New("textextract: document not found")
	// ErrUnreadable is returned when a document exists but cannot be parsed.
	ErrUnreadable = errors.New("textextract: document unreadable")
	// ErrUnsupported is returned for content types this package does not extract.
	ErrUnsupported = errors.New("textextract: unsupported content type")
	// ErrNetworkError wraps a non-2xx or transport failure fetching a URL.
	ErrNetworkError = errors.New("textextract: network error")
	// ErrTimeout is returned when a fetch exceeds its deadline.
	ErrTimeout = errors.New("textextract: timeout")
)
