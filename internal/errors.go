package internal

import "errors"

var (
	ErrNotConfigured     = errors.New("provider not configured")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrNoContent         = errors.New("no content found")
	ErrEmbedderMismatch  = errors.New("index was built with a different embedder")
	ErrIndexCorrupt      = errors.New("index is corrupt")
	ErrNoEmbedder        = errors.New("embedder not available")
	ErrVisionUnsupported = errors.New("backend cannot read images")
)
