package asc

import (
	"errors"
	"fmt"
)

// ErrNoTerritories is returned when the territory list comes back empty, so
// global availability cannot be set.
var ErrNoTerritories = errors.New("no territories available")

// APIError is returned for any App Store Connect response with status >= 400.
// The raw body is kept for diagnostics; the message stays generic.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed: %d", e.StatusCode)
}

// UploadError is returned when a presigned upload chunk is rejected.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed: %d", e.StatusCode)
}

// MissingAssetError is returned when the screenshot file does not exist.
type MissingAssetError struct {
	Path string
}

func (e *MissingAssetError) Error() string {
	return fmt.Sprintf("screenshot file not found: %s", e.Path)
}

// KeyReadError is returned when the private key is missing, unreadable or not
// a P-256 EC key.
type KeyReadError struct {
	Path string
	Err  error
}

func (e *KeyReadError) Error() string {
	return fmt.Sprintf("reading private key %s: %v", e.Path, e.Err)
}

func (e *KeyReadError) Unwrap() error {
	return e.Err
}

// EncodingError is returned when token claims cannot be serialized or signed.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding token: %v", e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP status from an APIError or UploadError in err's
// chain. It returns 0 when there is none.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	var upErr *UploadError
	if errors.As(err, &upErr) {
		return upErr.StatusCode
	}
	return 0
}
