//go:build !cgo

package device

const otoAvailable = false

// NewOtoDriver is unavailable without cgo; the factory falls back to null.
func NewOtoDriver() (Driver, error) {
	return nil, errCGORequired
}
