//go:build !cgo

package device

import "errors"

const malgoAvailable = false

var errCGORequired = errors.New("this driver requires a CGO-enabled build; only the null driver is available")

// NewMalgoDriver is unavailable without cgo; the factory falls back.
func NewMalgoDriver() (Driver, error) {
	return nil, errCGORequired
}
