package device

import (
	"errors"
	"fmt"
	"log/slog"
)

// Factory errors
var (
	ErrInvalidDriverType    = errors.New("invalid driver type")
	ErrDriverCreationFailed = errors.New("driver creation failed")
)

// DriverFactory creates Driver instances based on configuration.
type DriverFactory interface {
	CreateDriver(driverType string) (Driver, error)
	SupportedDrivers() []string
	IsValidDriverType(driverType string) bool
}

// DefaultDriverFactory implements DriverFactory with build-aware selection.
type DefaultDriverFactory struct{}

// NewDriverFactory creates a new DefaultDriverFactory.
func NewDriverFactory() *DefaultDriverFactory {
	return &DefaultDriverFactory{}
}

// CreateDriver creates a Driver instance of the given type. An empty type
// defaults to "auto".
func (f *DefaultDriverFactory) CreateDriver(driverType string) (Driver, error) {
	if driverType == "" {
		driverType = "auto"
	}

	slog.Debug("creating output driver", "type", driverType)

	switch driverType {
	case "auto":
		return f.createAutoDriver()
	case "malgo":
		drv, err := NewMalgoDriver()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDriverCreationFailed, err)
		}
		return drv, nil
	case "oto":
		drv, err := NewOtoDriver()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDriverCreationFailed, err)
		}
		return drv, nil
	case "null":
		return NewNullDriver(), nil
	default:
		slog.Error("invalid driver type requested", "type", driverType)
		return nil, fmt.Errorf("%w: %s", ErrInvalidDriverType, driverType)
	}
}

// createAutoDriver prefers malgo for device switching and enumeration, then
// oto. Both need cgo, so builds without it get the null driver.
func (f *DefaultDriverFactory) createAutoDriver() (Driver, error) {
	if malgoAvailable {
		drv, err := NewMalgoDriver()
		if err == nil {
			slog.Debug("auto-detection selected malgo driver")
			return drv, nil
		}
		slog.Warn("malgo driver unavailable, falling back to oto", "error", err)
	}
	if otoAvailable {
		drv, err := NewOtoDriver()
		if err == nil {
			slog.Debug("auto-detection selected oto driver")
			return drv, nil
		}
		slog.Warn("oto driver unavailable", "error", err)
	}
	slog.Warn("no hardware output driver in this build, using null driver")
	return NewNullDriver(), nil
}

// SupportedDrivers returns all driver types this factory can create.
func (f *DefaultDriverFactory) SupportedDrivers() []string {
	return []string{"auto", "malgo", "oto", "null"}
}

// IsValidDriverType checks if a driver type is supported. Empty is valid
// and defaults to auto.
func (f *DefaultDriverFactory) IsValidDriverType(driverType string) bool {
	if driverType == "" {
		return true
	}
	for _, supported := range f.SupportedDrivers() {
		if driverType == supported {
			return true
		}
	}
	return false
}
