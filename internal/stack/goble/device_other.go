//go:build !linux && !darwin

package goble

func newPlatformDevice(_ DeviceConfig) (Device, error) {
	return nil, ErrUnsupportedDevice
}
