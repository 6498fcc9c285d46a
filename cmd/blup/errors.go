package main

import (
	"errors"
	"fmt"

	"github.com/srg/blup/internal/peripheral"
	"github.com/srg/blup/internal/stack/goble"
	"github.com/srg/blup/pkg/config"
)

// FormatUserError renders err for the terminal, adding a hint for the
// failures a user can fix.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, goble.ErrUnsupportedDevice):
		return fmt.Sprintf("%v\nHint: blup runs on Linux (HCI) and macOS only", err)
	case errors.Is(err, peripheral.ErrStackInit):
		return fmt.Sprintf("%v\nHint: check that the Bluetooth adapter is up and that blup may use it (root or CAP_NET_ADMIN on Linux)", err)
	case errors.Is(err, config.ErrInvalidConfig):
		return fmt.Sprintf("%v\nHint: run 'blup serve --help' for the accepted settings", err)
	default:
		return err.Error()
	}
}
