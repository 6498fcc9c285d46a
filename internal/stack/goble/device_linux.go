//go:build linux

package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/evt"
)

// hciDevice sends raw advertising and scan response data to the controller,
// leaving the payload exactly as built.
type hciDevice struct {
	*linux.Device
}

func (d hciDevice) AdvertiseRaw(ctx context.Context, ad, sr []byte) error {
	if err := d.HCI.SetAdvertisement(ad, sr); err != nil {
		return err
	}
	if err := d.HCI.Advertise(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-d.HCI.Done():
		return d.HCI.Error()
	}
	_ = d.HCI.StopAdvertising()
	return ctx.Err()
}

func newPlatformDevice(cfg DeviceConfig) (Device, error) {
	dev, err := linux.NewDevice(
		ble.OptDeviceID(cfg.HCI),
		ble.OptConnectHandler(func(e evt.LEConnectionComplete) {
			if cfg.OnConnect != nil {
				cfg.OnConnect(e.ConnectionHandle(), formatPeer(e.PeerAddress()), e.Status())
			}
		}),
		ble.OptDisconnectHandler(func(e evt.DisconnectionComplete) {
			if cfg.OnDisconnect != nil {
				cfg.OnDisconnect(e.ConnectionHandle(), e.Reason())
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	return hciDevice{Device: dev}, nil
}
