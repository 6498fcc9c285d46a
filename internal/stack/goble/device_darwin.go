//go:build darwin

package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/srg/blup/internal/advert"
)

// cbDevice advertises through CoreBluetooth, which builds the packet itself:
// only the local name and service UUIDs carry over from the raw data.
type cbDevice struct {
	*darwin.Device
}

func (d cbDevice) AdvertiseRaw(ctx context.Context, ad, sr []byte) error {
	adp, err := advert.Parse(ad)
	if err != nil {
		return err
	}
	srp, err := advert.Parse(sr)
	if err != nil {
		return err
	}

	name := srp.LocalName()
	if name == "" {
		name = adp.LocalName()
	}
	var uuids []ble.UUID
	for _, u := range adp.UUID16s() {
		uuids = append(uuids, ble.UUID16(uint16(u)))
	}
	return d.AdvertiseNameAndServices(ctx, name, uuids...)
}

// CoreBluetooth exposes no connection events to peripherals; connections
// are reported on their first request.
func newPlatformDevice(_ DeviceConfig) (Device, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		return nil, err
	}
	return cbDevice{Device: dev}, nil
}
