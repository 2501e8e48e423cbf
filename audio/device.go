package audio

import (
	"fmt"
	"strings"
)

// ResolveDevice picks the capture device for a session. A non-empty name
// matches a device ID or name exactly, then case-insensitively as a
// substring. Otherwise card 0 device 0 means the backend default (nil) and
// any other pair must appear in a device ID or name as "hw:C,D".
func ResolveDevice(ctx Context, name string, cfg CaptureConfig) (*DeviceInfo, error) {
	if name == "" && cfg.Card == 0 && cfg.Device == 0 {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: list devices: %w", ErrDevice, err)
	}

	if name != "" {
		for i := range devices {
			if devices[i].ID == name || devices[i].Name == name {
				return &devices[i], nil
			}
		}
		lower := strings.ToLower(name)
		for i := range devices {
			if strings.Contains(strings.ToLower(devices[i].Name), lower) {
				return &devices[i], nil
			}
		}
		return nil, fmt.Errorf("%w: no capture device matches %q", ErrDevice, name)
	}

	addr := cfg.Address()
	for i := range devices {
		if strings.Contains(devices[i].ID, addr) || strings.Contains(devices[i].Name, addr) {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no capture device at %s", ErrDevice, addr)
}
