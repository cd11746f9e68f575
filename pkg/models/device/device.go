package device

import "errors"

var (
	ErrDeviceNotFound  = errors.New("device not found")
	ErrVersionNotFound = errors.New("firmware version not found")
	ErrNoFirmware      = errors.New("device has no firmware")
)

type Firmware struct {
	Type    string `json:"type"`
	Version string `json:"version"`
	Config  string `json:"config"`
	File    string `json:"file"`
	Next    string `json:"next,omitempty"`
}

type Device struct {
	Id        string     `json:"-"`
	SecretKey string     `json:"secretKey"`
	Firmware  []Firmware `json:"firmware"`
}

// Devices is keyed by device id, the same shape as devices.json.
type Devices map[string]Device

// Latest returns the newest firmware of the catalogue, which is the last entry.
func (d Device) Latest() (Firmware, error) {
	if len(d.Firmware) == 0 {
		return Firmware{}, ErrNoFirmware
	}
	return d.Firmware[len(d.Firmware)-1], nil
}

// FirmwareFor returns the firmware matching version, or the newest one when version is empty.
func (d Device) FirmwareFor(version string) (Firmware, error) {
	if version == "" {
		return d.Latest()
	}
	for _, fw := range d.Firmware {
		if fw.Version == version {
			return fw, nil
		}
	}
	return Firmware{}, ErrVersionNotFound
}

// Directory is the read-only device catalogue built once at startup.
type Directory struct {
	devices Devices
}

func NewDirectory(devices Devices) *Directory {
	copied := make(Devices, len(devices))
	for id, d := range devices {
		d.Id = id
		fw := make([]Firmware, len(d.Firmware))
		copy(fw, d.Firmware)
		d.Firmware = fw
		copied[id] = d
	}
	return &Directory{devices: copied}
}

func (d *Directory) Lookup(id string) (Device, bool) {
	dev, ok := d.devices[id]
	return dev, ok
}

// Secret returns the shared HMAC key of a device.
func (d *Directory) Secret(id string) (string, bool) {
	dev, ok := d.devices[id]
	if !ok {
		return "", false
	}
	return dev.SecretKey, true
}

func (d *Directory) Len() int {
	return len(d.devices)
}
