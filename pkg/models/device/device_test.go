package device

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDevice() Device {
	return Device{
		SecretKey: "secret",
		Firmware: []Firmware{
			{Type: "sensor", Version: "1.0.0", Config: "1.0.0.json", File: "firmware.bin", Next: "1.1.0"},
			{Type: "sensor", Version: "1.1.0", Config: "1.1.0.json", File: "firmware.bin"},
		},
	}
}

func TestFirmwareFor(t *testing.T) {
	testCases := []struct {
		name    string
		device  Device
		version string
		want    string
		err     error
	}{
		{"Latest when version is empty", testDevice(), "", "1.1.0", nil},
		{"Exact version", testDevice(), "1.0.0", "1.0.0", nil},
		{"Unknown version", testDevice(), "9.9.9", "", ErrVersionNotFound},
		{"No firmware", Device{SecretKey: "secret"}, "", "", ErrNoFirmware},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("Testing %s", tc.name), func(t *testing.T) {
			fw, err := tc.device.FirmwareFor(tc.version)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, fw.Version)
		})
	}
}

func TestDirectory(t *testing.T) {
	devices := Devices{"abc123": testDevice()}
	d := NewDirectory(devices)

	devices["abc123"].Firmware[0].Version = "mutated"
	delete(devices, "abc123")

	dev, ok := d.Lookup("abc123")
	require.True(t, ok)
	assert.Equal(t, "abc123", dev.Id)
	assert.Equal(t, "1.0.0", dev.Firmware[0].Version)

	secret, ok := d.Secret("abc123")
	assert.True(t, ok)
	assert.Equal(t, "secret", secret)

	_, ok = d.Secret("nope")
	assert.False(t, ok)
	assert.Equal(t, 1, d.Len())
}
