package api

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/lamassuiot/providore/pkg/models/device"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckUpdate(t *testing.T) {
	directory := device.NewDirectory(device.Devices{
		"abc123": {
			SecretKey: "secret",
			Firmware: []device.Firmware{
				{Type: "sensor", Version: "1.0.0", Next: "1.1.0"},
				{Type: "sensor", Version: "1.1.0", Next: "3.0.0"},
				{Type: "sensor", Version: "2.0.0"},
			},
		},
	})
	srv := NewProvidoreService(directory, &fakeIssuer{store: t.TempDir()}, Stores{}, log.NewNopLogger())
	ctx := context.Background()

	testCases := []struct {
		name    string
		device  string
		version string
		next    string
		err     error
	}{
		{"Next version", "abc123", "1.0.0", "1.1.0", nil},
		{"Dangling next version", "abc123", "1.1.0", "", device.ErrVersionNotFound},
		{"Latest version", "abc123", "2.0.0", "", ErrNoUpdate},
		{"Unknown version", "abc123", "0.0.1", "", device.ErrVersionNotFound},
		{"Empty version", "abc123", "", "", device.ErrVersionNotFound},
		{"Unknown device", "xyz789", "1.0.0", "", device.ErrDeviceNotFound},
		{"No device", "", "1.0.0", "", ErrUnauthenticated},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("Testing %s", tc.name), func(t *testing.T) {
			next, err := srv.CheckUpdate(ctx, tc.device, tc.version)
			if tc.err != nil {
				assert.True(t, errors.Is(err, tc.err), "Got result is %s; want %s", err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.next, next)
		})
	}
}

func TestGetCRLMissing(t *testing.T) {
	srv := NewProvidoreService(device.NewDirectory(nil), nil, Stores{CRLFile: filepath.Join(t.TempDir(), "crl.pem")}, log.NewNopLogger())
	_, err := srv.GetCRL(context.Background())
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestCodeFrom(t *testing.T) {
	testCases := []struct {
		err  error
		code int
	}{
		{device.ErrDeviceNotFound, 404},
		{fmt.Errorf("%w: config.json", ErrFileNotFound), 404},
		{ErrEmptyCSR, 400},
		{ErrUnauthenticated, 401},
		{ErrReadFile, 500},
		{errors.New("unexpected"), 500},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("Testing %s", tc.err), func(t *testing.T) {
			assert.Equal(t, tc.code, codeFrom(tc.err))
		})
	}
}
