package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectAll(t *testing.T) {
	dir := t.TempDir()
	data := `{
		"abc123": {
			"secretKey": "secret",
			"firmware": [
				{"type": "sensor", "version": "1.0.0", "config": "1.0.0.json", "file": "firmware.bin", "next": "1.1.0"},
				{"type": "sensor", "version": "1.1.0", "config": "1.1.0.json", "file": "firmware.bin"}
			]
		}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DevicesFileName), []byte(data), 0644))

	devices, err := NewFile(dir, log.NewNopLogger()).SelectAll(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	dev := devices["abc123"]
	assert.Equal(t, "abc123", dev.Id)
	assert.Equal(t, "secret", dev.SecretKey)
	require.Len(t, dev.Firmware, 2)
	assert.Equal(t, "1.1.0", dev.Firmware[0].Next)
}

func TestSelectAllErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := NewFile(dir, log.NewNopLogger()).SelectAll(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(filepath.Join(dir, DevicesFileName), []byte("{"), 0644))
	_, err = NewFile(dir, log.NewNopLogger()).SelectAll(context.Background())
	assert.Error(t, err)
}
