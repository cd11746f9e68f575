package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/lamassuiot/providore/pkg/models/device"
	"github.com/lamassuiot/providore/pkg/models/device/store"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const DevicesFileName = "devices.json"

type File struct {
	dirPath string
	logger  log.Logger
}

func NewFile(dirPath string, logger log.Logger) store.DB {
	return &File{dirPath: dirPath, logger: logger}
}

func (f *File) SelectAll(ctx context.Context) (device.Devices, error) {
	name := filepath.Join(f.dirPath, DevicesFileName)
	data, err := os.ReadFile(name)
	if err != nil {
		level.Error(f.logger).Log("err", err, "msg", "Could not read devices file "+name)
		return nil, err
	}
	var devices device.Devices
	if err := json.Unmarshal(data, &devices); err != nil {
		level.Error(f.logger).Log("err", err, "msg", "Could not decode devices file "+name)
		return nil, err
	}
	for id, d := range devices {
		d.Id = id
		devices[id] = d
	}
	level.Info(f.logger).Log("msg", "Devices obtained from file system", "count", len(devices))
	return devices, nil
}
