package store

import (
	"context"

	"github.com/lamassuiot/providore/pkg/models/device"
)

type DB interface {
	SelectAll(ctx context.Context) (device.Devices, error)
}
