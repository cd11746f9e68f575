package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/lamassuiot/providore/pkg/models/device"
	"github.com/lamassuiot/providore/pkg/models/device/store"
	"github.com/opentracing/opentracing-go"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	_ "github.com/lib/pq"
)

const connectAttempts = 12

func NewDB(driverName string, dataSourceName string, logger log.Logger) (store.DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	err = checkDBAlive(db)
	for i := 1; err != nil && i < connectAttempts; i++ {
		level.Warn(logger).Log("msg", "Trying to connect to devices DB", "attempt", i)
		time.Sleep(5 * time.Second)
		err = checkDBAlive(db)
	}
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db, logger}, nil
}

type DB struct {
	*sql.DB
	logger log.Logger
}

func checkDBAlive(db *sql.DB) error {
	sqlStatement := `
	SELECT WHERE 1=0`
	rows, err := db.Query(sqlStatement)
	if err != nil {
		return err
	}
	return rows.Close()
}

// SelectAll reads the whole catalogue. Firmware rows are ordered by position so the
// last one of every device is its newest firmware.
func (db *DB) SelectAll(ctx context.Context) (device.Devices, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "providore: obtain devices from database")
	defer span.Finish()

	sqlStatement := `
	SELECT d.id, d.secret_key, f.type, f.version, f.config, f.file, f.next
	FROM devices d
	LEFT JOIN firmware f ON f.device_id = d.id
	ORDER BY d.id, f.position;
	`
	rows, err := db.QueryContext(ctx, sqlStatement)
	if err != nil {
		level.Error(db.logger).Log("err", err, "msg", "Could not obtain devices from database")
		return nil, err
	}
	defer rows.Close()

	devices := make(device.Devices)
	for rows.Next() {
		var (
			id, secret                         string
			fwType, version, config, file, nxt sql.NullString
		)
		if err := rows.Scan(&id, &secret, &fwType, &version, &config, &file, &nxt); err != nil {
			level.Error(db.logger).Log("err", err, "msg", "Unable to read database device row")
			return nil, err
		}
		dev, ok := devices[id]
		if !ok {
			dev = device.Device{Id: id, SecretKey: secret}
		}
		if version.Valid {
			dev.Firmware = append(dev.Firmware, device.Firmware{
				Type:    fwType.String,
				Version: version.String,
				Config:  config.String,
				File:    file.String,
				Next:    nxt.String,
			})
		}
		devices[id] = dev
	}
	if err := rows.Err(); err != nil {
		level.Error(db.logger).Log("err", err, "msg", "Could not iterate devices rows")
		return nil, err
	}
	level.Info(db.logger).Log("msg", "Devices obtained from database", "count", len(devices))
	return devices, nil
}
