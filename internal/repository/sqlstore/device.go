package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/sakif/device-manager/internal/apperror"
	"github.com/sakif/device-manager/internal/model"
)

const deviceColumns = `device_id, user_id, device_name, device_url, created_time`

// ListDevices returns every device owned by userID, oldest first.
//
// A user with no devices gets an empty slice, not nil and not an error, so the
// JSON response is "[]" rather than "null". Failures come back as ErrStoreQuery
// and callers must not confuse them with "no devices".
func (db *DB) ListDevices(ctx context.Context, userID string) ([]model.Device, error) {
	ctx, cancel := db.opCtx(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		db.rebind(`SELECT `+deviceColumns+` FROM devices WHERE user_id = ? ORDER BY device_id`),
		userID,
	)
	if err != nil {
		return nil, apperror.StoreQuery("list devices", err)
	}
	defer rows.Close()

	devices := make([]model.Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, apperror.StoreQuery("list devices", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.StoreQuery("list devices", err)
	}

	return devices, nil
}

// GetDevice retrieves one device by id.
func (db *DB) GetDevice(ctx context.Context, id int64) (*model.Device, error) {
	ctx, cancel := db.opCtx(ctx)
	defer cancel()

	d, err := scanDevice(db.conn.QueryRowContext(ctx,
		db.rebind(`SELECT `+deviceColumns+` FROM devices WHERE device_id = ?`),
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("device", strconv.FormatInt(id, 10))
		}
		return nil, apperror.StoreQuery("get device", err)
	}

	return d, nil
}

// CreateDevice inserts a device and returns its generated id.
// device.ID and device.CreatedAt are filled in as well.
//
// An owner that does not exist trips the foreign key and is reported as a
// validation error on user_id; any other failure rolls back and is ErrStoreQuery.
func (db *DB) CreateDevice(ctx context.Context, device *model.Device) (int64, error) {
	ctx, cancel := db.opCtx(ctx)
	defer cancel()

	createdAt := now()
	var id int64

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			db.rebind(`INSERT INTO devices (device_url, user_id, device_name, created_time)
			 VALUES (?, ?, ?, ?)
			 RETURNING device_id`),
			device.URL,
			device.UserID,
			device.Name,
			createdAt,
		).Scan(&id)
	})
	if err != nil {
		if classify(err) == violationForeignKey {
			return 0, &apperror.AppError{
				Err:     apperror.ErrValidation,
				Message: "unknown user",
				Field:   "user_id",
				Cause:   err,
			}
		}
		return 0, apperror.StoreQuery("create device", err)
	}

	device.ID = id
	device.CreatedAt = createdAt
	return id, nil
}

// DeleteDevice removes a device (and, via ON DELETE CASCADE, its cable info).
// Deleting an id that does not exist succeeds: delete is idempotent.
func (db *DB) DeleteDevice(ctx context.Context, id int64) error {
	ctx, cancel := db.opCtx(ctx)
	defer cancel()

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			db.rebind(`DELETE FROM devices WHERE device_id = ?`),
			id,
		)
		return err
	})
	if err != nil {
		return apperror.StoreQuery("delete device", err)
	}

	return nil
}

// GetCableInfo returns the first cable_info row recorded for deviceID.
// No row is ErrNotFound; a failed query is ErrStoreQuery.
func (db *DB) GetCableInfo(ctx context.Context, deviceID int64) (*model.CableInfo, error) {
	ctx, cancel := db.opCtx(ctx)
	defer cancel()

	var c model.CableInfo
	err := db.conn.QueryRowContext(ctx,
		db.rebind(`SELECT id, device_id, part_location, pass_count, fail_count, last_update
		 FROM cable_info
		 WHERE device_id = ?
		 ORDER BY id
		 LIMIT 1`),
		deviceID,
	).Scan(
		&c.ID,
		&c.DeviceID,
		&c.PartLocation,
		&c.PassCount,
		&c.FailCount,
		&c.LastUpdate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("cable info", strconv.FormatInt(deviceID, 10))
		}
		return nil, apperror.StoreQuery("get cable info", err)
	}

	return &c, nil
}

func scanDevice(row rowScanner) (*model.Device, error) {
	var d model.Device
	if err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Name,
		&d.URL,
		&d.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}
