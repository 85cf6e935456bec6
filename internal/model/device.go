package model

import "time"

// Device is a monitored piece of hardware registered by a user.
//
// UserID holds the owner's ExternalID (see User), not the numeric user key.
// The JSON names match what the dashboard frontend already consumes.
type Device struct {
	ID        int64     `json:"device_id"    db:"device_id"`
	UserID    string    `json:"user_id"      db:"user_id"`
	Name      string    `json:"device_name"  db:"device_name"`
	URL       string    `json:"device_url"   db:"device_url"`
	CreatedAt time.Time `json:"created_time" db:"created_time"`
}

// CableInfo is a test-bench summary for one device.
// Rows are written by the bench software; this service only reads them.
type CableInfo struct {
	ID           int64     `json:"-"             db:"id"`
	DeviceID     int64     `json:"device_id"     db:"device_id"`
	PartLocation string    `json:"part_location" db:"part_location"`
	PassCount    int64     `json:"pass_count"    db:"pass_count"`
	FailCount    int64     `json:"fail_count"    db:"fail_count"`
	LastUpdate   time.Time `json:"last_update"   db:"last_update"`
}
