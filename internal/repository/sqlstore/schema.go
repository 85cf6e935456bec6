package sqlstore

import (
	"context"
	"fmt"
)

// In the users table external_id and username are UNIQUE, matching the
// production postgres database. email is UNIQUE too; the identity resolver looks users
// up by email and relies on the constraint to settle concurrent first logins.
//
// password_hash is nullable: Google-provisioned users never have one.
const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT NOT NULL,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		external_id   TEXT NOT NULL,
		email         TEXT NOT NULL,
		avatar_url    TEXT NOT NULL DEFAULT '',
		password_hash TEXT,
		CONSTRAINT users_external_id_key UNIQUE (external_id),
		CONSTRAINT users_username_key UNIQUE (username),
		CONSTRAINT users_email_key UNIQUE (email)
	);

	CREATE TABLE IF NOT EXISTS devices (
		device_id    INTEGER PRIMARY KEY AUTOINCREMENT,
		device_url   TEXT NOT NULL,
		user_id      TEXT NOT NULL REFERENCES users(external_id) ON DELETE CASCADE,
		device_name  TEXT NOT NULL,
		created_time DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_devices_user_id ON devices(user_id);

	CREATE TABLE IF NOT EXISTS cable_info (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id     INTEGER NOT NULL REFERENCES devices(device_id) ON DELETE CASCADE,
		part_location TEXT NOT NULL DEFAULT '',
		pass_count    INTEGER NOT NULL DEFAULT 0,
		fail_count    INTEGER NOT NULL DEFAULT 0,
		last_update   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_cable_info_device_id ON cable_info(device_id);
`

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		username      VARCHAR(255) NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		external_id   VARCHAR(255) NOT NULL,
		email         VARCHAR(255) NOT NULL,
		avatar_url    TEXT NOT NULL DEFAULT '',
		password_hash VARCHAR(255),
		CONSTRAINT users_external_id_key UNIQUE (external_id),
		CONSTRAINT users_username_key UNIQUE (username),
		CONSTRAINT users_email_key UNIQUE (email)
	);

	CREATE TABLE IF NOT EXISTS devices (
		device_id    BIGSERIAL PRIMARY KEY,
		device_url   VARCHAR(2048) NOT NULL,
		user_id      VARCHAR(255) NOT NULL REFERENCES users(external_id) ON DELETE CASCADE,
		device_name  VARCHAR(255) NOT NULL,
		created_time TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_devices_user_id ON devices(user_id);

	CREATE TABLE IF NOT EXISTS cable_info (
		id            BIGSERIAL PRIMARY KEY,
		device_id     BIGINT NOT NULL REFERENCES devices(device_id) ON DELETE CASCADE,
		part_location VARCHAR(255) NOT NULL DEFAULT '',
		pass_count    BIGINT NOT NULL DEFAULT 0,
		fail_count    BIGINT NOT NULL DEFAULT 0,
		last_update   TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_cable_info_device_id ON cable_info(device_id);
`

// EnsureSchema creates the users, devices and cable_info tables if they are missing.
//
// It is idempotent (CREATE ... IF NOT EXISTS) and New calls it on every start.
// There is no migration tracking; changing an existing table means changing it by hand.
func (db *DB) EnsureSchema(ctx context.Context) error {
	ddl := sqliteSchema
	if db.dialect == DialectPostgres {
		ddl = postgresSchema
	}

	ctx, cancel := db.opCtx(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}
