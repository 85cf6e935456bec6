package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sakif/device-manager/internal/apperror"
	"github.com/sakif/device-manager/internal/model"
	"github.com/sakif/device-manager/internal/repository"
)

// compile-time check that *DB implements repository.Store
var _ repository.Store = (*DB)(nil)

const userColumns = `id, external_id, username, email, avatar_url, created_at`

// UsernameExists reports whether a user with the given email is registered.
//
// The email doubles as the login name, hence the method name. A store failure is returned as ErrStoreQuery, never as false.
func (db *DB) UsernameExists(ctx context.Context, email string) (bool, error) {
	ctx, cancel := db.opCtx(ctx)
	defer cancel()

	var count int
	err := db.conn.QueryRowContext(ctx,
		db.rebind(`SELECT COUNT(*) FROM users WHERE email = ?`),
		email,
	).Scan(&count)
	if err != nil {
		return false, apperror.StoreQuery("check username", err)
	}

	return count > 0, nil
}

// CreateUser inserts a new user and fills in user.ID and user.CreatedAt.
//
// UNIQUE external_id, username and email make this the arbiter for concurrent
// first logins: exactly one insert wins, the others get apperror.ErrDuplicateKey.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	ctx, cancel := db.opCtx(ctx)
	defer cancel()

	createdAt := now()
	var id int64

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			db.rebind(`INSERT INTO users (username, external_id, email, avatar_url, created_at)
			 VALUES (?, ?, ?, ?, ?)
			 RETURNING id`),
			user.Username,
			user.ExternalID,
			user.Email,
			user.AvatarURL,
			createdAt,
		).Scan(&id)
	})
	if err != nil {
		if classify(err) == violationUnique {
			return apperror.DuplicateKey("user", err)
		}
		return apperror.StoreQuery("create user", err)
	}

	user.ID = id
	user.CreatedAt = createdAt
	return nil
}

// UpdateProfile refreshes the display name and avatar of an existing user.
// Returns ErrNotFound if no user has that external id.
func (db *DB) UpdateProfile(ctx context.Context, externalID, username, avatarURL string) error {
	ctx, cancel := db.opCtx(ctx)
	defer cancel()

	var affected int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			db.rebind(`UPDATE users SET username = ?, avatar_url = ? WHERE external_id = ?`),
			username, avatarURL, externalID,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		if classify(err) == violationUnique {
			return apperror.DuplicateKey("user", err)
		}
		return apperror.StoreQuery("update profile", err)
	}
	if affected == 0 {
		return apperror.NotFound("user", externalID)
	}

	return nil
}

// GetUser retrieves a user by external id (the Google subject).
func (db *DB) GetUser(ctx context.Context, externalID string) (*model.User, error) {
	ctx, cancel := db.opCtx(ctx)
	defer cancel()

	u, err := scanUser(db.conn.QueryRowContext(ctx,
		db.rebind(`SELECT `+userColumns+` FROM users WHERE external_id = ?`),
		externalID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", externalID)
		}
		return nil, apperror.StoreQuery("get user", err)
	}

	return u, nil
}

// GetUserByEmail retrieves a user by email address.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx, cancel := db.opCtx(ctx)
	defer cancel()

	u, err := scanUser(db.conn.QueryRowContext(ctx,
		db.rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`),
		email,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, apperror.StoreQuery("get user by email", err)
	}

	return u, nil
}

// PasswordHash returns the stored bcrypt hash for username.
// Users without a password (every Google-provisioned account) report ErrNotFound,
// same as unknown usernames, so callers cannot tell the two apart.
func (db *DB) PasswordHash(ctx context.Context, username string) (string, error) {
	ctx, cancel := db.opCtx(ctx)
	defer cancel()

	var hash sql.NullString
	err := db.conn.QueryRowContext(ctx,
		db.rebind(`SELECT password_hash FROM users WHERE username = ?`),
		username,
	).Scan(&hash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", apperror.StoreQuery("get password hash", err)
	}
	if !hash.Valid || hash.String == "" {
		return "", apperror.NotFound("credentials", username)
	}

	return hash.String, nil
}

// SetPasswordHash stores a bcrypt hash for the user with the given external id.
func (db *DB) SetPasswordHash(ctx context.Context, externalID, hash string) error {
	ctx, cancel := db.opCtx(ctx)
	defer cancel()

	var affected int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			db.rebind(`UPDATE users SET password_hash = ? WHERE external_id = ?`),
			hash, externalID,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return apperror.StoreQuery("set password hash", err)
	}
	if affected == 0 {
		return apperror.NotFound("user", externalID)
	}

	return nil
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	if err := row.Scan(
		&u.ID,
		&u.ExternalID,
		&u.Username,
		&u.Email,
		&u.AvatarURL,
		&u.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}
