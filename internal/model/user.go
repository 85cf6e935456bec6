// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data. There is no inheritance;
// Go favours composition, so each record is a flat struct with tags.
package model

import "time"

// User represents an account provisioned from a Google sign-in.
//
// TWO IDENTIFIERS:
// ID is the internal auto-increment primary key owned by the database.
// ExternalID is Google's "sub" claim (the "unique_id" exposed to the frontend).
// Google subjects are 21-digit numbers that overflow int64, so they stay strings.
//
// ExternalID is the canonical identifier everywhere outside the store: session
// tokens carry it, devices reference it, and /get-all-devices/{userId} takes it.
// The numeric ID never leaves the repository layer except in JSON responses.
//
// The password hash lives in its own nullable column and is deliberately not a
// field here, so a User can be logged or encoded to JSON without leaking it.
type User struct {
	ID         int64     `json:"id"         db:"id"`
	ExternalID string    `json:"uniqueId"   db:"external_id"` // Google "sub" claim
	Username   string    `json:"name"       db:"username"`    // display name (given_name)
	Email      string    `json:"email"      db:"email"`
	AvatarURL  string    `json:"picture"    db:"avatar_url"`
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
}
