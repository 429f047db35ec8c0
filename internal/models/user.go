package models

import (
	"database/sql"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/label"
)

// User is a rater. ClientID comes from the front-end client (a Google
// account id or a generated fallback string); ClientType is the role, see
// label.Role. Score counts contributions that passed the quality gate,
// RawScore counts every item the user ever returned. PasswordHash is only
// set for researcher accounts that log in with a password.
type User struct {
	ID           int64          `db:"id" json:"id"`
	ClientID     string         `db:"client_id" json:"client_id"`
	ClientType   label.Role     `db:"client_type" json:"client_type"`
	Score        int            `db:"score" json:"score"`
	RawScore     int            `db:"raw_score" json:"raw_score"`
	PasswordHash sql.NullString `db:"password_hash" json:"-"`
	RegisterTime int64          `db:"register_time" json:"register_time"`
}

// Connection records one front-end session of a user. The client type is
// duplicated here because roles change over time and a batch is scored
// against the role at issuance.
type Connection struct {
	ID         int64      `db:"id" json:"id"`
	UserID     int64      `db:"user_id" json:"user_id"`
	ClientType label.Role `db:"client_type" json:"client_type"`
	Time       int64      `db:"time" json:"time"`
}

// UserClaims is the JWT payload of a logged-in user.
type UserClaims struct {
	UserID       int64      `json:"user_id"`
	ClientType   label.Role `json:"client_type"`
	ConnectionID int64      `json:"connection_id"`
	jwt.RegisteredClaims
}

// BatchClaims signs the exact item set of an issued batch. The front end
// must send the token back untouched; any mismatch between these ids and
// the returned responses rejects the submission outright.
type BatchClaims struct {
	UserID  int64   `json:"user_id"`
	BatchID int64   `json:"batch_id"`
	ItemIDs []int64 `json:"item_ids"`
	jwt.RegisteredClaims
}
