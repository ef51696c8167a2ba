// Package repository contains the data access layer.  The sentinel values in
// this file let higher layers distinguish failure scenarios without looking
// at driver errors: a missing row, a unique constraint violation on username
// or email, and a lost compare-and-set on the stored refresh token.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// ErrUsernameTaken is returned when the username unique key is violated.
var ErrUsernameTaken = errors.New("username already exists")

// ErrEmailTaken is returned when the email unique key is violated.
var ErrEmailTaken = errors.New("email already exists")

// ErrRefreshMismatch is returned when the stored refresh token digest no
// longer equals the one the caller presented, i.e. it was rotated or cleared
// concurrently.
var ErrRefreshMismatch = errors.New("refresh token mismatch")

const mysqlDuplicateEntry = 1062

// uniqueViolation maps a MySQL duplicate-entry error to ErrUsernameTaken or
// ErrEmailTaken based on the violated key name.  Other errors are returned
// unchanged.
func uniqueViolation(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDuplicateEntry {
		return err
	}
	msg := strings.ToLower(me.Message)
	switch {
	case strings.Contains(msg, "uq_users_username"):
		return ErrUsernameTaken
	case strings.Contains(msg, "uq_users_email"):
		return ErrEmailTaken
	}
	return err
}
