package repository

import (
	"context"
	"time"

	"github.com/iliyamo/video-share-api/internal/model"
)

// The methods in this file own the session state kept on the user row: the
// digest of the current refresh token and the login/logout telemetry.  The
// stored digest is the only server-side revocation handle, so every change
// to it is a single UPDATE.

// RecordLogin resets the failed login counter, marks the user as logged in,
// stamps the telemetry columns and stores the new refresh token digest.
func (r *UserRepo) RecordLogin(ctx context.Context, id string, rec model.LoginRecord) error {
	const q = `UPDATE users SET login_attempts = 0, is_logged_in = 1, last_login = ?,
last_login_ip = ?, user_agent = ?, refresh_token = ? WHERE id = ?`
	_, err := r.DB.ExecContext(ctx, q, rec.At.UTC(), nullString(rec.IP), nullString(rec.UserAgent),
		nullString(rec.RefreshToken), id)
	return err
}

// RotateRefreshToken replaces the stored digest with next only if it still
// equals current.  When another request rotated or cleared it first, no row
// matches and ErrRefreshMismatch is returned.
func (r *UserRepo) RotateRefreshToken(ctx context.Context, id, current, next string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET refresh_token = ? WHERE id = ? AND refresh_token = ?",
		next, id, current)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRefreshMismatch
	}
	return nil
}

// RecordLogout clears the logged-in flag and the stored refresh token and
// stamps the logout telemetry.  Calling it for an already logged out user
// only refreshes the timestamps.
func (r *UserRepo) RecordLogout(ctx context.Context, id, ip string, at time.Time) error {
	const q = `UPDATE users SET is_logged_in = 0, last_logout = ?, last_logout_ip = ?,
refresh_token = NULL WHERE id = ?`
	_, err := r.DB.ExecContext(ctx, q, at.UTC(), nullString(ip), id)
	return err
}
