package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/iliyamo/video-share-api/internal/model"
)

// UserRepo is the credential store.  Uniqueness of username and email is
// enforced by the table's unique keys; counters and token state are changed
// with single atomic UPDATE statements rather than read-modify-write.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `id, username, email, full_name, password_hash, avatar_url, avatar_key,
cover_image_url, cover_image_key, role, refresh_token, reset_token, reset_token_expiry,
login_attempts, is_logged_in, last_login, last_logout, last_login_ip, last_logout_ip,
user_agent, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (model.User, error) {
	var (
		u                                  model.User
		avatarURL, avatarKey               sql.NullString
		coverURL, coverKey                 sql.NullString
		refresh, reset                     sql.NullString
		loginIP, logoutIP, userAgent       sql.NullString
		resetExpiry, lastLogin, lastLogout sql.NullTime
		role                               string
	)
	err := s.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash,
		&avatarURL, &avatarKey, &coverURL, &coverKey, &role, &refresh, &reset, &resetExpiry,
		&u.LoginAttempts, &u.IsLoggedIn, &lastLogin, &lastLogout, &loginIP, &logoutIP,
		&userAgent, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	u.AvatarURL, u.AvatarKey = avatarURL.String, avatarKey.String
	u.CoverImageURL, u.CoverImageKey = coverURL.String, coverKey.String
	u.Role = model.Role(role)
	u.RefreshToken, u.ResetToken = refresh.String, reset.String
	u.ResetTokenExpiry = timePtr(resetExpiry)
	u.LastLogin, u.LastLogout = timePtr(lastLogin), timePtr(lastLogout)
	u.LastLoginIP, u.LastLogoutIP, u.UserAgent = loginIP.String, logoutIP.String, userAgent.String
	return u, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// NormalizeUsername trims and lower-cases a username.
func NormalizeUsername(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Create inserts u.  A ULID is generated when u.ID is empty and the role
// defaults to user.  A duplicate username or email surfaces as
// ErrUsernameTaken / ErrEmailTaken straight from the unique keys, so two
// concurrent signups for the same identity cannot both succeed.  After the
// insert the row is read back to populate the timestamp columns.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = ulid.Make().String()
	}
	if !u.Role.Valid() {
		u.Role = model.RoleUser
	}
	u.Username = NormalizeUsername(u.Username)
	u.Email = NormalizeEmail(u.Email)

	const q = `INSERT INTO users (id, username, email, full_name, password_hash,
avatar_url, avatar_key, cover_image_url, cover_image_key, role)
VALUES (?,?,?,?,?,?,?,?,?,?)`
	_, err := r.DB.ExecContext(ctx, q, u.ID, u.Username, u.Email, u.FullName, u.PasswordHash,
		nullString(u.AvatarURL), nullString(u.AvatarKey),
		nullString(u.CoverImageURL), nullString(u.CoverImageKey), string(u.Role))
	if err != nil {
		return uniqueViolation(err)
	}

	stored, err := r.GetByID(ctx, u.ID)
	if err != nil {
		return err
	}
	*u = stored
	return nil
}

func (r *UserRepo) getOne(ctx context.Context, where string, arg any) (model.User, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where+" LIMIT 1", arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrUserNotFound
	}
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetByUsername fetches a user by normalized username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	return r.getOne(ctx, "username = ?", NormalizeUsername(username))
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getOne(ctx, "email = ?", NormalizeEmail(email))
}

// Taken reports whether the username and/or email are already used.  It is
// only a fast path that avoids pointless uploads; Create remains the source
// of truth.
func (r *UserRepo) Taken(ctx context.Context, username, email string) (usernameTaken, emailTaken bool, err error) {
	const q = `SELECT
COALESCE(SUM(username = ?), 0), COALESCE(SUM(email = ?), 0)
FROM users WHERE username = ? OR email = ?`
	un, em := NormalizeUsername(username), NormalizeEmail(email)
	var nu, ne int
	if err := r.DB.QueryRowContext(ctx, q, un, em, un, em).Scan(&nu, &ne); err != nil {
		return false, false, err
	}
	return nu > 0, ne > 0, nil
}

// List returns users ordered by creation time, newest first.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]model.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// IncrementLoginAttempts atomically adds one to the failed login counter.
func (r *UserRepo) IncrementLoginAttempts(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET login_attempts = login_attempts + 1 WHERE id = ?", id)
	return err
}

// UpdatePassword replaces only the password hash column.
func (r *UserRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET password_hash = ? WHERE id = ?", hash, id)
	return err
}

// UpdateAvatar stores the URL and key of a new avatar asset.
func (r *UserRepo) UpdateAvatar(ctx context.Context, id string, a model.Asset) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET avatar_url = ?, avatar_key = ? WHERE id = ?",
		nullString(a.URL), nullString(a.Key), id)
	return err
}

// UpdateCoverImage stores the URL and key of a new cover image asset.
func (r *UserRepo) UpdateCoverImage(ctx context.Context, id string, a model.Asset) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET cover_image_url = ?, cover_image_key = ? WHERE id = ?",
		nullString(a.URL), nullString(a.Key), id)
	return err
}

// UpdateProfile changes the display name and email.  A duplicate email
// surfaces as ErrEmailTaken.
func (r *UserRepo) UpdateProfile(ctx context.Context, id, fullName, email string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET full_name = ?, email = ? WHERE id = ?",
		strings.TrimSpace(fullName), NormalizeEmail(email), id)
	if err != nil {
		return uniqueViolation(err)
	}
	return nil
}

// SetRole changes the role of the user identified by username.
func (r *UserRepo) SetRole(ctx context.Context, username string, role model.Role) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET role = ? WHERE username = ?", string(role), NormalizeUsername(username))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// zero rows also happens when the role is unchanged; tell the two apart
		if _, err := r.GetByUsername(ctx, username); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a user by id.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
