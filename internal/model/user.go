package model

import "time"

// Role is the authorization level of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// User represents an account record as stored in the `users` table.  Each
// field corresponds to a column.  PasswordHash and RefreshToken are secrets
// and carry a "-" json tag so that a User can never be serialized to a
// client by accident; handlers respond with PublicUser or AdminUser.
//
// Fields:
//
//	ID               – ULID primary key generated on creation.
//	Username, Email  – unique, normalized (trimmed and lower-cased).
//	PasswordHash     – bcrypt hash, written only through the hasher.
//	AvatarURL/Key    – public URL and storage key of the avatar asset.
//	CoverImageURL/Key – public URL and storage key of the cover image.
//	RefreshToken     – SHA-256 digest of the last issued refresh token.
//	ResetToken*      – reserved columns, no flow uses them yet.
type User struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	FullName         string     `json:"fullName"`
	PasswordHash     string     `json:"-"`
	AvatarURL        string     `json:"avatar,omitempty"`
	AvatarKey        string     `json:"-"`
	CoverImageURL    string     `json:"coverImage,omitempty"`
	CoverImageKey    string     `json:"-"`
	Role             Role       `json:"role"`
	RefreshToken     string     `json:"-"`
	ResetToken       string     `json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`
	LoginAttempts    int        `json:"loginAttempts"`
	IsLoggedIn       bool       `json:"isLoggedIn"`
	LastLogin        *time.Time `json:"lastLogin,omitempty"`
	LastLogout       *time.Time `json:"lastLogout,omitempty"`
	LastLoginIP      string     `json:"lastLoginIP,omitempty"`
	LastLogoutIP     string     `json:"lastLogoutIP,omitempty"`
	UserAgent        string     `json:"userAgent,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// IsAdmin reports whether the persisted role is admin.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// PublicUser is the public-safe projection of a User.
type PublicUser struct {
	ID         string    `json:"_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	Avatar     string    `json:"avatar,omitempty"`
	CoverImage string    `json:"coverImage,omitempty"`
	Role       Role      `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`
}

// AdminUser is the projection returned by the admin listing: the public view
// plus session telemetry.  It still never contains secrets.
type AdminUser struct {
	PublicUser
	LoginAttempts int        `json:"loginAttempts"`
	IsLoggedIn    bool       `json:"isLoggedIn"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`
	LastLogout    *time.Time `json:"lastLogout,omitempty"`
	LastLoginIP   string     `json:"lastLoginIP,omitempty"`
	UserAgent     string     `json:"userAgent,omitempty"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Public returns the public-safe projection of u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FullName:   u.FullName,
		Avatar:     u.AvatarURL,
		CoverImage: u.CoverImageURL,
		Role:       u.Role,
		CreatedAt:  u.CreatedAt,
	}
}

// Admin returns the admin projection of u.
func (u *User) Admin() AdminUser {
	return AdminUser{
		PublicUser:    u.Public(),
		LoginAttempts: u.LoginAttempts,
		IsLoggedIn:    u.IsLoggedIn,
		LastLogin:     u.LastLogin,
		LastLogout:    u.LastLogout,
		LastLoginIP:   u.LastLoginIP,
		UserAgent:     u.UserAgent,
		UpdatedAt:     u.UpdatedAt,
	}
}

// LoginRecord carries the session telemetry written on a successful login.
type LoginRecord struct {
	IP           string
	UserAgent    string
	At           time.Time
	RefreshToken string // digest of the freshly issued refresh token
}

// Asset is a stored object: its public URL and the key needed to delete it.
type Asset struct {
	URL string `json:"url"`
	Key string `json:"key"`
}
