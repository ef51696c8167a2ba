package utils // package utils provides password hashing and token issuing helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/video-share-api/internal/model"
)

var (
	// ErrTokenExpired is returned for a well-formed token past its exp.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers bad signatures, wrong algorithms and malformed input.
	ErrTokenInvalid = errors.New("token invalid")
)

// AccessClaims are carried by access tokens.
type AccessClaims struct {
	UserID   string     `json:"userId"`
	Email    string     `json:"email"`
	Username string     `json:"username"`
	FullName string     `json:"fullName"`
	Role     model.Role `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by refresh tokens; deliberately minimal.
type RefreshClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Token is a signed token and its expiry.
type Token struct {
	Token string    `json:"token"`
	Exp   time.Time `json:"expires"`
}

// TokenService signs and verifies access and refresh tokens.  The two kinds
// use distinct HMAC secrets so a leaked access secret cannot mint refresh
// tokens and vice versa.
type TokenService struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	now           func() time.Time
}

// NewTokenService builds a TokenService.  Zero TTLs default to 15 minutes and
// 7 days.
func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, issuer string) *TokenService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenService{
		AccessSecret:  []byte(accessSecret),
		RefreshSecret: []byte(refreshSecret),
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
		Issuer:        issuer,
		now:           time.Now,
	}
}

func (s *TokenService) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

func (s *TokenService) registered(subject string, ttl time.Duration) (jwt.RegisteredClaims, time.Time) {
	now := s.clock()
	exp := now.Add(ttl)
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(), // jti keeps two tokens minted in the same second distinct
	}, exp
}

// IssueAccess builds and signs an HS256 access token for u.
func (s *TokenService) IssueAccess(u *model.User) (Token, error) {
	rc, exp := s.registered(u.ID, s.AccessTTL)
	claims := AccessClaims{
		UserID:           u.ID,
		Email:            u.Email,
		Username:         u.Username,
		FullName:         u.FullName,
		Role:             u.Role,
		RegisteredClaims: rc,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.AccessSecret)
	if err != nil {
		return Token{}, err
	}
	return Token{Token: signed, Exp: exp}, nil
}

// IssueRefresh builds and signs an HS256 refresh token for u.
func (s *TokenService) IssueRefresh(u *model.User) (Token, error) {
	rc, exp := s.registered(u.ID, s.RefreshTTL)
	claims := RefreshClaims{UserID: u.ID, Email: u.Email, RegisteredClaims: rc}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.RefreshSecret)
	if err != nil {
		return Token{}, err
	}
	return Token{Token: signed, Exp: exp}, nil
}

// VerifyAccess validates an access token and returns its claims.
func (s *TokenService) VerifyAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(raw, claims, s.AccessSecret); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token and returns its claims.
func (s *TokenService) VerifyRefresh(raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(raw, claims, s.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *TokenService) parse(raw string, claims jwt.Claims, secret []byte) error {
	if raw == "" {
		return ErrTokenInvalid
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock),
	}
	if s.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.Issuer))
	}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !tok.Valid {
		return ErrTokenInvalid
	}
	return nil
}

// HashRefreshRaw returns the SHA-256 hash of the raw refresh token as a hex
// string.  Only this digest is persisted so a leaked row cannot be replayed
// as a token.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
