package service

import (
	"strings"

	"github.com/iliyamo/video-share-api/internal/model"
	"github.com/iliyamo/video-share-api/internal/utils"
)

// SignupInput is the text part of a signup form.
type SignupInput struct {
	Username string `json:"username" form:"username" validate:"required,min=3,max=30"`
	Email    string `json:"email" form:"email" validate:"required,max=254,email"`
	FullName string `json:"fullName" form:"fullName" validate:"required,min=3,max=100"`
	Password string `json:"password" form:"password" validate:"required,min=6,max=50,pwbytes"`
}

func (in *SignupInput) normalize() {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
}

// LoginInput accepts the account key as identifier, username or email.
type LoginInput struct {
	Identifier string `json:"identifier" form:"identifier"`
	Username   string `json:"username" form:"username"`
	Email      string `json:"email" form:"email"`
	Password   string `json:"password" form:"password"`
	IP         string `json:"-" form:"-"`
	UserAgent  string `json:"-" form:"-"`
}

// Key returns the first non-empty identifying field.
func (in LoginInput) Key() string {
	for _, v := range []string{in.Identifier, in.Username, in.Email} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// PasswordChangeInput is the body of a password change.
type PasswordChangeInput struct {
	CurrentPassword string `json:"currentPassword" form:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" form:"newPassword" validate:"required,min=6,max=50,pwbytes,nefield=CurrentPassword"`
}

// ProfileInput is the body of a profile update.
type ProfileInput struct {
	FullName string `json:"fullName" form:"fullName" validate:"required,min=3,max=100"`
	Email    string `json:"email" form:"email" validate:"required,max=254,email"`
}

func (in *ProfileInput) normalize() {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
}

// Session is what a login or refresh hands back to the client.
type Session struct {
	User    model.PublicUser `json:"user"`
	Access  utils.Token      `json:"accessToken"`
	Refresh utils.Token      `json:"refreshToken"`
}

// Actor is the caller of an operation as seen by the Auth Gate.
type Actor struct {
	ID   string
	Role model.Role
	IP   string
}
