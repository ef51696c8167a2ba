// Package service holds the account and session logic between the HTTP
// handlers and the stores.  Every method returns *apperr.Error values so the
// handlers only have to render them.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/video-share-api/internal/apperr"
	"github.com/iliyamo/video-share-api/internal/model"
	"github.com/iliyamo/video-share-api/internal/queue"
	"github.com/iliyamo/video-share-api/internal/repository"
	"github.com/iliyamo/video-share-api/internal/storage"
	"github.com/iliyamo/video-share-api/internal/utils"
)

// UserStore is the persistence the account flows need.  *repository.UserRepo
// implements it.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (model.User, error)
	GetByUsername(ctx context.Context, username string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	Taken(ctx context.Context, username, email string) (bool, bool, error)
	List(ctx context.Context, limit, offset int) ([]model.User, error)
	IncrementLoginAttempts(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, hash string) error
	UpdateAvatar(ctx context.Context, id string, a model.Asset) error
	UpdateCoverImage(ctx context.Context, id string, a model.Asset) error
	UpdateProfile(ctx context.Context, id, fullName, email string) error
	SetRole(ctx context.Context, username string, role model.Role) error
	Delete(ctx context.Context, id string) error
	RecordLogin(ctx context.Context, id string, rec model.LoginRecord) error
	RotateRefreshToken(ctx context.Context, id, current, next string) error
	RecordLogout(ctx context.Context, id, ip string, at time.Time) error
}

// AssetStore uploads staged files and deletes stored objects.
// *storage.S3Store implements it.
type AssetStore interface {
	Upload(ctx context.Context, localPath, contentType string) (model.Asset, error)
	Delete(ctx context.Context, key string) error
}

// EventPublisher sends user lifecycle events.  *queue.Publisher implements it.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.UserEvent) error
}

// Deps bundles the collaborators of Accounts.
type Deps struct {
	Users     UserStore
	Assets    AssetStore
	Events    EventPublisher
	Hasher    utils.Hasher
	Tokens    *utils.TokenService
	Log       *zap.Logger
	DBTimeout time.Duration
}

// Accounts implements signup, login, logout, refresh and the profile flows.
type Accounts struct {
	users   UserStore
	assets  AssetStore
	events  EventPublisher
	hasher  utils.Hasher
	tokens  *utils.TokenService
	log     *zap.Logger
	timeout time.Duration
	now     func() time.Time

	pending   sync.WaitGroup // in-flight event publishes
	decoyOnce sync.Once
	decoy     string // hash verified for unknown accounts
}

// NewAccounts builds Accounts from d.
func NewAccounts(d Deps) *Accounts {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.DBTimeout <= 0 {
		d.DBTimeout = 5 * time.Second
	}
	return &Accounts{
		users:   d.Users,
		assets:  d.Assets,
		events:  d.Events,
		hasher:  d.Hasher,
		tokens:  d.Tokens,
		log:     d.Log,
		timeout: d.DBTimeout,
		now:     time.Now,
	}
}

// Column widths of the login telemetry.
const (
	maxUserAgent = 512
	maxIP        = 45
)

// clip cuts s to at most n runes.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// hashPassword reports bcrypt's length limit as a validation error.
func (a *Accounts) hashPassword(label, plain string) (string, error) {
	hash, err := a.hasher.Hash(plain)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		return "", apperr.Validation([]string{fmt.Sprintf("%s must be at most %d bytes long.", label, utils.MaxPasswordBytes)})
	}
	if err != nil {
		return "", apperr.Internal(err)
	}
	return hash, nil
}

// verifyDecoy spends the same bcrypt work as a real password check so an
// unknown account answers as slowly as a wrong password.
func (a *Accounts) verifyDecoy(plain string) {
	a.decoyOnce.Do(func() {
		h, err := a.hasher.Hash("decoy-password")
		if err != nil {
			a.log.Warn("build decoy hash", zap.Error(err))
			return
		}
		a.decoy = h
	})
	a.hasher.Verify(a.decoy, plain)
}

func (a *Accounts) db(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.timeout)
}

// emit publishes ev in the background.  A slow or missing broker never
// delays the request, and failures are only logged.
func (a *Accounts) emit(ctx context.Context, ev queue.UserEvent) {
	if a.events == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.events.Publish(ctx, ev); err != nil {
			a.log.Warn("publish user event", zap.String("event", ev.Type), zap.String("user_id", ev.UserID), zap.Error(err))
		}
	}()
}

// Wait blocks until every event published so far has been handed to the
// broker or given up on.
func (a *Accounts) Wait() {
	a.pending.Wait()
}

// dropAssets deletes already uploaded objects after a failed flow.
func (a *Accounts) dropAssets(ctx context.Context, assets ...model.Asset) {
	for _, as := range assets {
		if as.Key == "" {
			continue
		}
		if err := a.assets.Delete(context.WithoutCancel(ctx), as.Key); err != nil {
			a.log.Error("rollback uploaded asset", zap.String("key", as.Key), zap.Error(err))
		}
	}
}

func storeErr(err error) *apperr.Error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return apperr.NotFound("User not found.")
	}
	return apperr.Internal(err)
}

func conflictErr(usernameTaken, emailTaken bool) *apperr.Error {
	switch {
	case usernameTaken && emailTaken:
		return apperr.Conflict("Username and email already exist.")
	case usernameTaken:
		return apperr.Conflict("Username already exists.")
	default:
		return apperr.Conflict("Email already exists.")
	}
}

// Signup validates in, uploads the avatar (required) and the optional cover
// image, then inserts the account.  Uploaded objects are deleted again when
// any later step fails, so a rejected signup never leaves orphans in the
// bucket.  Staged files belong to the caller.
func (a *Accounts) Signup(ctx context.Context, in SignupInput, avatar, cover *storage.StagedFile) (model.PublicUser, error) {
	in.normalize()
	details := validateStruct(in)
	if avatar == nil {
		details = append(details, "Avatar file is required.")
	}
	if len(details) > 0 {
		return model.PublicUser{}, apperr.Validation(details)
	}

	dbCtx, cancel := a.db(ctx)
	un, em, err := a.users.Taken(dbCtx, in.Username, in.Email)
	cancel()
	if err != nil {
		return model.PublicUser{}, apperr.Internal(err)
	}
	if un || em {
		return model.PublicUser{}, conflictErr(un, em)
	}

	avatarAsset, err := a.assets.Upload(ctx, avatar.Path, avatar.ContentType)
	if err != nil {
		return model.PublicUser{}, apperr.UploadFailed(err)
	}
	var coverAsset model.Asset
	if cover != nil {
		coverAsset, err = a.assets.Upload(ctx, cover.Path, cover.ContentType)
		if err != nil {
			a.dropAssets(ctx, avatarAsset)
			return model.PublicUser{}, apperr.UploadFailed(err)
		}
	}

	hash, err := a.hashPassword("Password", in.Password)
	if err != nil {
		a.dropAssets(ctx, avatarAsset, coverAsset)
		return model.PublicUser{}, err
	}

	u := &model.User{
		Username:      in.Username,
		Email:         in.Email,
		FullName:      in.FullName,
		PasswordHash:  hash,
		AvatarURL:     avatarAsset.URL,
		AvatarKey:     avatarAsset.Key,
		CoverImageURL: coverAsset.URL,
		CoverImageKey: coverAsset.Key,
		Role:          model.RoleUser,
	}
	dbCtx, cancel = a.db(ctx)
	err = a.users.Create(dbCtx, u)
	cancel()
	if err != nil {
		a.dropAssets(ctx, avatarAsset, coverAsset)
		switch {
		case errors.Is(err, repository.ErrUsernameTaken):
			return model.PublicUser{}, conflictErr(true, false)
		case errors.Is(err, repository.ErrEmailTaken):
			return model.PublicUser{}, conflictErr(false, true)
		}
		return model.PublicUser{}, apperr.Internal(err)
	}

	a.log.Info("user signed up", zap.String("user_id", u.ID), zap.String("username", u.Username))
	a.emit(ctx, queue.NewUserEvent(queue.EventSignedUp, u.ID, u.Username, ""))
	return u.Public(), nil
}

func (a *Accounts) lookup(ctx context.Context, key string) (model.User, error) {
	dbCtx, cancel := a.db(ctx)
	defer cancel()
	if strings.Contains(key, "@") {
		return a.users.GetByEmail(dbCtx, key)
	}
	return a.users.GetByUsername(dbCtx, key)
}

// Login verifies the credentials and opens a session.  An unknown account
// and a wrong password produce the same error.
func (a *Accounts) Login(ctx context.Context, in LoginInput) (Session, error) {
	key := in.Key()
	var details []string
	if key == "" {
		details = append(details, "Username or email is required.")
	}
	if in.Password == "" {
		details = append(details, "Password is required.")
	}
	if len(details) > 0 {
		return Session{}, apperr.Validation(details)
	}

	u, err := a.lookup(ctx, key)
	if errors.Is(err, repository.ErrUserNotFound) {
		a.verifyDecoy(in.Password)
		return Session{}, apperr.InvalidCredentials()
	}
	if err != nil {
		return Session{}, apperr.Internal(err)
	}

	if !a.hasher.Verify(u.PasswordHash, in.Password) {
		dbCtx, cancel := a.db(ctx)
		err := a.users.IncrementLoginAttempts(dbCtx, u.ID)
		cancel()
		if err != nil {
			a.log.Error("increment login attempts", zap.String("user_id", u.ID), zap.Error(err))
		}
		return Session{}, apperr.InvalidCredentials()
	}

	sess, err := a.issue(&u)
	if err != nil {
		return Session{}, err
	}

	rec := model.LoginRecord{
		IP:           clip(in.IP, maxIP),
		UserAgent:    clip(in.UserAgent, maxUserAgent),
		At:           a.now(),
		RefreshToken: utils.HashRefreshRaw(sess.Refresh.Token),
	}
	dbCtx, cancel := a.db(ctx)
	err = a.users.RecordLogin(dbCtx, u.ID, rec)
	cancel()
	if err != nil {
		return Session{}, apperr.Internal(err)
	}

	a.emit(ctx, queue.NewUserEvent(queue.EventLoggedIn, u.ID, u.Username, in.IP))
	return sess, nil
}

func (a *Accounts) issue(u *model.User) (Session, error) {
	access, err := a.tokens.IssueAccess(u)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	refresh, err := a.tokens.IssueRefresh(u)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	return Session{User: u.Public(), Access: access, Refresh: refresh}, nil
}

// Logout ends the session of actor.  Logging out an already logged out user
// succeeds and only refreshes the logout telemetry.
func (a *Accounts) Logout(ctx context.Context, actor Actor) error {
	dbCtx, cancel := a.db(ctx)
	err := a.users.RecordLogout(dbCtx, actor.ID, clip(actor.IP, maxIP), a.now())
	cancel()
	if err != nil {
		return apperr.Internal(err)
	}
	a.emit(ctx, queue.NewUserEvent(queue.EventLoggedOut, actor.ID, "", actor.IP))
	return nil
}

// Refresh exchanges a refresh token for a new pair.  The presented token
// must match the stored digest; the swap is a compare-and-set so a token can
// be redeemed at most once.  Every credential failure yields the same error.
func (a *Accounts) Refresh(ctx context.Context, raw string) (Session, error) {
	if raw == "" {
		return Session{}, apperr.InvalidRefreshToken()
	}
	claims, err := a.tokens.VerifyRefresh(raw)
	if err != nil {
		return Session{}, apperr.InvalidRefreshToken()
	}

	dbCtx, cancel := a.db(ctx)
	u, err := a.users.GetByID(dbCtx, claims.UserID)
	cancel()
	if errors.Is(err, repository.ErrUserNotFound) {
		return Session{}, apperr.InvalidRefreshToken()
	}
	if err != nil {
		return Session{}, apperr.Internal(err)
	}

	presented := utils.HashRefreshRaw(raw)
	if u.RefreshToken == "" || subtle.ConstantTimeCompare([]byte(u.RefreshToken), []byte(presented)) != 1 {
		return Session{}, apperr.InvalidRefreshToken()
	}

	sess, err := a.issue(&u)
	if err != nil {
		return Session{}, err
	}

	dbCtx, cancel = a.db(ctx)
	err = a.users.RotateRefreshToken(dbCtx, u.ID, presented, utils.HashRefreshRaw(sess.Refresh.Token))
	cancel()
	if errors.Is(err, repository.ErrRefreshMismatch) {
		return Session{}, apperr.InvalidRefreshToken()
	}
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	return sess, nil
}

// ChangePassword replaces the password hash after checking the current
// password.  No other column is touched.
func (a *Accounts) ChangePassword(ctx context.Context, actor Actor, in PasswordChangeInput) error {
	if details := validateStruct(in); len(details) > 0 {
		return apperr.Validation(details)
	}

	dbCtx, cancel := a.db(ctx)
	u, err := a.users.GetByID(dbCtx, actor.ID)
	cancel()
	if err != nil {
		return storeErr(err)
	}
	if !a.hasher.Verify(u.PasswordHash, in.CurrentPassword) {
		return apperr.Validation([]string{"Current password is incorrect."})
	}

	hash, err := a.hashPassword("New password", in.NewPassword)
	if err != nil {
		return err
	}
	dbCtx, cancel = a.db(ctx)
	err = a.users.UpdatePassword(dbCtx, u.ID, hash)
	cancel()
	if err != nil {
		return apperr.Internal(err)
	}
	a.emit(ctx, queue.NewUserEvent(queue.EventPasswordChanged, u.ID, u.Username, actor.IP))
	return nil
}

type imageSlot struct {
	label   string
	current func(model.User) model.Asset
	persist func(ctx context.Context, id string, as model.Asset) error
	apply   func(*model.User, model.Asset)
}

func (a *Accounts) avatarSlot() imageSlot {
	return imageSlot{
		label:   "Avatar",
		current: func(u model.User) model.Asset { return model.Asset{URL: u.AvatarURL, Key: u.AvatarKey} },
		persist: a.users.UpdateAvatar,
		apply:   func(u *model.User, as model.Asset) { u.AvatarURL, u.AvatarKey = as.URL, as.Key },
	}
}

func (a *Accounts) coverSlot() imageSlot {
	return imageSlot{
		label:   "Cover image",
		current: func(u model.User) model.Asset { return model.Asset{URL: u.CoverImageURL, Key: u.CoverImageKey} },
		persist: a.users.UpdateCoverImage,
		apply:   func(u *model.User, as model.Asset) { u.CoverImageURL, u.CoverImageKey = as.URL, as.Key },
	}
}

// ChangeAvatar uploads f and makes it the avatar of actor.
func (a *Accounts) ChangeAvatar(ctx context.Context, actor Actor, f *storage.StagedFile) (model.PublicUser, error) {
	return a.replaceImage(ctx, actor, f, a.avatarSlot())
}

// ChangeCoverImage uploads f and makes it the cover image of actor.
func (a *Accounts) ChangeCoverImage(ctx context.Context, actor Actor, f *storage.StagedFile) (model.PublicUser, error) {
	return a.replaceImage(ctx, actor, f, a.coverSlot())
}

// replaceImage uploads the new object, persists its reference and only then
// deletes the previous object.  A failed delete is logged and otherwise
// ignored; a failed persist removes the new object again.
func (a *Accounts) replaceImage(ctx context.Context, actor Actor, f *storage.StagedFile, slot imageSlot) (model.PublicUser, error) {
	if f == nil {
		return model.PublicUser{}, apperr.Validation([]string{slot.label + " file is required."})
	}

	dbCtx, cancel := a.db(ctx)
	u, err := a.users.GetByID(dbCtx, actor.ID)
	cancel()
	if err != nil {
		return model.PublicUser{}, storeErr(err)
	}
	old := slot.current(u)

	next, err := a.assets.Upload(ctx, f.Path, f.ContentType)
	if err != nil {
		return model.PublicUser{}, apperr.UploadFailed(err)
	}

	dbCtx, cancel = a.db(ctx)
	err = slot.persist(dbCtx, u.ID, next)
	cancel()
	if err != nil {
		a.dropAssets(ctx, next)
		return model.PublicUser{}, apperr.Internal(err)
	}
	slot.apply(&u, next)

	if old.Key != "" && old.Key != next.Key {
		if err := a.assets.Delete(ctx, old.Key); err != nil {
			a.log.Warn("delete previous "+strings.ToLower(slot.label), zap.String("user_id", u.ID), zap.String("key", old.Key), zap.Error(err))
		}
	}
	return u.Public(), nil
}

// UpdateProfile changes the display name and email of actor.
func (a *Accounts) UpdateProfile(ctx context.Context, actor Actor, in ProfileInput) (model.PublicUser, error) {
	in.normalize()
	if details := validateStruct(in); len(details) > 0 {
		return model.PublicUser{}, apperr.Validation(details)
	}

	dbCtx, cancel := a.db(ctx)
	defer cancel()
	if err := a.users.UpdateProfile(dbCtx, actor.ID, in.FullName, in.Email); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return model.PublicUser{}, conflictErr(false, true)
		}
		return model.PublicUser{}, apperr.Internal(err)
	}
	u, err := a.users.GetByID(dbCtx, actor.ID)
	if err != nil {
		return model.PublicUser{}, storeErr(err)
	}
	return u.Public(), nil
}

// Get returns the public projection of the user with id.
func (a *Accounts) Get(ctx context.Context, id string) (model.PublicUser, error) {
	dbCtx, cancel := a.db(ctx)
	defer cancel()
	u, err := a.users.GetByID(dbCtx, id)
	if err != nil {
		return model.PublicUser{}, storeErr(err)
	}
	return u.Public(), nil
}

// Authoritative loads the stored record of id.  The Role Gate uses it to
// compare the persisted role with the token claim.
func (a *Accounts) Authoritative(ctx context.Context, id string) (model.User, error) {
	dbCtx, cancel := a.db(ctx)
	defer cancel()
	return a.users.GetByID(dbCtx, id)
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// PageBounds clamps limit to [1, 100], defaulting to 20, and a negative
// offset to zero.
func PageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// List returns the admin projection of a page of users, see PageBounds.
func (a *Accounts) List(ctx context.Context, limit, offset int) ([]model.AdminUser, error) {
	limit, offset = PageBounds(limit, offset)

	dbCtx, cancel := a.db(ctx)
	defer cancel()
	users, err := a.users.List(dbCtx, limit, offset)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	out := make([]model.AdminUser, 0, len(users))
	for i := range users {
		out = append(out, users[i].Admin())
	}
	return out, nil
}

// Delete removes the account id.  Users may delete themselves; deleting
// someone else requires both the token role and the stored role of the
// caller to be admin.  Stored images are removed best-effort afterwards.
func (a *Accounts) Delete(ctx context.Context, actor Actor, id string) error {
	if actor.ID != id {
		if actor.Role != model.RoleAdmin {
			return apperr.Forbidden("You are not allowed to delete this user.")
		}
		caller, err := a.Authoritative(ctx, actor.ID)
		if errors.Is(err, repository.ErrUserNotFound) || (err == nil && !caller.IsAdmin()) {
			return apperr.Forbidden("You are not allowed to delete this user.")
		}
		if err != nil {
			return apperr.Internal(err)
		}
	}

	dbCtx, cancel := a.db(ctx)
	u, err := a.users.GetByID(dbCtx, id)
	if err == nil {
		err = a.users.Delete(dbCtx, id)
	}
	cancel()
	if err != nil {
		return storeErr(err)
	}

	for _, as := range []model.Asset{
		{URL: u.AvatarURL, Key: u.AvatarKey},
		{URL: u.CoverImageURL, Key: u.CoverImageKey},
	} {
		if as.Key == "" {
			continue
		}
		if err := a.assets.Delete(ctx, as.Key); err != nil {
			a.log.Warn("delete asset of removed user", zap.String("user_id", id), zap.String("key", as.Key), zap.Error(err))
		}
	}

	ev := queue.NewUserEvent(queue.EventDeleted, u.ID, u.Username, actor.IP)
	if actor.ID != id {
		ev.ActorID = actor.ID
	}
	a.emit(ctx, ev)
	return nil
}

// Promote gives the admin role to username.  It backs the promote command;
// no HTTP route can create admins.
func (a *Accounts) Promote(ctx context.Context, username string) error {
	dbCtx, cancel := a.db(ctx)
	defer cancel()
	if err := a.users.SetRole(dbCtx, username, model.RoleAdmin); err != nil {
		return storeErr(err)
	}
	a.log.Info("user promoted to admin", zap.String("username", username))
	return nil
}
