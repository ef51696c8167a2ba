// Package testutil provides in-memory stand-ins for the user store, the
// object store and the event publisher.  They follow the same contracts as
// the MySQL, S3 and RabbitMQ implementations, including unique keys and the
// refresh token compare-and-set.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/iliyamo/video-share-api/internal/model"
	"github.com/iliyamo/video-share-api/internal/queue"
	"github.com/iliyamo/video-share-api/internal/repository"
)

// MemUsers is a concurrency-safe in-memory user store.  Fail maps a method
// name to the error that method returns.
type MemUsers struct {
	mu    sync.Mutex
	users map[string]model.User
	Fail  map[string]error
}

func NewMemUsers() *MemUsers {
	return &MemUsers{users: map[string]model.User{}, Fail: map[string]error{}}
}

func (m *MemUsers) fail(method string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail[method]
}

// Put stores u as is, bypassing every check.  Tests use it to seed state.
func (m *MemUsers) Put(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// Count returns the number of stored users.
func (m *MemUsers) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *MemUsers) Create(_ context.Context, u *model.User) error {
	if err := m.fail("Create"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Username = repository.NormalizeUsername(u.Username)
	u.Email = repository.NormalizeEmail(u.Email)
	for _, o := range m.users {
		if o.Username == u.Username {
			return repository.ErrUsernameTaken
		}
		if o.Email == u.Email {
			return repository.ErrEmailTaken
		}
	}
	if u.ID == "" {
		u.ID = ulid.Make().String()
	}
	if !u.Role.Valid() {
		u.Role = model.RoleUser
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	m.users[u.ID] = *u
	return nil
}

func (m *MemUsers) GetByID(_ context.Context, id string) (model.User, error) {
	if err := m.fail("GetByID"); err != nil {
		return model.User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (m *MemUsers) find(match func(model.User) bool) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return u, nil
		}
	}
	return model.User{}, repository.ErrUserNotFound
}

func (m *MemUsers) GetByUsername(_ context.Context, username string) (model.User, error) {
	if err := m.fail("GetByUsername"); err != nil {
		return model.User{}, err
	}
	un := repository.NormalizeUsername(username)
	return m.find(func(u model.User) bool { return u.Username == un })
}

func (m *MemUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	if err := m.fail("GetByEmail"); err != nil {
		return model.User{}, err
	}
	em := repository.NormalizeEmail(email)
	return m.find(func(u model.User) bool { return u.Email == em })
}

func (m *MemUsers) Taken(_ context.Context, username, email string) (bool, bool, error) {
	if err := m.fail("Taken"); err != nil {
		return false, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	un, em := repository.NormalizeUsername(username), repository.NormalizeEmail(email)
	var nu, ne bool
	for _, u := range m.users {
		nu = nu || u.Username == un
		ne = ne || u.Email == em
	}
	return nu, ne, nil
}

func (m *MemUsers) List(_ context.Context, limit, offset int) ([]model.User, error) {
	if err := m.fail("List"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	all := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		all = append(all, u)
	}
	m.mu.Unlock()
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	if offset >= len(all) {
		return []model.User{}, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemUsers) update(method, id string, fn func(*model.User) error) error {
	if err := m.fail(method); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil // UPDATE on a missing row matches nothing
	}
	if err := fn(&u); err != nil {
		return err
	}
	u.UpdatedAt = time.Now().UTC()
	m.users[id] = u
	return nil
}

func (m *MemUsers) IncrementLoginAttempts(_ context.Context, id string) error {
	return m.update("IncrementLoginAttempts", id, func(u *model.User) error {
		u.LoginAttempts++
		return nil
	})
}

func (m *MemUsers) UpdatePassword(_ context.Context, id, hash string) error {
	return m.update("UpdatePassword", id, func(u *model.User) error {
		u.PasswordHash = hash
		return nil
	})
}

func (m *MemUsers) UpdateAvatar(_ context.Context, id string, a model.Asset) error {
	return m.update("UpdateAvatar", id, func(u *model.User) error {
		u.AvatarURL, u.AvatarKey = a.URL, a.Key
		return nil
	})
}

func (m *MemUsers) UpdateCoverImage(_ context.Context, id string, a model.Asset) error {
	return m.update("UpdateCoverImage", id, func(u *model.User) error {
		u.CoverImageURL, u.CoverImageKey = a.URL, a.Key
		return nil
	})
}

// UpdateProfile enforces the email unique key like the database does.
func (m *MemUsers) UpdateProfile(_ context.Context, id, fullName, email string) error {
	if err := m.fail("UpdateProfile"); err != nil {
		return err
	}
	em := repository.NormalizeEmail(email)
	m.mu.Lock()
	for oid, o := range m.users {
		if oid != id && o.Email == em {
			m.mu.Unlock()
			return repository.ErrEmailTaken
		}
	}
	m.mu.Unlock()
	return m.update("", id, func(u *model.User) error {
		u.FullName, u.Email = strings.TrimSpace(fullName), em
		return nil
	})
}

func (m *MemUsers) SetRole(_ context.Context, username string, role model.Role) error {
	if err := m.fail("SetRole"); err != nil {
		return err
	}
	u, err := m.find(func(u model.User) bool { return u.Username == repository.NormalizeUsername(username) })
	if err != nil {
		return err
	}
	return m.update("", u.ID, func(u *model.User) error {
		u.Role = role
		return nil
	})
}

func (m *MemUsers) Delete(_ context.Context, id string) error {
	if err := m.fail("Delete"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *MemUsers) RecordLogin(_ context.Context, id string, rec model.LoginRecord) error {
	return m.update("RecordLogin", id, func(u *model.User) error {
		at := rec.At.UTC()
		u.LoginAttempts = 0
		u.IsLoggedIn = true
		u.LastLogin = &at
		u.LastLoginIP = rec.IP
		u.UserAgent = rec.UserAgent
		u.RefreshToken = rec.RefreshToken
		return nil
	})
}

func (m *MemUsers) RotateRefreshToken(_ context.Context, id, current, next string) error {
	return m.update("RotateRefreshToken", id, func(u *model.User) error {
		if u.RefreshToken == "" || u.RefreshToken != current {
			return repository.ErrRefreshMismatch
		}
		u.RefreshToken = next
		return nil
	})
}

func (m *MemUsers) RecordLogout(_ context.Context, id, ip string, at time.Time) error {
	return m.update("RecordLogout", id, func(u *model.User) error {
		at := at.UTC()
		u.IsLoggedIn = false
		u.LastLogout = &at
		u.LastLogoutIP = ip
		u.RefreshToken = ""
		return nil
	})
}

// MemAssets records uploads and deletes.  FailUpload makes the n-th upload
// (1-based) fail; DeleteErr makes every delete fail.
type MemAssets struct {
	mu         sync.Mutex
	seq        int
	Stored     map[string]model.Asset
	Deleted    []string
	FailUpload int
	UploadErr  error
	DeleteErr  error
}

func NewMemAssets() *MemAssets { return &MemAssets{Stored: map[string]model.Asset{}} }

func (m *MemAssets) Upload(_ context.Context, localPath, _ string) (model.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if m.FailUpload == m.seq {
		err := m.UploadErr
		if err == nil {
			err = fmt.Errorf("upload %s failed", localPath)
		}
		return model.Asset{}, err
	}
	key := fmt.Sprintf("uploads/%d", m.seq)
	a := model.Asset{URL: "https://cdn.test/" + key, Key: key}
	m.Stored[key] = a
	return a, nil
}

func (m *MemAssets) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.Deleted = append(m.Deleted, key)
	delete(m.Stored, key)
	return nil
}

// Len returns the number of objects currently stored.
func (m *MemAssets) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Stored)
}

// Events records published events.  When Gate is set, Publish blocks
// until it is closed or ctx ends.
type Events struct {
	mu   sync.Mutex
	list []queue.UserEvent
	Err  error
	Gate chan struct{}
}

func (e *Events) Publish(ctx context.Context, ev queue.UserEvent) error {
	if e.Gate != nil {
		select {
		case <-e.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, ev)
	return e.Err
}

// Types returns the published event types in order.
func (e *Events) Types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.list))
	for i, ev := range e.list {
		out[i] = ev.Type
	}
	return out
}
