// Package queue carries user lifecycle events over RabbitMQ: the payload
// type, a publisher used by the request path and the background consumer
// that keeps the audit log.
package queue

import "time"

// Event types published on the user events queue.
const (
	EventSignedUp        = "user.signed_up"
	EventLoggedIn        = "user.logged_in"
	EventLoggedOut       = "user.logged_out"
	EventPasswordChanged = "user.password_changed"
	EventDeleted         = "user.deleted"
)

// UserEvent is published whenever an account changes session or lifecycle
// state.  It carries enough to write an audit line without querying the
// database and never includes secrets.
type UserEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	IP       string `json:"ip,omitempty"`
	ActorID  string `json:"actor_id,omitempty"` // set when someone else acted on the account
	At       string `json:"at"`
}

// NewUserEvent stamps a UserEvent with the current UTC time.
func NewUserEvent(typ, userID, username, ip string) UserEvent {
	return UserEvent{
		Type:     typ,
		UserID:   userID,
		Username: username,
		IP:       ip,
		At:       time.Now().UTC().Format(time.RFC3339),
	}
}
