// Package session keeps per-browser state on the server.
//
// The browser only holds an opaque id cookie. Data is stored in PostgreSQL,
// Redis or memory and is written back before the response headers go out, so
// a redirect never races the save.
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"webcaf.gov.uk/webcaf/internal/workflow"
)

// ErrNotFound is returned by stores for unknown or expired ids.
var ErrNotFound = errors.New("session not found")

// Data is everything kept between requests.
type Data struct {
	UserID           int64 `json:"user_id,omitempty"`
	IsStaff          bool  `json:"is_staff,omitempty"`
	Verified         bool  `json:"verified,omitempty"`
	CurrentProfileID int64 `json:"current_profile_id,omitempty"`
	ProfileCount     int   `json:"profile_count,omitempty"`

	Draft workflow.Draft `json:"draft"`

	OIDCState   string `json:"oidc_state,omitempty"`
	OIDCNonce   string `json:"oidc_nonce,omitempty"`
	OIDCIDToken string `json:"oidc_id_token,omitempty"`
	LoginNext   string `json:"login_next,omitempty"`
	CSRFToken   string `json:"csrf_token,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// worthStoring reports whether d holds anything a later request needs.
func (d Data) worthStoring() bool {
	return d.UserID != 0 || d.CSRFToken != "" || d.OIDCState != "" || d.LoginNext != "" || !d.Draft.Empty()
}

// Store persists session data.
type Store interface {
	Load(ctx context.Context, id string) (*Data, error)
	Save(ctx context.Context, id string, data *Data, expiresAt time.Time) error
	Delete(ctx context.Context, id string) error
}

// Session is the request's view of the stored data.
type Session struct {
	ID   string
	Data Data

	previousID string
	modified   bool
	destroyed  bool
}

// Changed marks the data for saving.
func (s *Session) Changed() {
	s.modified = true
}

// Authenticated reports whether a user is signed in.
func (s *Session) Authenticated() bool {
	return s.Data.UserID != 0
}

// Login binds the session to a user under a fresh id. The second factor has
// to be passed again.
func (s *Session) Login(userID int64, isStaff bool) {
	s.rotate()
	s.Data.UserID = userID
	s.Data.IsStaff = isStaff
	s.Data.Verified = false
	s.Data.CurrentProfileID = 0
	s.Data.ProfileCount = 0
	s.Data.Draft = workflow.Draft{}
	s.Data.OIDCState = ""
	s.Data.OIDCNonce = ""
	s.modified = true
}

// Destroy discards the session. The cookie is cleared on the response.
func (s *Session) Destroy() {
	s.destroyed = true
	s.Data = Data{}
}

// CSRFToken returns the session's form token, creating it on first use.
func (s *Session) CSRFToken() string {
	if s.Data.CSRFToken == "" {
		s.Data.CSRFToken = rand.Text()
		s.modified = true
	}
	return s.Data.CSRFToken
}

// ResetDraft forgets the in-progress assessment wizard.
func (s *Session) ResetDraft() {
	if !s.Data.Draft.Empty() {
		s.Data.Draft = workflow.Draft{}
		s.modified = true
	}
}

// SetDraft replaces the wizard state.
func (s *Session) SetDraft(d workflow.Draft) {
	s.Data.Draft = d
	s.modified = true
}

func (s *Session) rotate() {
	if s.previousID == "" {
		s.previousID = s.ID
	}
	s.ID = newID()
	s.Data.CSRFToken = ""
}

func newID() string {
	return rand.Text()
}
