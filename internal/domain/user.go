package domain

import "time"

// User limits mirrored by the schema.
const (
	MaxUsernameLength = 64
	MaxEmailLength    = 120
	MaxAboutMeLength  = 140
)

// User represents an author account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // argon2id encoded, never serialized
	IsAdmin      bool      `json:"is_admin"`
	AboutMe      string    `json:"about_me"`
	MemberSince  time.Time `json:"member_since"`
	Revision     int64     `json:"revision"`
}

// IndexFields returns the searchable fields for the user.
func (u *User) IndexFields() map[string]string {
	return map[string]string{
		"username": u.Username,
		"email":    u.Email,
	}
}

// Principal is the identity an operation runs as, resolved by the
// external session service and passed explicitly into every mutation.
type Principal struct {
	UserID  int64
	IsAdmin bool
}

// IsZero reports whether no identity was supplied.
func (p Principal) IsZero() bool {
	return p.UserID == 0
}

// CanModify reports whether the principal may change content owned by authorID.
func (p Principal) CanModify(authorID int64) bool {
	return p.IsAdmin || (p.UserID != 0 && p.UserID == authorID)
}
