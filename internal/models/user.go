package models

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// User is the Identity record. Email is the only mutable identifier.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Email     string    `bun:"email,unique,notnull" json:"email"`
	FirstName string    `bun:"first_name,notnull" json:"first_name"`
	LastName  string    `bun:"last_name,notnull" json:"last_name"`
	Address   string    `bun:"address,notnull" json:"address"`
	IsStaff   bool      `bun:"is_staff,notnull" json:"is_staff"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// Username is the login name expected by external auth integrations.
func (u *User) Username() string {
	return u.Email
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) FullNameWithEmail() string {
	name := u.FullName()
	if name == "" {
		return u.Email
	}
	if u.Email == "" || u.Email == name {
		return name
	}
	return fmt.Sprintf("%s <%s>", name, u.Email)
}

// NormalizeEmail lower-cases and validates an address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", NewValidationError("email", "is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", NewValidationError("email", "%q is not a valid email address", email)
	}
	return email, nil
}
