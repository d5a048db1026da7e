package models

import (
	"errors"
	"time"

	"commenthub/pkg/utils"
)

// User represents an account on the comment service
type User struct {
	ID        int64      `json:"id" yaml:"id"`
	Username  string     `json:"username" yaml:"username"`
	Email     string     `json:"email" yaml:"email"`
	HomePage  string     `json:"home_page,omitempty" yaml:"home_page,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// UserPatch carries the fields of a local profile update. Nil fields are left untouched.
type UserPatch struct {
	Username *string
	Email    *string
	HomePage *string
}

// Apply merges the patch into a copy of u
func (p UserPatch) Apply(u User) User {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.HomePage != nil {
		u.HomePage = *p.HomePage
	}
	return u
}

// LoginRequest
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
}

// Credentials returns the login credentials matching this registration
func (r RegisterRequest) Credentials() LoginRequest {
	return LoginRequest{Username: r.Username, Password: r.Password}
}

// ValidateRegisterRequest checks what can be checked before talking to the service
func ValidateRegisterRequest(req *RegisterRequest) error {
	if req.Username == "" || req.Password == "" {
		return errors.New("username and password are required")
	}
	if req.Password != req.Password2 {
		return errors.New("passwords do not match")
	}
	if err := utils.ValidateUsername(req.Username); err != nil {
		return err
	}
	return utils.ValidateEmail(req.Email)
}

// TokenPair is the credential pair issued by the token endpoint.
// Refresh may be empty on a refresh response when the service does not rotate it.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// RefreshRequest
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}
