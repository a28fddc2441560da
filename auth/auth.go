package auth

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrEmailTaken         = errors.New("auth: email already registered")
	ErrNotAuthenticated   = errors.New("auth: not authenticated")
	ErrNoSession          = errors.New("auth: no stored session")
)

// User is the signed-in account.
type User struct {
	ID          string    `json:"id" msgpack:"id"`
	Email       string    `json:"email" msgpack:"email"`
	DisplayName string    `json:"displayName,omitempty" msgpack:"display_name"`
	CreatedAt   time.Time `json:"createdAt" msgpack:"created_at"`
}

// Session is an authenticated session as issued by the gateway.
type Session struct {
	AccessToken  string    `json:"accessToken" msgpack:"access_token"`
	RefreshToken string    `json:"refreshToken,omitempty" msgpack:"refresh_token"`
	ExpiresAt    time.Time `json:"expiresAt" msgpack:"expires_at"`
	User         User      `json:"user" msgpack:"user"`
}

// Expired reports whether the session is past its expiry. Sessions without
// an expiry never expire.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SignUpInput registers a new account.
type SignUpInput struct {
	Email       string
	Password    string
	DisplayName string
}

// Validate implements validation.Validatable.
func (in SignUpInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, is.EmailFormat),
		validation.Field(&in.Password, validation.Required, validation.Length(6, 72)),
		validation.Field(&in.DisplayName, validation.Length(0, 80)),
	)
}

// SignInInput authenticates with email and password.
type SignInInput struct {
	Email    string
	Password string
}

// Validate implements validation.Validatable.
func (in SignInInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, is.EmailFormat),
		validation.Field(&in.Password, validation.Required),
	)
}

// Gateway is the remote authentication service.
type Gateway interface {
	SignUp(ctx context.Context, in SignUpInput) (Session, error)
	SignIn(ctx context.Context, in SignInInput) (Session, error)
	SignOut(ctx context.Context, accessToken string) error

	// GetUser resolves an access token. It returns ErrNotAuthenticated when
	// the token is unknown or expired.
	GetUser(ctx context.Context, accessToken string) (User, error)
}
