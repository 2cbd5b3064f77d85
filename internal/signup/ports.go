package signup

import (
	"context"

	"github.com/ankitsahu6387/expenseTracker/pkg/api/client"
)

// LoginPath is where a newly registered user is sent.
const LoginPath = "/login"

// RegisterRequest is the body sent to the registration endpoint.
type RegisterRequest struct {
	FullName        string
	Email           string
	Password        Secret
	ProfileImageURL string
}

// AuthResult is what the registration endpoint returns on success.
type AuthResult struct {
	Token string
	User  client.User
}

// Uploader stores a profile photo and returns its public URL.
type Uploader interface {
	UploadPhoto(ctx context.Context, p Photo) (string, error)
}

// Registrar creates the account.
type Registrar interface {
	Register(ctx context.Context, req RegisterRequest) (AuthResult, error)
}

// TokenStore is durable client storage for the session token.
type TokenStore interface {
	SaveToken(ctx context.Context, token string) error
}

// Session is the shared state holding the signed-in user.
type Session interface {
	Update(ctx context.Context, user client.User) error
}

// Navigator moves the user to another view.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Effects are the per-caller collaborators a successful submission writes to.
type Effects struct {
	Tokens    TokenStore
	Session   Session
	Navigator Navigator
}
