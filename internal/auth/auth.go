package auth

import (
	"errors"
	"net/http"
	"os"
	"strings"
)

var (
	ErrMissingBearer = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
)

type Claims struct {
	Subject string
	Token   string
}

type Authenticator interface {
	Authenticate(r *http.Request) (Claims, error)
}

// TokenAuthenticator checks requests against a static bearer token. An empty
// token disables authentication, which is only sensible for local runs.
type TokenAuthenticator struct {
	Token string
}

func NewAuthenticatorFromEnv() *TokenAuthenticator {
	return &TokenAuthenticator{Token: os.Getenv("GATELOG_API_TOKEN")}
}

func (a *TokenAuthenticator) Authenticate(r *http.Request) (Claims, error) {
	if a.Token == "" {
		return Claims{Subject: "anonymous"}, nil
	}

	bearer, err := extractBearer(r)
	if err != nil {
		return Claims{}, err
	}
	if bearer != a.Token {
		return Claims{}, ErrInvalidToken
	}
	return Claims{Subject: "operator", Token: bearer}, nil
}

func extractBearer(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingBearer
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
