package auth

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidTicket      = errors.New("invalid ticket")
	ErrExpiredTicket      = errors.New("ticket is expired")
	ErrWrongUsage         = errors.New("invalid ticket usage")
)

// Authenticator resolves the user behind a websocket upgrade request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// ticketFromRequest reads a ticket from ?ticket= or an Authorization bearer header.
func ticketFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("ticket"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// InsecureAuthenticator trusts ?user_id=. Development only.
type InsecureAuthenticator struct{}

func (InsecureAuthenticator) Authenticate(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if id == "" {
		return "", ErrMissingCredentials
	}
	return id, nil
}
