package client

import (
	"net/http"
)

// Credentials attach authentication to an outgoing request.
// Implementations are read-only and safe for concurrent use.
type Credentials interface {
	Apply(req *http.Request)
}

// APIKeyUsername is the user name Lizard expects for personal API keys.
const APIKeyUsername = "__key__"

// NoAuth sends anonymous requests.
type NoAuth struct{}

// Apply implements Credentials.
func (NoAuth) Apply(*http.Request) {}

// HeaderAuth sends username and password as plain request headers,
// the scheme used by older Lizard deployments.
type HeaderAuth struct {
	Username string
	Password string
}

// Apply implements Credentials.
func (a HeaderAuth) Apply(req *http.Request) {
	if a.Username == "" || a.Password == "" {
		return
	}
	req.Header.Set("username", a.Username)
	req.Header.Set("password", a.Password)
}

// BasicAuth uses HTTP Basic Authentication.
type BasicAuth struct {
	Username string
	Password string
}

// Apply implements Credentials.
func (a BasicAuth) Apply(req *http.Request) {
	if a.Username == "" && a.Password == "" {
		return
	}
	req.SetBasicAuth(a.Username, a.Password)
}

// APIKey returns basic auth credentials for a Lizard personal API key.
func APIKey(key string) BasicAuth {
	return BasicAuth{Username: APIKeyUsername, Password: key}
}

// BearerToken uses Bearer token authentication.
type BearerToken struct {
	Token string
}

// Apply implements Credentials.
func (a BearerToken) Apply(req *http.Request) {
	if a.Token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
}
