// Package webhook receives Clickup and Todoist webhook deliveries, checks
// their signatures and turns them into bus events.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
)

// ErrUnauthorized is returned when a delivery fails authentication.
var ErrUnauthorized = errors.New("webhook signature mismatch")

// Authenticator validates an inbound delivery against its raw body.
type Authenticator interface {
	Authenticate(r *http.Request, body []byte) error
}

// ClickupAuthenticator checks the hex HMAC-SHA256 in X-Signature.
type ClickupAuthenticator struct {
	Secret string
}

func (a ClickupAuthenticator) Authenticate(r *http.Request, body []byte) error {
	if a.Secret == "" {
		return ErrUnauthorized
	}
	got, err := hex.DecodeString(r.Header.Get("X-Signature"))
	if err != nil || !hmac.Equal(got, sign(a.Secret, body)) {
		return ErrUnauthorized
	}
	return nil
}

// TodoistUserAgent is the User-Agent Todoist sends with webhooks.
const TodoistUserAgent = "Todoist-Webhooks"

// TodoistAuthenticator checks the user agent and the base64 HMAC-SHA256 in
// X-Todoist-Hmac-SHA256.
type TodoistAuthenticator struct {
	Secret string
}

func (a TodoistAuthenticator) Authenticate(r *http.Request, body []byte) error {
	if a.Secret == "" || r.Header.Get("User-Agent") != TodoistUserAgent {
		return ErrUnauthorized
	}
	got, err := base64.StdEncoding.DecodeString(r.Header.Get("X-Todoist-Hmac-SHA256"))
	if err != nil || !hmac.Equal(got, sign(a.Secret, body)) {
		return ErrUnauthorized
	}
	return nil
}

func sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
