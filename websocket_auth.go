package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"endlessdrive/server/internal/auth"
	"endlessdrive/server/internal/chat"
)

const chatTokenTTL = 12 * time.Hour

type hmacChatAuthenticator struct {
	verifier *auth.HMACTokenVerifier
}

func newChatVerifier(secret string) (*auth.HMACTokenVerifier, error) {
	verifier, err := auth.NewHMACTokenVerifier(secret, 2*time.Second)
	if err != nil {
		return nil, err
	}
	verifier.RequireAudience(auth.ChatAudience)
	return verifier, nil
}

// newChatAuthenticator returns nil when no secret is configured, leaving chat anonymous.
func newChatAuthenticator(secret string) (chat.Authenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, nil
	}
	verifier, err := newChatVerifier(secret)
	if err != nil {
		return nil, err
	}
	return &hmacChatAuthenticator{verifier: verifier}, nil
}

// Authenticate validates the incoming token and returns the chat display name.
func (a *hmacChatAuthenticator) Authenticate(r *http.Request) (string, error) {
	if a == nil || a.verifier == nil {
		return "", errors.New("verifier not configured")
	}
	token := strings.TrimSpace(r.URL.Query().Get("auth_token"))
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Auth-Token"))
	}
	if token == "" {
		return "", errors.New("missing auth token")
	}
	claims, err := a.verifier.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
