package client

import (
	"context"
	"os"
	"strings"
)

// CredentialResolver supplies the session token sent as x-access-token.
type CredentialResolver interface {
	Token(ctx context.Context) (string, bool)
}

// StaticToken is a fixed token, e.g. from a flag.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, bool) {
	token := strings.TrimSpace(string(t))
	return token, token != ""
}

// EnvToken reads the token from the named environment variable.
type EnvToken string

func (e EnvToken) Token(context.Context) (string, bool) {
	token := strings.TrimSpace(os.Getenv(string(e)))
	return token, token != ""
}

// FileToken reads the token from a file persisted by a previous login.
type FileToken string

func (f FileToken) Token(context.Context) (string, bool) {
	if strings.TrimSpace(string(f)) == "" {
		return "", false
	}
	data, err := os.ReadFile(string(f))
	if err != nil {
		return "", false
	}
	token := strings.TrimSpace(string(data))
	return token, token != ""
}

// ChainResolver asks each resolver in order; the first token found wins.
type ChainResolver []CredentialResolver

func (c ChainResolver) Token(ctx context.Context) (string, bool) {
	for _, r := range c {
		if r == nil {
			continue
		}
		if token, ok := r.Token(ctx); ok {
			return token, true
		}
	}
	return "", false
}
