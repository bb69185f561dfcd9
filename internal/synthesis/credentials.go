package synthesis

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// CredentialSource looks up the provider credential out of band.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
}

// StaticCredentials always returns the same key.
type StaticCredentials string

func (s StaticCredentials) Credential(context.Context) (string, error) {
	if key := strings.TrimSpace(string(s)); key != "" {
		return key, nil
	}
	return "", ErrAuthMissing
}

// EnvCredentials reads the key from an environment variable, falling back
// to a file holding only the key.
type EnvCredentials struct {
	Var  string
	File string
}

func (e EnvCredentials) Credential(context.Context) (string, error) {
	if e.Var != "" {
		if key := strings.TrimSpace(os.Getenv(e.Var)); key != "" {
			return key, nil
		}
	}
	if e.File != "" {
		data, err := os.ReadFile(e.File)
		if err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("read credential file: %w", err)
		}
		if key := strings.TrimSpace(string(data)); key != "" {
			return key, nil
		}
	}
	return "", ErrAuthMissing
}
