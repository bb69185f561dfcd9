package synthesis

import (
	"errors"
	"fmt"
)

// ErrAuthMissing is returned by credential sources with nothing configured.
var ErrAuthMissing = errors.New("no speech provider credential configured")

// FailureKind classifies why one chunk could not be synthesized.
type FailureKind int

const (
	AuthMissing FailureKind = iota + 1
	ProviderError
	StorageError
)

func (k FailureKind) String() string {
	switch k {
	case AuthMissing:
		return "auth_missing"
	case ProviderError:
		return "provider_error"
	case StorageError:
		return "storage_error"
	}
	return "unknown"
}

// Failure is the typed error of a synthesis attempt.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("synthesis failed: %s", f.Kind)
	}
	return fmt.Sprintf("synthesis failed: %s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure wraps err with kind.
func NewFailure(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// KindOf reports the failure kind carried by err, treating any other error
// as a provider error.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ProviderError
}
