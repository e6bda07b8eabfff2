package shared

import (
	"errors"

	"github.com/onsync/onsync/internal/platform/httpx"
)

var (
	// ErrNotFound indicates resource not found. It answers 404 through httpx.
	ErrNotFound = httpx.ErrNotFound
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates the operation needs a signed-in identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUpstream indicates the authentication API failed or was unreachable.
	ErrUpstream = errors.New("upstream unavailable")
)
