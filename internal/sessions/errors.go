package sessions

import "errors"

var (
	// ErrInvalidCredentials covers a password mismatch at login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPrincipalNotFound means the login identifier matched no account.
	ErrPrincipalNotFound = errors.New("user not found")
	// ErrUnauthenticated means the presented credential references a
	// principal that no longer exists.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrTokenReuseDetected means a structurally valid refresh token was
	// presented that is not the principal's currently active one, i.e. a
	// superseded token was replayed.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
)
