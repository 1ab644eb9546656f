package services

import "errors"

var (
	// ErrForbidden is returned when the caller's roles do not permit an action.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials is returned when a username/password pair does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUsernameTaken is returned when registering a username that already exists.
	ErrUsernameTaken = errors.New("username already taken")
)
