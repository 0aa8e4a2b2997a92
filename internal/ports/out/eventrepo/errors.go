package eventrepo

import "errors"

var (
	ErrNotFound      = errors.New("event not found")
	ErrAlreadyExists = errors.New("event already exists")
	// ErrRevisionConflict is returned by Save when the stored revision moved underneath the caller.
	ErrRevisionConflict = errors.New("event revision conflict")
)
