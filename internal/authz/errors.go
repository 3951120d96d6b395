package authz

import "errors"

var (
	ErrPermissionDenied = errors.New("authz: permission denied")
	ErrNotFound         = errors.New("authz: not found")
	ErrConflict         = errors.New("authz: already exists")
	ErrInvalidInput     = errors.New("authz: invalid input")
	ErrWrongModel       = errors.New("authz: operation not available for this authorization model")
)
