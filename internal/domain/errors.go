package domain

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrInstanceNotFound = errors.New("instance not found")
	ErrAccountNotFound  = errors.New("account not found")
	ErrConflict         = errors.New("conflicting instance state")
	ErrExternalProcess  = errors.New("external process operation failed")
	ErrTransientQuery   = errors.New("transient process query failure")
)
