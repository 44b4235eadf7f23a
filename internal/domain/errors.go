package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrValidation          = errors.New("validation")
	ErrCASConflict         = errors.New("cas-conflict")
	ErrUnsatisfiableRange  = errors.New("unsatisfiable-range")
	ErrFatal               = errors.New("fatal")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
)
