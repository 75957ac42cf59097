package history

import (
	"errors"

	"github.com/pders01/confhist/internal/models"
)

var (
	ErrMalformedIdentifier = models.ErrMalformedIdentifier
	ErrInvalidEntity       = models.ErrInvalidEntity
	ErrInvalidOperation    = models.ErrInvalidOperation

	ErrWriteFailure      = errors.New("history write failed")
	ErrNotFound          = errors.New("revision not found")
	ErrEncodingFailure   = errors.New("snapshot path cannot be encoded")
	ErrInvalidTransition = errors.New("operation not allowed after previous revision")
	ErrEntityExists      = errors.New("entity already has history")
	ErrCorruptSnapshot   = errors.New("snapshot checksum mismatch")
	ErrInvalidUser       = errors.New("user name and id are required")
)
