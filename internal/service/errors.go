package service

import (
	"errors"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
)

var (
	// ErrOffline short-circuits a sync cycle before any request is made.
	ErrOffline = errors.New("offline: sync skipped")

	ErrChoiceNotFound    = errors.New("choice not found on record")
	ErrChoiceDisabled    = errors.New("choice is disabled")
	ErrNothingToUndo     = errors.New("no applied choice to undo")
	ErrConflictNotFound  = errors.New("conflict not found")
	ErrConflictResolved  = errors.New("conflict already resolved")
	ErrMergedIDMismatch  = errors.New("merged record id does not match the conflict")
	ErrInvalidCredential = errors.New("invalid credentials")
	ErrEmailTaken        = errors.New("email already registered")
)

// ConflictError is returned by the history service when a pushed record lost
// to a newer stored version.
type ConflictError struct {
	Stored *domain.EmotionRecord
}

func (e *ConflictError) Error() string {
	return "conflict detected"
}
