package usecase

import (
	"errors"
	"fmt"
)

// ErrUserNotFound is returned when the user record cannot be located. It is
// the only failure that ends a streaming connection.
var ErrUserNotFound = errors.New("user not found")

// TranscriptionError fails the turn and is reported to the caller as is
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed: %v", e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// GenerationError is logged and replaced by an apology; it never leaves the
// generation stage
type GenerationError struct {
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// SynthesisError is logged; the turn completes without audio
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// PersistenceError is logged; unsaved turns of a streaming session are lost
type PersistenceError struct {
	ConversationID string
	Err            error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting conversation %s: %v", e.ConversationID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
