package models

import (
	"context"
	"errors"
	"fmt"
)

// Fatal error kinds. Any of these ends the run.
var (
	// ErrDataIntegrity marks a violated structural invariant of the input data.
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrUnknownSpeaker is returned when a speaker label cannot be decoded by the roster.
	ErrUnknownSpeaker = fmt.Errorf("%w: unknown speaker", ErrDataIntegrity)

	// ErrStorage wraps failures of the relational store.
	ErrStorage = errors.New("storage failure")
)

// Series-scoped error kinds. These abort the current series only.
var (
	// ErrGenerationCutoff is matched by GenerationCutoffError.
	ErrGenerationCutoff = errors.New("generation cut off at token limit")

	// ErrCompletionService covers transport failures, bad statuses and malformed responses.
	ErrCompletionService = errors.New("completion service error")

	// ErrPromptTooLarge is returned when a prompt does not fit even with an empty context window.
	ErrPromptTooLarge = errors.New("prompt exceeds context budget with empty context")
)

// GenerationCutoffError reports a completion that stopped at the length limit.
type GenerationCutoffError struct {
	Partial string
}

func (e *GenerationCutoffError) Error() string {
	return fmt.Sprintf("maximum number of tokens reached: %q", e.Partial)
}

// Is makes errors.Is(err, ErrGenerationCutoff) match.
func (e *GenerationCutoffError) Is(target error) bool {
	return target == ErrGenerationCutoff
}

// IsFatal reports whether err must terminate the whole run rather than a single series.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrDataIntegrity) ||
		errors.Is(err, ErrStorage) ||
		errors.Is(err, context.Canceled)
}
