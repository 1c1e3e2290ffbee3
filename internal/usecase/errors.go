package usecase

import (
	"fmt"
	"strings"
)

// Kind identifies a user-facing error category. Kinds are part of the API
// contract: they appear verbatim in error responses and error frames.
type Kind string

const (
	KindMissingConversation Kind = "missing_conversation"
	KindMissingLanguage     Kind = "missing_language"
	KindUnauthenticated     Kind = "unauthenticated"
	KindNoInput             Kind = "no_input"
	KindAudioTooShort       Kind = "audio_too_short"
	KindInvalidLanguage     Kind = "invalid_language"
	KindProcessingFailed    Kind = "processing_failed"
)

type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Kind, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// UserMessage returns the human-readable text sent alongside the kind.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindMissingConversation:
		return "A conversation id is required."
	case KindMissingLanguage:
		return "Both a speaking language and an answer language are required."
	case KindUnauthenticated:
		return "The supplied identity does not match the verified credential."
	case KindNoInput:
		return "Send either a recording or a text message."
	case KindAudioTooShort:
		return "The recording is too short to transcribe."
	case KindInvalidLanguage:
		return "The selected language is not supported."
	default:
		return "Something went wrong while processing the request."
	}
}

// mapProviderError remaps recognizable provider failures onto the specific
// user-facing kinds; everything else collapses to processing_failed.
func mapProviderError(reason string, err error) *Error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "audio_too_short"),
		strings.Contains(msg, "audio file is too short"),
		strings.Contains(msg, "minimum audio length"):
		return newError(KindAudioTooShort, reason, err)
	case strings.Contains(msg, "invalid_language"),
		strings.Contains(msg, "unsupported_language"),
		strings.Contains(msg, "invalid language"):
		return newError(KindInvalidLanguage, reason, err)
	default:
		return newError(KindProcessingFailed, reason, err)
	}
}
