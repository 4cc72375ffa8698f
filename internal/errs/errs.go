// Package errs defines the failure kinds surfaced to callers of the caption
// editor and burn pipeline. Every failure keeps its kind through wrapping so
// the HTTP and CLI layers can map it to a distinct message.
package errs

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnknown              Kind = "Unknown"
	KindUploadRejected       Kind = "UploadRejected"
	KindTranscriptionFailed  Kind = "TranscriptionFailed"
	KindInvalidTiming        Kind = "InvalidTiming"
	KindInvalidStyle         Kind = "InvalidStyle"
	KindFontResolutionFailed Kind = "FontResolutionFailed"
	KindEncodeFailed         Kind = "EncodeFailed"
	KindTimeout              Kind = "Timeout"
	KindCanceled             Kind = "Canceled"
	KindVerificationFailed   Kind = "VerificationFailed"
	KindNotFound             Kind = "NotFound"
)

// Error is a failure with a kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a kinded error. A nil err is allowed.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a kinded error from a format string.
func Errorf(kind Kind, op string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the outermost kind found in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether a caller may retry once. The core never retries.
func Retryable(kind Kind) bool {
	switch kind {
	case KindTranscriptionFailed, KindEncodeFailed:
		return true
	}
	return false
}

var messages = map[Kind]string{
	KindUploadRejected:       "The file was rejected. Upload an mp4, mov, avi, mkv or webm video within the size limit.",
	KindTranscriptionFailed:  "Transcription failed. Check the transcription provider and try again.",
	KindInvalidTiming:        "A caption has invalid timing. Make sure every caption ends after it starts.",
	KindInvalidStyle:         "The caption style is invalid. Adjust font size, outline width or vertical margin.",
	KindFontResolutionFailed: "The selected font could not be loaded. Pick another font or check the network.",
	KindEncodeFailed:         "Video encoding failed. The encoder reported an error while burning captions.",
	KindTimeout:              "The export took too long and was stopped.",
	KindCanceled:             "The export was canceled.",
	KindVerificationFailed:   "The exported video could not be verified as playable.",
	KindNotFound:             "The requested item does not exist.",
	KindUnknown:              "An unexpected internal error occurred.",
}

// Message is the user-facing text for a kind.
func Message(kind Kind) string {
	if m, ok := messages[kind]; ok {
		return m
	}
	return messages[KindUnknown]
}
