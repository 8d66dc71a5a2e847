// Package ntserr defines the kind-tagged error type shared by every core
// subsystem, matching the taxonomy in spec §7. Callers distinguish error
// kinds with errors.Is/errors.As; the adapter layer maps Kind to a tool-call
// diagnostic without needing to parse message text.
package ntserr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy from spec §7.
type Kind string

const (
	KindInvalidArgument     Kind = "InvalidArgument"
	KindPathEscape          Kind = "PathEscape"
	KindNotFound            Kind = "NotFound"
	KindBinary              Kind = "Binary"
	KindTokenRequired       Kind = "TokenRequired"
	KindTokenMalformed      Kind = "TokenMalformed"
	KindTokenPathMismatch   Kind = "TokenPathMismatch"
	KindTokenRangeMismatch  Kind = "TokenRangeMismatch"
	KindTokenStale          Kind = "TokenStale"
	KindDiffConflict        Kind = "DiffConflict"
	KindCheckpointNotFound  Kind = "CheckpointNotFound"
	KindNoOperationsToUndo  Kind = "NoOperationsToUndo"
	KindNoOperationsToRedo  Kind = "NoOperationsToRedo"
	KindPartialUndo         Kind = "PartialUndo"
	KindSymbolNotFound      Kind = "SymbolNotFound"
	KindAmbiguousSymbol     Kind = "AmbiguousSymbol"
	KindUnsupportedLanguage Kind = "UnsupportedLanguage"
	KindExternalModified    Kind = "ExternalModification"
	KindTimeout             Kind = "Timeout"
	KindSignatureConflict   Kind = "SignatureConflict"
	KindInternal            Kind = "Internal"
)

// Error is the single error value surfaced by the core to the adapter.
type Error struct {
	Kind        Kind
	Message     string
	Suggestions []string
	Cause       error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, ntserr.Kind(...)) style checks via a sentinel
// constructed with New(kind, "") when the caller only cares about Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs an *Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error of the given kind around a causal error.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithSuggestions attaches suggestion strings (nearest names, enabled
// languages, ...) used by SymbolNotFound/AmbiguousSymbol/UnsupportedLanguage.
func (e *Error) WithSuggestions(s ...string) *Error {
	e.Suggestions = append(e.Suggestions, s...)
	return e
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is, or wraps, an *Error of kind k, by comparing
// KindOf(err) with k.
func Is(err error, k Kind) bool {
	kind, ok := KindOf(err)
	return ok && kind == k
}
