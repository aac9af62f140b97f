// Package ederrors implements the error taxonomy of §7: a small set of typed
// errors that every other package returns instead of ad-hoc sentinel values,
// so callers can branch on Kind without caring which component raised it.
package ederrors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind enumerates the error taxonomy.
type Kind int

const (
	Unknown Kind = iota
	NotFound
	InvalidArgument
	IoError
	ProtocolError
	RemoteError
	VersionMismatch
	MountGenerationChanged
	Cancelled
	Bug
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case InvalidArgument:
		return "InvalidArgument"
	case IoError:
		return "IoError"
	case ProtocolError:
		return "ProtocolError"
	case RemoteError:
		return "RemoteError"
	case VersionMismatch:
		return "VersionMismatch"
	case MountGenerationChanged:
		return "MountGenerationChanged"
	case Cancelled:
		return "Cancelled"
	case Bug:
		return "Bug"
	default:
		return "Unknown"
	}
}

// TypedError is the concrete error type behind every Kind above. RemoteType
// is only populated for RemoteError (the backing store or helper subprocess's
// own error "type" string, e.g. "ResetRepoError").
type TypedError struct {
	Kind       Kind
	Message    string
	RemoteType string
	Err        error
}

func (e *TypedError) Error() string {
	if e.Kind == RemoteError && e.RemoteType != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s{%s}: %s: %v", e.Kind, e.RemoteType, e.Message, e.Err)
		}
		return fmt.Sprintf("%s{%s}: %s", e.Kind, e.RemoteType, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TypedError) Unwrap() error { return e.Err }

func newTyped(kind Kind, message string, err error) error {
	return &TypedError{Kind: kind, Message: message, Err: err}
}

func NewNotFound(message string, err error) error         { return newTyped(NotFound, message, err) }
func NewInvalidArgument(message string, err error) error   { return newTyped(InvalidArgument, message, err) }
func NewIoError(message string, err error) error           { return newTyped(IoError, message, err) }
func NewProtocolError(message string, err error) error     { return newTyped(ProtocolError, message, err) }
func NewVersionMismatch(message string, err error) error    { return newTyped(VersionMismatch, message, err) }
func NewMountGenerationChanged(message string) error        { return newTyped(MountGenerationChanged, message, nil) }
func NewCancelled(message string) error                     { return newTyped(Cancelled, message, nil) }
func NewBug(message string) error                            { return newTyped(Bug, message, nil) }

// NewRemoteError wraps a typed error reported by the backing store or a
// helper subprocess; remoteType is the type string the remote side sent
// (e.g. "ResetRepoError"), which HgImporterManager inspects to decide
// whether to retry.
func NewRemoteError(remoteType, message string) error {
	return &TypedError{Kind: RemoteError, Message: message, RemoteType: remoteType}
}

func Is(kind Kind, err error) bool {
	var te *TypedError
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}

func IsNotFound(err error) bool               { return Is(NotFound, err) }
func IsInvalidArgument(err error) bool         { return Is(InvalidArgument, err) }
func IsIoError(err error) bool                 { return Is(IoError, err) }
func IsProtocolError(err error) bool           { return Is(ProtocolError, err) }
func IsVersionMismatch(err error) bool         { return Is(VersionMismatch, err) }
func IsMountGenerationChanged(err error) bool  { return Is(MountGenerationChanged, err) }
func IsCancelled(err error) bool               { return Is(Cancelled, err) }
func IsBug(err error) bool                     { return Is(Bug, err) }

// RemoteTypeOf returns the remote "type" string of a RemoteError, or "" if
// err is not a RemoteError. HgImporterManager uses this to recognize
// "ResetRepoError" and trigger its one-shot retry.
func RemoteTypeOf(err error) string {
	var te *TypedError
	if errors.As(err, &te) && te.Kind == RemoteError {
		return te.RemoteType
	}
	return ""
}

// Wrap adds context to err while preserving its cause chain, using
// github.com/pkg/errors so that callers further up the stack can still
// recover a stack trace via pkgerrors.Cause when debugging.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, message)
}

func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrapf(err, format, args...)
}

// Cause unwraps err to find the root cause, as reported by github.com/pkg/errors.
func Cause(err error) error { return pkgerrors.Cause(err) }
