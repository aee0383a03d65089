// Package vfserr defines the namespace's error taxonomy as typed Go errors,
// independent of how the CLI chooses to render them.
package vfserr

import "fmt"

// Code classifies an Error into one of the taxonomy's surface classes.
type Code int

const (
	// NotFound means a resolved name does not exist.
	NotFound Code = iota
	// AlreadyExists means a name collides with an existing entry on create.
	AlreadyExists
	// TypeMismatch means a file was expected where a directory was found,
	// or vice versa.
	TypeMismatch
	// NotEmpty means rmdir was attempted on a non-empty directory.
	NotEmpty
	// NameTooLong means a create name exceeds the 19-character bound.
	NameTooLong
	// CapacityExhausted means there were not enough free blocks for the
	// full compound operation.
	CapacityExhausted
	// HostIOError means the underlying host file was missing, not a
	// regular file, or failed to read/write.
	HostIOError
)

// Error is a semantic, per-command error: it always carries the command
// name so the CLI can render "ERROR(cmd: message)".
type Error struct {
	Code Code
	Cmd  string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Cmd, e.Msg)
}

// New constructs an *Error for cmd with the given code and message.
func New(code Code, cmd, format string, args ...interface{}) *Error {
	return &Error{Code: code, Cmd: cmd, Msg: fmt.Sprintf(format, args...)}
}
