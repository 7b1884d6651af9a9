package vm

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind names a category of failure the VM can report. These mirror the
// error taxonomy an image loader or dispatch loop can hit: malformed-image
// failures discovered while parsing, out-of-bounds failures discovered
// while indexing a fixed structure, and semantic failures discovered while
// executing an otherwise well-formed instruction.
type Kind string

const (
	ErrTruncatedImage     Kind = "TruncatedImage"
	ErrUnknownConstTag    Kind = "UnknownConstTag"
	ErrUnknownOpcode      Kind = "UnknownOpcode"
	ErrUnimplementedOpcode Kind = "UnimplementedOpcode"
	ErrTruncatedInstruction Kind = "TruncatedInstruction"
	ErrConstOutOfRange    Kind = "ConstOutOfRange"
	ErrGlobalOutOfRange   Kind = "GlobalOutOfRange"
	ErrLocalOutOfRange    Kind = "LocalOutOfRange"
	ErrFieldOutOfRange    Kind = "FieldOutOfRange"
	ErrJumpOutOfRange     Kind = "JumpOutOfRange"
	ErrStackOverflow      Kind = "StackOverflow"
	ErrStackUnderflow     Kind = "StackUnderflow"
	ErrTypeMismatch       Kind = "TypeMismatch"
	ErrUndefinedGlobal    Kind = "UndefinedGlobal"
	ErrDivByZero          Kind = "DivByZero"
)

// Error is the concrete error type every VM-detected failure is reported
// as. Op and IP are best-effort execution context, filled in by the
// dispatch loop when the failure occurs mid-instruction; they are zero for
// failures detected during image loading, before any instruction runs.
type Error struct {
	Kind    Kind
	Op      byte
	IP      int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s at ip=%d: %s: %v", e.Kind, e.IP, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s at ip=%d: %s", e.Kind, e.IP, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether err carries the given Kind, unwrapping through any
// wrapping error along the way.
func Is(err error, kind Kind) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind == kind
	}
	return false
}

func newError(kind Kind, ip int, op byte, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, IP: ip, Message: fmt.Sprintf(format, args...)}
}
