package skipledger

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Sentinel error kinds. Compare against these with errors.Is; an *Error
// returned by any function in this module unwraps to exactly one of them.
var (
	ErrInvalidArgument = xerrors.New("skipledger: invalid argument")
	ErrOutOfBounds     = xerrors.New("skipledger: out of bounds")
	ErrNotLinked       = xerrors.New("skipledger: not linked")
	ErrByteFormat      = xerrors.New("skipledger: byte format")
	ErrHashConflict    = xerrors.New("skipledger: hash conflict")
	ErrUnsupported     = xerrors.New("skipledger: unsupported")
	ErrNotFound        = xerrors.New("skipledger: not found")
)

// Error carries row/level context alongside one of the sentinel kinds above.
type Error struct {
	kind  error
	Row   uint64
	Level int // -1 when not applicable
	msg   string
}

func (e *Error) Error() string {
	switch {
	case e.Level >= 0:
		return fmt.Sprintf("%s (row %d, level %d): %s", e.kind, e.Row, e.Level, e.msg)
	case e.Row > 0:
		return fmt.Sprintf("%s (row %d): %s", e.kind, e.Row, e.msg)
	default:
		return fmt.Sprintf("%s: %s", e.kind, e.msg)
	}
}

func (e *Error) Unwrap() error { return e.kind }

// Errorf builds an *Error of the given kind. rn and level are context; pass
// 0 and -1 when not applicable.
func Errorf(kind error, rn uint64, level int, format string, args ...interface{}) *Error {
	return &Error{
		kind:  kind,
		Row:   rn,
		Level: level,
		msg:   fmt.Sprintf(format, args...),
	}
}

// Assert panics if cond is false. Used for invariants this module itself
// must maintain and for the argument preconditions a function's doc
// states (for example geom.SkipCount's rn >= 1, or NewRowCache's level
// range); violating such a precondition panics rather than returning an
// error.
func Assert(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
