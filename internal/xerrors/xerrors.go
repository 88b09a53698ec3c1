// Package xerrors creates errors that remember where they were made.
//
// New, Newf and EnsureTrace attach the call stack; Wrap and Wrapf record
// only the caller's program counter. The logger walks the chain and renders
// the frames, so call sites never format locations themselves.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

// stacked carries the stack captured when the error was created.
type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }
func (s *stacked) IsXerrorsWrapper()   {}

// annotated prefixes a message and records a single frame.
type annotated struct {
	err error
	msg string
	pc  uintptr
}

func (a *annotated) Error() string     { return a.msg + ": " + a.err.Error() }
func (a *annotated) Unwrap() error     { return a.err }
func (a *annotated) PC() uintptr       { return a.pc }
func (a *annotated) IsXerrorsWrapper() {}

// stackOf captures the stack above its caller's caller.
func stackOf() []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	// runtime.Callers, stackOf, the exported constructor
	n := runtime.Callers(3, pcs)
	return pcs[:n:n]
}

// callerOf returns the pc of its caller's caller.
func callerOf() uintptr {
	var pc [1]uintptr
	if runtime.Callers(3, pc[:]) == 0 {
		return 0
	}
	return pc[0]
}

// New returns an error with msg and the current stack.
func New(msg string) error {
	return &stacked{err: errors.New(msg), pcs: stackOf()}
}

// Newf is New with formatting. %w verbs are honored.
func Newf(format string, args ...any) error {
	return &stacked{err: fmt.Errorf(format, args...), pcs: stackOf()}
}

// Wrap prefixes err with msg. A nil err stays nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: msg, pc: callerOf()}
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: fmt.Sprintf(format, args...), pc: callerOf()}
}

// EnsureTrace attaches a stack unless something in err's chain already has
// one. Use it on errors returned by the standard library and SDKs.
func EnsureTrace(err error) error {
	if err == nil || HasStack(err) {
		return err
	}
	return &stacked{err: err, pcs: stackOf()}
}

// HasStack reports whether err's chain carries a captured stack.
func HasStack(err error) bool {
	var s interface{ StackPCs() []uintptr }
	return errors.As(err, &s) && len(s.StackPCs()) > 0
}
