// Package cerr defines the typed, coded errors produced by the
// autochanger controller's five failure kinds: configuration errors,
// helper failures, lock failures, plugin vetoes and busy-eviction
// failures.
package cerr

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
	"golang.org/x/xerrors"
)

// Error codes for ComplexError.Code.
const (
	// CodeConfig marks a missing changer_name/changer_command at init.
	CodeConfig = iota
	// CodeHelper marks a non-zero helper exit or unparseable output.
	CodeHelper
	// CodeLock marks a write-lock acquisition failure (fatal to the process).
	CodeLock
	// CodeVeto marks a plugin veto of ChangerLock.
	CodeVeto
	// CodeBusy marks a sibling drive that stayed busy after retries.
	CodeBusy
)

// WrapError wraps an error for the sake of showing a stack trace at the
// top level. go-errors does not return nil when wrapping a non-error,
// so we special-case it here.
func WrapError(err error) error {
	if err == nil {
		return err
	}
	return goerrors.Wrap(err, 0)
}

// ComplexError carries a numeric code so calling code can branch on
// failure kind without string matching.
type ComplexError struct {
	Message string
	Code    int
	frame   xerrors.Frame
}

func (ce ComplexError) FormatError(p xerrors.Printer) error {
	p.Printf("%d %s", ce.Code, ce.Message)
	ce.frame.Format(p)
	return nil
}

func (ce ComplexError) Format(f fmt.State, c rune) {
	xerrors.FormatError(ce, f, c)
}

func (ce ComplexError) Error() string {
	return fmt.Sprint(ce)
}

// HasCode reports whether err is a ComplexError (or wraps one) with the given code.
func HasCode(err error, code int) bool {
	var ce ComplexError
	if xerrors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// Config builds a CodeConfig error for a named offending drive or changer.
func Config(msg string) error {
	return ComplexError{Message: msg, Code: CodeConfig, frame: xerrors.Caller(1)}
}

// Helper builds a CodeHelper error, including the helper's diagnostic output.
func Helper(msg string) error {
	return ComplexError{Message: msg, Code: CodeHelper, frame: xerrors.Caller(1)}
}

// Lock builds a CodeLock error. Lock errors are fatal to the process;
// callers should propagate them as terminating errors rather than
// recovering locally.
func Lock(msg string) error {
	return ComplexError{Message: msg, Code: CodeLock, frame: xerrors.Caller(1)}
}

// Veto builds a CodeVeto error for a plugin veto of ChangerLock.
func Veto(msg string) error {
	return ComplexError{Message: msg, Code: CodeVeto, frame: xerrors.Caller(1)}
}

// Busy builds a CodeBusy error for a sibling drive that stayed busy.
func Busy(msg string) error {
	return ComplexError{Message: msg, Code: CodeBusy, frame: xerrors.Caller(1)}
}
