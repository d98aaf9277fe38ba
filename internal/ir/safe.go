package ir

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// ParseSafe wraps Parse with a panic recovery, the same
// "GenerateIR: panic" shape DataDog's ORM-to-eBPF IR generator uses
// around its own text-driven code generator. Parse's line-oriented
// regexes are meant to degrade to raw/Other instructions on anything
// they don't recognize, but a compiler driver that crashes outright on
// adversarial or corrupted IR text is worse than one that reports a
// clean failure, so callers that receive untrusted input should prefer
// this over Parse directly.
func ParseSafe(text string) (m *Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			m = nil
			err = pkgerrors.Wrapf(newRecoverError(r), "ir.ParseSafe")
		}
	}()
	return parseFunc(text), nil
}

// parseFunc is an indirection over Parse purely so tests can exercise
// the panic-recovery path without needing input that actually crashes
// the regex-based parser.
var parseFunc = Parse

type recoverError struct{ v any }

func newRecoverError(v any) error { return &recoverError{v} }

func (e *recoverError) Error() string {
	if err, ok := e.v.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", e.v)
}
