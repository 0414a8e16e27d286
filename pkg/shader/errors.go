package shader

import (
	"fmt"
	"strings"
)

// Code classifies a compile-time diagnostic. Tests match on codes rather
// than message text.
type Code int

const (
	ErrSyntax Code = iota
	ErrUnresolvedIdentifier
	ErrUndefinedType
	ErrDuplicateDeclaration
	ErrTypeMismatch
	ErrInvalidConversion
	ErrInvalidSwizzle
	ErrInvalidSwizzleAssignment
	ErrInvalidConstructor
	ErrNoMatchingOverload
	ErrAmbiguousCall
	ErrInvalidQualifier
	ErrRequiresLValue
	ErrAssignToReadOnly
	ErrStaticRecursion
	ErrInvalidMainSignature
	ErrConditionMustBeBool
	ErrExpectedConstant
	ErrIndexOutOfRange
	ErrInvalidArraySize
	ErrNotCallable
	ErrBadJump
	ErrReturnType
)

var codeNames = map[Code]string{
	ErrSyntax:                   "syntax error",
	ErrUnresolvedIdentifier:     "unresolved identifier",
	ErrUndefinedType:            "undefined type",
	ErrDuplicateDeclaration:     "duplicate declaration",
	ErrTypeMismatch:             "type mismatch",
	ErrInvalidConversion:        "invalid conversion",
	ErrInvalidSwizzle:           "invalid swizzle",
	ErrInvalidSwizzleAssignment: "invalid swizzle assignment",
	ErrInvalidConstructor:       "invalid constructor",
	ErrNoMatchingOverload:       "no matching overload",
	ErrAmbiguousCall:            "ambiguous call",
	ErrInvalidQualifier:         "invalid qualifier",
	ErrRequiresLValue:           "l-value required",
	ErrAssignToReadOnly:         "cannot assign to read-only value",
	ErrStaticRecursion:          "static recursion",
	ErrInvalidMainSignature:     "invalid main signature",
	ErrConditionMustBeBool:      "condition must be bool",
	ErrExpectedConstant:         "constant expression required",
	ErrIndexOutOfRange:          "index out of range",
	ErrInvalidArraySize:         "invalid array size",
	ErrNotCallable:              "not callable",
	ErrBadJump:                  "misplaced jump statement",
	ErrReturnType:               "return type mismatch",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Diag is one compile-time diagnostic with its source location and the
// offending source line.
type Diag struct {
	Code    Code
	Line    int
	Col     int
	Msg     string
	Snippet string
}

func (d *Diag) Error() string {
	if d.Snippet != "" {
		return fmt.Sprintf("line %d: %s: %s\n  |> %s", d.Line, d.Code, d.Msg, d.Snippet)
	}
	return fmt.Sprintf("line %d: %s: %s", d.Line, d.Code, d.Msg)
}

// DiagList accumulates diagnostics across one analysis pass.
type DiagList []*Diag

func (l DiagList) Error() string {
	msgs := make([]string, len(l))
	for i, d := range l {
		msgs[i] = d.Error()
	}
	return strings.Join(msgs, "\n")
}

// Has reports whether any diagnostic carries the given code.
func (l DiagList) Has(c Code) bool {
	for _, d := range l {
		if d.Code == c {
			return true
		}
	}
	return false
}

// snippetOf extracts the trimmed source line for a token, shown on the
// diagnostic's second line.
func snippetOf(lines []string, tok Token) string {
	idx := tok.Line - 1
	if idx < 0 || idx >= len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[idx])
}
