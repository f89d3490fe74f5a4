package pplmodel

import (
	"errors"
	"fmt"
)

// Those errors are useful for comparing errors returned by the query manager.
// e.g. errors.Is(err, pplmodel.ErrParse) let you know if this is a query parsing error.
var (
	ErrParse      = errors.New("failed to parse the query")
	ErrValidation = errors.New("invalid query node")
)

// Position locates a token in the query text. Offset is a byte offset, Line
// and Column are 1-based.
type Position struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// ParseError is what is returned when we failed to parse.
type ParseError struct {
	Pos      Position `json:"pos"`
	Expected string   `json:"expected,omitempty"`
	Found    string   `json:"found,omitempty"`

	msg string
}

func NewParseError(pos Position, expected, found, msg string) *ParseError {
	return &ParseError{
		Pos:      pos,
		Expected: expected,
		Found:    found,
		msg:      msg,
	}
}

func (p *ParseError) Error() string {
	msg := p.msg
	if msg == "" {
		msg = "syntax error"
	}
	if p.Expected != "" {
		msg = fmt.Sprintf("%s: expected %s", msg, p.Expected)
		if p.Found != "" {
			msg = fmt.Sprintf("%s, found %s", msg, p.Found)
		}
	} else if p.Found != "" {
		msg = fmt.Sprintf("%s: unexpected %s", msg, p.Found)
	}
	if p.Pos.Line == 0 && p.Pos.Column == 0 {
		return fmt.Sprintf("parse error : %s", msg)
	}
	return fmt.Sprintf("parse error at line %d, col %d: %s", p.Pos.Line, p.Pos.Column, msg)
}

// Is allows to use errors.Is(err, ErrParse) on this error.
func (p *ParseError) Is(target error) bool {
	return target == ErrParse
}

// IsParseError returns true if the err is an ast parsing error.
func IsParseError(err error) bool {
	return errors.Is(err, ErrParse)
}

// ValidationError is returned by the node constructors when they are given
// structurally invalid parameters.
type ValidationError struct {
	Node  string `json:"node"`
	Field string `json:"field,omitempty"`

	msg string
}

func NewValidationError(node, field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Node:  node,
		Field: field,
		msg:   fmt.Sprintf(format, args...),
	}
}

func (v *ValidationError) Error() string {
	if v.Field == "" {
		return fmt.Sprintf("invalid %s: %s", v.Node, v.msg)
	}
	return fmt.Sprintf("invalid %s.%s: %s", v.Node, v.Field, v.msg)
}

// Is allows to use errors.Is(err, ErrValidation) on this error.
func (v *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsValidationError returns true if err was raised while building a node.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}
