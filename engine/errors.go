package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrTemplateNotFound: no source exists for a view id.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrLayoutNotFound: an @extends or @include target is missing.
	ErrLayoutNotFound = errors.New("layout not found")
	// ErrStackUnderflow: @endsection without an open section, or a section left open.
	ErrStackUnderflow = errors.New("section stack underflow")
)

// CompileError reports malformed template source. Line and Column are 1-based.
type CompileError struct {
	View     string
	Fragment string
	Line     int
	Column   int
	Msg      string
}

func (e *CompileError) Error() string {
	where := e.View
	if where == "" {
		where = "template"
	}
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d:%d", where, e.Line, e.Column)
	}
	if e.Fragment != "" {
		return fmt.Sprintf("compile %s: %s near %q", where, e.Msg, e.Fragment)
	}
	return fmt.Sprintf("compile %s: %s", where, e.Msg)
}

// RenderError wraps a failure while executing a compiled program.
type RenderError struct {
	View string
	Line int
	Expr string
	Err  error
}

func (e *RenderError) Error() string {
	where := e.View
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d", where, e.Line)
	}
	if e.Expr != "" {
		return fmt.Sprintf("render %s: %s: %v", where, e.Expr, e.Err)
	}
	return fmt.Sprintf("render %s: %v", where, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
