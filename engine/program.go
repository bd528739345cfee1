package engine

import (
	"fmt"

	"blade_view/engine/expr"
)

// Op identifies a program instruction.
type Op string

const (
	OpText         Op = "text"
	OpEcho         Op = "echo"
	OpEscapedEcho  Op = "escaped_echo"
	OpIf           Op = "if"
	OpUnless       Op = "unless"
	OpIsset        Op = "isset"
	OpEmpty        Op = "empty"
	OpForeach      Op = "foreach"
	OpFor          Op = "for"
	OpWhile        Op = "while"
	OpSectionStart Op = "section_start"
	OpSectionEnd   Op = "section_end"
	OpYield        Op = "yield"
	OpExtends      Op = "extends"
	OpInclude      Op = "include"
	OpCode         Op = "code"
)

// Program is the compiled form of one template. It is never mutated after
// Compile returns and is shared by concurrent renders.
type Program struct {
	Nodes []Node `json:"nodes"`
}

// Node is one instruction. Control blocks carry nested bodies, which makes a
// Program a tree rather than a flat list.
type Node struct {
	Op       Op       `json:"op"`
	Text     string   `json:"text,omitempty"`     // literal text or @code source
	Expr     string   `json:"expr,omitempty"`     // expression, loop header, yield default or include vars
	Name     string   `json:"name,omitempty"`     // section, yield, extends or include target
	Branches []Branch `json:"branches,omitempty"` // if / elseif arms
	Else     []Node   `json:"else,omitempty"`
	Body     []Node   `json:"body,omitempty"` // loop body
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`

	x       expr.Expr
	stmts   []expr.Stmt
	foreach *expr.Foreach
	loop    *expr.ForHeader
}

// Branch is one conditional arm.
type Branch struct {
	Cond   string `json:"cond"`
	Body   []Node `json:"body,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`

	cond expr.Expr
}

// prepare parses every expression slot once so renders never touch the parser.
// It runs after Compile and after a Program is decoded from a store.
func (p *Program) prepare() error {
	return prepareNodes(p.Nodes)
}

func prepareNodes(nodes []Node) error {
	for i := range nodes {
		if err := nodes[i].prepare(); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) errorf(src, format string, args ...any) *CompileError {
	return &CompileError{Fragment: src, Line: n.Line, Column: n.Column, Msg: fmt.Sprintf(format, args...)}
}

func (n *Node) prepare() error {
	var err error
	switch n.Op {
	case OpEcho, OpEscapedEcho, OpWhile:
		if n.x, err = expr.ParseExpr(n.Expr); err != nil {
			return n.errorf(n.Expr, "%v", err)
		}
	case OpYield, OpInclude:
		if n.Expr != "" {
			if n.x, err = expr.ParseExpr(n.Expr); err != nil {
				return n.errorf(n.Expr, "%v", err)
			}
		}
	case OpForeach:
		if n.foreach, err = expr.ParseForeach(n.Expr); err != nil {
			return n.errorf(n.Expr, "%v", err)
		}
	case OpFor:
		if n.loop, err = expr.ParseFor(n.Expr); err != nil {
			return n.errorf(n.Expr, "%v", err)
		}
	case OpCode:
		if n.stmts, err = expr.ParseStatements(n.Text); err != nil {
			return n.errorf(n.Text, "%v", err)
		}
	case OpIf, OpUnless, OpIsset, OpEmpty:
		for i := range n.Branches {
			b := &n.Branches[i]
			op := OpIf
			if i == 0 {
				op = n.Op
			}
			if b.cond, err = parseCondition(op, b.Cond); err != nil {
				return &CompileError{Fragment: b.Cond, Line: b.Line, Column: b.Column, Msg: err.Error()}
			}
			if err := prepareNodes(b.Body); err != nil {
				return err
			}
		}
		return prepareNodes(n.Else)
	}
	return prepareNodes(n.Body)
}

// parseCondition lowers @unless, @isset and @empty onto a plain condition.
func parseCondition(op Op, src string) (expr.Expr, error) {
	switch op {
	case OpIsset, OpEmpty:
		args, err := expr.ParseArgs(src)
		if err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("@%s requires an argument", op)
		}
		if op == OpEmpty && len(args) != 1 {
			return nil, fmt.Errorf("@empty takes exactly one argument")
		}
		return &expr.CallExpr{Fn: &expr.Ident{Name: string(op)}, Args: args}, nil
	case OpUnless:
		x, err := expr.ParseExpr(src)
		if err != nil {
			return nil, err
		}
		return &expr.UnaryExpr{Op: "!", X: x}, nil
	}
	return expr.ParseExpr(src)
}
