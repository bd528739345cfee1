package expr

import (
	"strings"
)

// Expr is any node produced by the parser.
type Expr interface{}

type Ident struct{ Name string }
type DollarIdent struct{ Name string }
type StringLit struct{ Val string }
type BoolLit struct{ Val bool }
type NullLit struct{}

// NumberLit keeps the source text next to the parsed int64/float64 value.
type NumberLit struct {
	Val   string
	Value any
}

type DotAccess struct {
	Base  Expr
	Field string
}
type IndexAccess struct {
	Base Expr
	Key  Expr
}
type CallExpr struct {
	Fn   Expr
	Args []Expr
}

type UnaryExpr struct {
	Op string
	X  Expr
}

type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

type TernaryExpr struct {
	Cond Expr
	Then Expr
	Else Expr
}

// ArrayItem is one element of an array literal; Key is nil for list items.
type ArrayItem struct {
	Key   Expr
	Value Expr
}

type ArrayLit struct {
	Items []ArrayItem
}

// Stmt is a statement accepted by @for headers and @code blocks.
type Stmt interface{}

type AssignStmt struct {
	Name  string
	Op    string // "=", "+=", "-=", "*=", "/=", ".="
	Value Expr
}

type IncDecStmt struct {
	Name  string
	Delta int64
}

type EchoStmt struct{ Value Expr }
type ExprStmt struct{ Value Expr }

// Foreach is the parsed header of a foreach loop: `$items as $key => $value`.
type Foreach struct {
	Collection Expr
	Key        string
	Value      string
}

// ForHeader is the parsed header of a C-style for loop.
type ForHeader struct {
	Init []Stmt
	Cond Expr
	Step []Stmt
}

// IsSimpleDollarVariable reports whether e is a variable optionally followed by
// field or index access, e.g. $user->name or $m['key'].
func IsSimpleDollarVariable(e Expr) bool {
	cur := e
	for {
		switch v := cur.(type) {
		case *DollarIdent, *Ident:
			return true
		case *DotAccess:
			cur = v.Base
		case *IndexAccess:
			cur = v.Base
		default:
			return false
		}
	}
}

// RootVariable returns the variable name an access chain starts from, or "".
func RootVariable(e Expr) string {
	cur := e
	for {
		switch v := cur.(type) {
		case *DollarIdent:
			return v.Name
		case *Ident:
			return v.Name
		case *DotAccess:
			cur = v.Base
		case *IndexAccess:
			cur = v.Base
		default:
			return ""
		}
	}
}

// Variables collects every variable name referenced by e, in first-seen order.
func Variables(e Expr) []string {
	var names []string
	seen := map[string]bool{}
	var walk func(Expr)
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	walk = func(e Expr) {
		switch v := e.(type) {
		case *DollarIdent:
			add(v.Name)
		case *Ident:
			add(v.Name)
		case *DotAccess:
			walk(v.Base)
		case *IndexAccess:
			walk(v.Base)
			walk(v.Key)
		case *CallExpr:
			// a bare function name is not a variable
			if _, ok := v.Fn.(*Ident); !ok {
				walk(v.Fn)
			}
			for _, a := range v.Args {
				walk(a)
			}
		case *UnaryExpr:
			walk(v.X)
		case *BinaryExpr:
			walk(v.Left)
			walk(v.Right)
		case *TernaryExpr:
			walk(v.Cond)
			walk(v.Then)
			walk(v.Else)
		case *ArrayLit:
			for _, it := range v.Items {
				if it.Key != nil {
					walk(it.Key)
				}
				walk(it.Value)
			}
		}
	}
	walk(e)
	return names
}

// String renders e back into source form. Used for error messages and program dumps.
func String(e Expr) string {
	var sb strings.Builder
	writeExpr(&sb, e)
	return sb.String()
}

func writeExpr(sb *strings.Builder, e Expr) {
	switch v := e.(type) {
	case *DollarIdent:
		sb.WriteString("$" + v.Name)
	case *Ident:
		sb.WriteString(v.Name)
	case *StringLit:
		sb.WriteString("'" + strings.NewReplacer(`\`, `\\`, "'", `\'`).Replace(v.Val) + "'")
	case *NumberLit:
		sb.WriteString(v.Val)
	case *BoolLit:
		if v.Val {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case *NullLit:
		sb.WriteString("null")
	case *DotAccess:
		writeExpr(sb, v.Base)
		sb.WriteString("->" + v.Field)
	case *IndexAccess:
		writeExpr(sb, v.Base)
		sb.WriteString("[")
		writeExpr(sb, v.Key)
		sb.WriteString("]")
	case *CallExpr:
		writeExpr(sb, v.Fn)
		sb.WriteString("(")
		for i, a := range v.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeExpr(sb, a)
		}
		sb.WriteString(")")
	case *UnaryExpr:
		sb.WriteString(v.Op)
		if v.Op == "not" {
			sb.WriteString(" ")
		}
		writeExpr(sb, v.X)
	case *BinaryExpr:
		sb.WriteString("(")
		writeExpr(sb, v.Left)
		sb.WriteString(" " + v.Op + " ")
		writeExpr(sb, v.Right)
		sb.WriteString(")")
	case *TernaryExpr:
		sb.WriteString("(")
		writeExpr(sb, v.Cond)
		sb.WriteString(" ? ")
		writeExpr(sb, v.Then)
		sb.WriteString(" : ")
		writeExpr(sb, v.Else)
		sb.WriteString(")")
	case *ArrayLit:
		sb.WriteString("[")
		for i, it := range v.Items {
			if i > 0 {
				sb.WriteString(", ")
			}
			if it.Key != nil {
				writeExpr(sb, it.Key)
				sb.WriteString(" => ")
			}
			writeExpr(sb, it.Value)
		}
		sb.WriteString("]")
	default:
		sb.WriteString("?")
	}
}
