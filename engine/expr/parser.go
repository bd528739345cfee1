package expr

import (
	"fmt"
	"strconv"
)

// SyntaxError reports a parse failure at a rune offset inside the expression.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at offset %d", e.Msg, e.Pos)
}

type Parser struct {
	lex   *Lexer
	cur   Token
	ahead Token
}

func NewParser(input string) *Parser {
	l := NewLexer(input)
	p := &Parser{lex: l}
	p.cur = p.lex.NextToken()
	p.ahead = p.lex.NextToken()
	return p
}

func (p *Parser) next() Token {
	t := p.cur
	p.cur = p.ahead
	p.ahead = p.lex.NextToken()
	return t
}

func (p *Parser) errorf(format string, args ...any) error {
	return &SyntaxError{Pos: p.cur.Pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) unexpected() error {
	if p.cur.Typ == TokError {
		return p.errorf("%s", p.cur.Val)
	}
	if p.cur.Typ == TokEOF {
		return p.errorf("unexpected end of expression")
	}
	return p.errorf("unexpected %s %q", p.cur.Typ, p.cur.Val)
}

func (p *Parser) expect(typ TokenType) (Token, error) {
	if p.cur.Typ == typ {
		return p.next(), nil
	}
	if p.cur.Typ == TokError {
		return Token{}, p.unexpected()
	}
	return Token{}, p.errorf("expected %s, got %s %q", typ, p.cur.Typ, p.cur.Val)
}

func (p *Parser) isIdent(name string) bool {
	return p.cur.Typ == TokIdent && p.cur.Val == name
}

func (p *Parser) expectEOF() error {
	if p.cur.Typ != TokEOF {
		return p.unexpected()
	}
	return nil
}

// Parse parses a single expression that must span the whole input.
func (p *Parser) Parse() (Expr, error) {
	e, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return e, nil
}

// ParseExpr parses src as one expression.
func ParseExpr(src string) (Expr, error) {
	return NewParser(src).Parse()
}

// ParseArgs parses a comma-separated argument list such as the inside of
// @yield('title', 'Default').
func ParseArgs(src string) ([]Expr, error) {
	p := NewParser(src)
	var args []Expr
	if p.cur.Typ == TokEOF {
		return nil, nil
	}
	for {
		e, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
		if p.cur.Typ != TokComma {
			break
		}
		p.next()
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return args, nil
}

// ParseForeach parses `$items as $item` or `$items as $key => $item`.
func ParseForeach(src string) (*Foreach, error) {
	p := NewParser(src)
	coll, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if !p.isIdent("as") {
		return nil, p.errorf("expected 'as' in foreach")
	}
	p.next()
	first, err := p.parseLoopVar()
	if err != nil {
		return nil, err
	}
	f := &Foreach{Collection: coll, Value: first}
	if p.cur.Typ == TokFatArrow {
		p.next()
		second, err := p.parseLoopVar()
		if err != nil {
			return nil, err
		}
		f.Key, f.Value = first, second
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return f, nil
}

func (p *Parser) parseLoopVar() (string, error) {
	switch p.cur.Typ {
	case TokDollarIdent, TokIdent:
		return p.next().Val, nil
	}
	return "", p.errorf("expected loop variable, got %s %q", p.cur.Typ, p.cur.Val)
}

// ParseFor parses `init; cond; step`. Each clause may be empty; init and step
// may hold several comma-separated statements.
func ParseFor(src string) (*ForHeader, error) {
	p := NewParser(src)
	h := &ForHeader{}
	var err error
	if h.Init, err = p.parseStmtList(TokSemicolon); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokSemicolon); err != nil {
		return nil, err
	}
	if p.cur.Typ != TokSemicolon {
		if h.Cond, err = p.parseTernary(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(TokSemicolon); err != nil {
		return nil, err
	}
	if h.Step, err = p.parseStmtList(TokEOF); err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return h, nil
}

func (p *Parser) parseStmtList(end TokenType) ([]Stmt, error) {
	var stmts []Stmt
	for p.cur.Typ != end && p.cur.Typ != TokEOF {
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
		if p.cur.Typ != TokComma {
			break
		}
		p.next()
	}
	return stmts, nil
}

// ParseStatements parses a `;`-separated statement list, as found in @code blocks.
func ParseStatements(src string) ([]Stmt, error) {
	p := NewParser(src)
	var stmts []Stmt
	for {
		for p.cur.Typ == TokSemicolon {
			p.next()
		}
		if p.cur.Typ == TokEOF {
			return stmts, nil
		}
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
		if p.cur.Typ != TokSemicolon && p.cur.Typ != TokEOF {
			return nil, p.unexpected()
		}
	}
}

func (p *Parser) parseStatement() (Stmt, error) {
	if p.isIdent("echo") {
		p.next()
		v, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		return &EchoStmt{Value: v}, nil
	}
	// prefix ++$i / --$i
	if p.cur.Typ == TokOp && (p.cur.Val == "++" || p.cur.Val == "--") && p.ahead.Typ == TokDollarIdent {
		op := p.next().Val
		name := p.next().Val
		return &IncDecStmt{Name: name, Delta: incDelta(op)}, nil
	}
	if p.cur.Typ == TokDollarIdent {
		switch {
		case p.ahead.Typ == TokAssign:
			name := p.next().Val
			op := p.next().Val
			v, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			return &AssignStmt{Name: name, Op: op, Value: v}, nil
		case p.ahead.Typ == TokOp && (p.ahead.Val == "++" || p.ahead.Val == "--"):
			name := p.next().Val
			op := p.next().Val
			return &IncDecStmt{Name: name, Delta: incDelta(op)}, nil
		}
	}
	v, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return &ExprStmt{Value: v}, nil
}

func incDelta(op string) int64 {
	if op == "--" {
		return -1
	}
	return 1
}

// parseTernary: cond ? a : b, and the short form cond ?: b
func (p *Parser) parseTernary() (Expr, error) {
	cond, err := p.parseCoalesce()
	if err != nil {
		return nil, err
	}
	if p.cur.Typ == TokOp && p.cur.Val == "?:" {
		p.next()
		alt, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: "?:", Left: cond, Right: alt}, nil
	}
	if p.cur.Typ != TokQuestion {
		return cond, nil
	}
	p.next()
	then, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokColon); err != nil {
		return nil, err
	}
	els, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return &TernaryExpr{Cond: cond, Then: then, Else: els}, nil
}

// ?? is right associative
func (p *Parser) parseCoalesce() (Expr, error) {
	left, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if p.cur.Typ == TokOp && p.cur.Val == "??" {
		p.next()
		right, err := p.parseCoalesce()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: "??", Left: left, Right: right}, nil
	}
	return left, nil
}

// binary operator precedence levels, lowest first
var precedence = [][]string{
	{"||", "or"},
	{"&&", "and"},
	{"==", "!=", "===", "!=="},
	{"<", "<=", ">", ">="},
	{"+", "-", "."},
	{"*", "/", "%"},
}

// binaryOp returns the operator under the cursor if it belongs to the level.
func (p *Parser) binaryOp(level int) (string, bool) {
	var op string
	switch p.cur.Typ {
	case TokOp:
		op = p.cur.Val
	case TokIdent:
		if p.cur.Val != "or" && p.cur.Val != "and" {
			return "", false
		}
		op = p.cur.Val
	case TokDot, TokDotSpaced:
		op = "."
	default:
		return "", false
	}
	for _, candidate := range precedence[level] {
		if op == candidate {
			switch op {
			case "or":
				return "||", true
			case "and":
				return "&&", true
			}
			return op, true
		}
	}
	return "", false
}

func (p *Parser) parseBinary(level int) (Expr, error) {
	if level >= len(precedence) {
		return p.parseUnary()
	}
	left, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.binaryOp(level)
		if !ok {
			return left, nil
		}
		p.next()
		right, err := p.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.cur.Typ == TokOp && (p.cur.Val == "!" || p.cur.Val == "-" || p.cur.Val == "+") {
		op := p.next().Val
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: op, X: x}, nil
	}
	if p.isIdent("not") {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "!", X: x}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	var base Expr
	switch p.cur.Typ {
	case TokDollarIdent:
		t := p.next()
		base = &DollarIdent{Name: t.Val}
	case TokIdent:
		t := p.next()
		switch t.Val {
		case "true":
			base = &BoolLit{Val: true}
		case "false":
			base = &BoolLit{Val: false}
		case "null", "nil":
			base = &NullLit{}
		default:
			base = &Ident{Name: t.Val}
		}
	case TokString:
		t := p.next()
		base = &StringLit{Val: t.Val}
	case TokNumber:
		t := p.next()
		n, err := parseNumber(t.Val)
		if err != nil {
			return nil, &SyntaxError{Pos: t.Pos, Msg: err.Error()}
		}
		return n, nil
	case TokLParen:
		p.next()
		e, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		base = e
	case TokLBracket:
		arr, err := p.parseArray()
		if err != nil {
			return nil, err
		}
		base = arr
	default:
		return nil, p.unexpected()
	}

	return p.parseFieldIndexChain(base)
}

func parseNumber(s string) (*NumberLit, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &NumberLit{Val: s, Value: i}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return &NumberLit{Val: s, Value: f}, nil
}

// parseArray parses [a, b] and ['k' => v, ...]
func (p *Parser) parseArray() (Expr, error) {
	if _, err := p.expect(TokLBracket); err != nil {
		return nil, err
	}
	arr := &ArrayLit{}
	for p.cur.Typ != TokRBracket {
		v, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		item := ArrayItem{Value: v}
		if p.cur.Typ == TokFatArrow {
			p.next()
			val, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			item = ArrayItem{Key: v, Value: val}
		}
		arr.Items = append(arr.Items, item)
		if p.cur.Typ != TokComma {
			break
		}
		p.next()
	}
	if _, err := p.expect(TokRBracket); err != nil {
		return nil, err
	}
	return arr, nil
}

func (p *Parser) parseFieldIndexChain(base Expr) (Expr, error) {
	for {
		switch {
		case p.cur.Typ == TokArrow || p.cur.Typ == TokDot && p.ahead.Typ == TokIdent:
			p.next()
			if p.cur.Typ != TokIdent {
				return nil, p.errorf("expected field name, got %s %q", p.cur.Typ, p.cur.Val)
			}
			fld := p.next().Val
			base = &DotAccess{Base: base, Field: fld}
		case p.cur.Typ == TokLBracket:
			p.next()
			key, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokRBracket); err != nil {
				return nil, err
			}
			base = &IndexAccess{Base: base, Key: key}
		case p.cur.Typ == TokLParen:
			args, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			base = &CallExpr{Fn: base, Args: args}
		default:
			return base, nil
		}
	}
}

func (p *Parser) parseCallArgs() ([]Expr, error) {
	if _, err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	var args []Expr
	for p.cur.Typ != TokRParen {
		a, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.cur.Typ != TokComma {
			break
		}
		p.next()
	}
	if _, err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	return args, nil
}
