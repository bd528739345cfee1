package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"blade_view/engine/expr"
)

// ProgramCompiler turns template source into a Program. The Cache depends on
// this interface so tests can count compilations.
type ProgramCompiler interface {
	Compile(raw string) (*Program, error)
}

// Compiler is the directive compiler. It is stateless: Compile is a pure
// function of its input and a single Compiler may be shared between goroutines.
type Compiler struct{}

func NewCompiler() *Compiler {
	return &Compiler{}
}

type tokenKind int

const (
	tokText tokenKind = iota
	tokEcho
	tokEscapedEcho
	tokDirective
	tokCode
	tokLiteral // text no later pass may interpret
)

func (k tokenKind) String() string {
	switch k {
	case tokText:
		return "text"
	case tokEcho:
		return "echo"
	case tokEscapedEcho:
		return "escaped"
	case tokDirective:
		return "directive"
	case tokCode:
		return "code"
	case tokLiteral:
		return "literal"
	}
	return "?"
}

// token is the unit the passes hand to each other. Every pass only splits
// text tokens further, so pos always points into the original source.
type token struct {
	kind    tokenKind
	text    string // literal text, echo expression or @code body
	name    string // directive name
	args    string // directive argument text inside the parentheses
	hasArgs bool
	src     string // source text this token was cut from
	pos     int
}

func (t token) String() string {
	switch t.kind {
	case tokDirective:
		if t.hasArgs {
			return fmt.Sprintf("@%s(%s)", t.name, t.args)
		}
		return "@" + t.name
	case tokText:
		return fmt.Sprintf("text %q", t.text)
	}
	return fmt.Sprintf("%s %q", t.kind, t.text)
}

type compilePass struct {
	name string
	run  func(c *compileState, toks []token) ([]token, error)
}

// pass order is fixed: comments, escaped echos, raw echos, control directives,
// generic directives, code blocks
var compilePasses = []compilePass{
	{"escaped echos", processEscapedEchos},
	{"echos", processEchos},
	{"control directives", processControlDirectives},
	{"directives", processDirectives},
	{"code blocks", processCode},
}

var (
	commentRe      = regexp.MustCompile(`(?s)\{\{--.*?--\}\}`)
	escapedEchoRe  = regexp.MustCompile(`(?s)@?\{\{\{\s*(.*?)\s*\}\}\}`)
	echoRe         = regexp.MustCompile(`(?s)@?\{\{\s*(.*?)\s*\}\}`)
	controlRe      = regexp.MustCompile(`@(elseif|if|foreach|for|while|unless|isset|empty)[ \t]*\(`)
	genericRe      = regexp.MustCompile(`@(@?)(\w+)`)
	wordBoundaryRe = regexp.MustCompile(`\w`)
)

// directives handled by the generic pass; true means arguments are required
var directiveTable = map[string]bool{
	"extends":    true,
	"section":    true,
	"endsection": false,
	"yield":      true,
	"include":    true,
	"else":       false,
	"endif":      false,
	"endforeach": false,
	"endfor":     false,
	"endwhile":   false,
	"endunless":  false,
	"endisset":   false,
	"endempty":   false,
	"code":       false,
	"endcode":    false,
}

var controlDirectives = map[string]bool{
	"if": true, "elseif": true, "foreach": true, "for": true,
	"while": true, "unless": true, "isset": true, "empty": true,
}

// closers maps an end directive to the directive it closes.
var closers = map[string]string{
	"endif":      "if",
	"endunless":  "unless",
	"endisset":   "isset",
	"endempty":   "empty",
	"endforeach": "foreach",
	"endfor":     "for",
	"endwhile":   "while",
}

type compileState struct {
	raw string
}

func (s *compileState) errorAt(pos int, fragment, format string, args ...any) *CompileError {
	line, col := lineCol(s.raw, pos)
	return &CompileError{Fragment: fragment, Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}
}

func lineCol(raw string, pos int) (int, int) {
	if pos > len(raw) {
		pos = len(raw)
	}
	before := raw[:pos]
	line := strings.Count(before, "\n") + 1
	col := pos - strings.LastIndex(before, "\n")
	return line, col
}

// Compile lowers template source into a Program.
func (c *Compiler) Compile(raw string) (*Program, error) {
	return c.compile(raw, nil)
}

func (c *Compiler) compile(raw string, trace func(pass string, toks []token)) (*Program, error) {
	st := &compileState{raw: raw}
	toks, err := processComments(st, raw)
	if err != nil {
		return nil, err
	}
	if trace != nil {
		trace("comments", toks)
	}
	for _, p := range compilePasses {
		if toks, err = p.run(st, toks); err != nil {
			return nil, err
		}
		if trace != nil {
			trace(p.name, toks)
		}
	}
	nodes, err := buildTree(st, toks)
	if err != nil {
		return nil, err
	}
	prog := &Program{Nodes: nodes}
	if err := prog.prepare(); err != nil {
		return nil, err
	}
	return prog, nil
}

// DebugCompile writes the token stream after every pass followed by the
// resulting program, for inspecting how a template is lowered.
func (c *Compiler) DebugCompile(raw string, w io.Writer) error {
	prog, err := c.compile(raw, func(pass string, toks []token) {
		fmt.Fprintf(w, "=== AFTER %s ===\n", strings.ToUpper(pass))
		for _, t := range toks {
			fmt.Fprintf(w, "  %s\n", t)
		}
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "=== PROGRAM ===")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(prog)
}

func processComments(st *compileState, raw string) ([]token, error) {
	var toks []token
	last := 0
	for _, m := range commentRe.FindAllStringIndex(raw, -1) {
		if m[0] > last {
			toks = append(toks, textToken(raw[last:m[0]], last))
		}
		last = m[1]
	}
	if last < len(raw) {
		toks = append(toks, textToken(raw[last:], last))
	}
	for _, t := range toks {
		if i := strings.Index(t.text, "{{--"); i >= 0 {
			return nil, st.errorAt(t.pos+i, excerpt(t.text[i:]), "unterminated comment")
		}
	}
	return toks, nil
}

func textToken(s string, pos int) token {
	return token{kind: tokText, text: s, src: s, pos: pos}
}

func excerpt(s string) string {
	const limit = 40
	s = strings.TrimSpace(s)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// splitText runs fn over every text token, letting it cut the token into pieces.
func splitText(toks []token, fn func(t token) ([]token, error)) ([]token, error) {
	out := make([]token, 0, len(toks))
	for _, t := range toks {
		if t.kind != tokText {
			out = append(out, t)
			continue
		}
		pieces, err := fn(t)
		if err != nil {
			return nil, err
		}
		out = append(out, pieces...)
	}
	return out, nil
}

func processEscapedEchos(st *compileState, toks []token) ([]token, error) {
	return splitText(toks, func(t token) ([]token, error) {
		return splitEchos(st, t, escapedEchoRe, tokEscapedEcho)
	})
}

func processEchos(st *compileState, toks []token) ([]token, error) {
	return splitText(toks, func(t token) ([]token, error) {
		return splitEchos(st, t, echoRe, tokEcho)
	})
}

func splitEchos(st *compileState, t token, re *regexp.Regexp, kind tokenKind) ([]token, error) {
	var out []token
	last := 0
	for _, m := range re.FindAllStringSubmatchIndex(t.text, -1) {
		if m[0] > last {
			out = append(out, textToken(t.text[last:m[0]], t.pos+last))
		}
		whole := t.text[m[0]:m[1]]
		if strings.HasPrefix(whole, "@") {
			// @{{ ... }} prints the braces literally
			out = append(out, token{kind: tokLiteral, text: whole[1:], src: whole[1:], pos: t.pos + m[0] + 1})
		} else {
			body := t.text[m[2]:m[3]]
			if strings.TrimSpace(body) == "" {
				return nil, st.errorAt(t.pos+m[0], whole, "empty interpolation")
			}
			out = append(out, token{kind: kind, text: body, src: whole, pos: t.pos + m[0]})
		}
		last = m[1]
	}
	if last < len(t.text) {
		out = append(out, textToken(t.text[last:], t.pos+last))
	}
	return out, nil
}

// precededByWord reports whether the byte before i is a word character, as in
// an e-mail address.
func precededByWord(s string, i int) bool {
	return i > 0 && wordBoundaryRe.MatchString(s[i-1:i])
}

// scanParens returns the index just past the parenthesis matching s[open].
// Quoted strings are skipped so parentheses inside them do not count.
func scanParens(s string, open int) (int, bool) {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			switch ch {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

func processControlDirectives(st *compileState, toks []token) ([]token, error) {
	return splitText(toks, func(t token) ([]token, error) {
		var out []token
		s := t.text
		last := 0
		for last < len(s) {
			m := controlRe.FindStringSubmatchIndex(s[last:])
			if m == nil {
				break
			}
			start, open := last+m[0], last+m[1]-1
			if start > 0 && s[start-1] == '@' {
				// escaped; the generic pass deals with @@
				if start > last {
					out = append(out, textToken(s[last:start], t.pos+last))
				}
				out = append(out, textToken(s[start:start+1], t.pos+start))
				last = start + 1
				continue
			}
			name := s[last+m[2] : last+m[3]]
			end, ok := scanParens(s, open)
			if !ok {
				return nil, st.errorAt(t.pos+start, excerpt(s[start:]), "unterminated parenthesis in @%s", name)
			}
			if start > last {
				out = append(out, textToken(s[last:start], t.pos+last))
			}
			out = append(out, token{
				kind:    tokDirective,
				name:    name,
				args:    strings.TrimSpace(s[open+1 : end-1]),
				hasArgs: true,
				src:     s[start:end],
				pos:     t.pos + start,
			})
			last = end
		}
		if last < len(s) {
			out = append(out, textToken(s[last:], t.pos+last))
		}
		return mergeText(out), nil
	})
}

func processDirectives(st *compileState, toks []token) ([]token, error) {
	return splitText(toks, func(t token) ([]token, error) {
		var out []token
		s := t.text
		last := 0
		for _, m := range genericRe.FindAllStringSubmatchIndex(s, -1) {
			start := m[0]
			if start < last {
				continue
			}
			escaped := m[3] > m[2]
			name := s[m[4]:m[5]]
			if escaped {
				// @@name prints @name
				out = append(out, textToken(s[last:start], t.pos+last))
				last = start + 1
				continue
			}
			if controlDirectives[name] {
				if precededByWord(s, start) {
					// an address such as me@if.com
					continue
				}
				return nil, st.errorAt(t.pos+start, s[start:m[1]], "@%s requires a parenthesised argument", name)
			}
			needsArgs, known := directiveTable[name]
			if !known {
				continue
			}
			tok := token{kind: tokDirective, name: name, pos: t.pos + start}
			end := m[1]
			if needsArgs {
				open := end
				for open < len(s) && (s[open] == ' ' || s[open] == '\t') {
					open++
				}
				if open >= len(s) || s[open] != '(' {
					return nil, st.errorAt(t.pos+start, s[start:m[1]], "@%s requires arguments", name)
				}
				closeAt, ok := scanParens(s, open)
				if !ok {
					return nil, st.errorAt(t.pos+start, excerpt(s[start:]), "unterminated parenthesis in @%s", name)
				}
				tok.args = strings.TrimSpace(s[open+1 : closeAt-1])
				tok.hasArgs = true
				end = closeAt
			}
			tok.src = s[start:end]
			out = append(out, textToken(s[last:start], t.pos+last), tok)
			last = end
		}
		if last < len(s) {
			out = append(out, textToken(s[last:], t.pos+last))
		}
		return mergeText(out), nil
	})
}

// processCode folds everything between @code and @endcode into one code token
// holding the original source text.
func processCode(st *compileState, toks []token) ([]token, error) {
	var out []token
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind != tokDirective || (t.name != "code" && t.name != "endcode") {
			out = append(out, t)
			continue
		}
		if t.name == "endcode" {
			return nil, st.errorAt(t.pos, t.src, "@endcode without matching @code")
		}
		var body strings.Builder
		closed := false
		for i++; i < len(toks); i++ {
			inner := toks[i]
			if inner.kind == tokDirective && inner.name == "endcode" {
				closed = true
				break
			}
			if inner.kind == tokDirective && inner.name == "code" {
				return nil, st.errorAt(inner.pos, inner.src, "nested @code block")
			}
			body.WriteString(inner.src)
		}
		if !closed {
			return nil, st.errorAt(t.pos, t.src, "unclosed @code block")
		}
		out = append(out, token{kind: tokCode, text: body.String(), src: body.String(), pos: t.pos})
	}
	return out, nil
}

// mergeText drops empty text tokens and joins adjacent ones.
func mergeText(toks []token) []token {
	out := toks[:0]
	for _, t := range toks {
		if t.kind == tokText {
			if t.text == "" {
				continue
			}
			if n := len(out); n > 0 && out[n-1].kind == tokText && out[n-1].pos+len(out[n-1].src) == t.pos {
				out[n-1].text += t.text
				out[n-1].src += t.src
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// splitArgs splits a directive argument list at top-level commas.
func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var args []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			switch ch {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(args, strings.TrimSpace(s[start:]))
}

// literalName extracts a quoted view or section name.
func literalName(arg string) (string, error) {
	e, err := expr.ParseExpr(arg)
	if err != nil {
		return "", err
	}
	lit, ok := e.(*expr.StringLit)
	if !ok || strings.TrimSpace(lit.Val) == "" {
		return "", fmt.Errorf("expected a quoted name, got %s", arg)
	}
	return lit.Val, nil
}

type blockFrame struct {
	node    *Node
	opener  token
	body    *[]Node
	hasElse bool
}

func (f *blockFrame) conditional() bool {
	switch f.node.Op {
	case OpIf, OpUnless, OpIsset, OpEmpty:
		return true
	}
	return false
}

// buildTree nests control blocks and lowers directives to nodes.
func buildTree(st *compileState, toks []token) ([]Node, error) {
	var root []Node
	var stack []*blockFrame
	current := func() *[]Node {
		if len(stack) == 0 {
			return &root
		}
		return stack[len(stack)-1].body
	}
	emit := func(n Node) {
		body := current()
		if n.Op == OpText {
			if k := len(*body); k > 0 && (*body)[k-1].Op == OpText {
				(*body)[k-1].Text += n.Text
				return
			}
		}
		*body = append(*body, n)
	}

	for _, t := range toks {
		line, col := lineCol(st.raw, t.pos)
		switch t.kind {
		case tokText, tokLiteral:
			emit(Node{Op: OpText, Text: t.text})
			continue
		case tokEcho:
			emit(Node{Op: OpEcho, Expr: t.text, Line: line, Column: col})
			continue
		case tokEscapedEcho:
			emit(Node{Op: OpEscapedEcho, Expr: t.text, Line: line, Column: col})
			continue
		case tokCode:
			emit(Node{Op: OpCode, Text: t.text, Line: line, Column: col})
			continue
		}

		switch t.name {
		case "if", "unless", "isset", "empty":
			n := &Node{Op: Op(t.name), Line: line, Column: col,
				Branches: []Branch{{Cond: t.args, Line: line, Column: col}}}
			stack = append(stack, &blockFrame{node: n, opener: t, body: &n.Branches[0].Body})
		case "foreach", "for", "while":
			if t.args == "" {
				return nil, st.errorAt(t.pos, t.src, "@%s requires an expression", t.name)
			}
			n := &Node{Op: Op(t.name), Expr: t.args, Line: line, Column: col}
			stack = append(stack, &blockFrame{node: n, opener: t, body: &n.Body})
		case "elseif", "else":
			if len(stack) == 0 || !stack[len(stack)-1].conditional() {
				return nil, st.errorAt(t.pos, t.src, "@%s outside of a conditional block", t.name)
			}
			f := stack[len(stack)-1]
			if f.hasElse {
				return nil, st.errorAt(t.pos, t.src, "@%s after @else", t.name)
			}
			if t.name == "else" {
				f.hasElse = true
				f.body = &f.node.Else
				break
			}
			f.node.Branches = append(f.node.Branches, Branch{Cond: t.args, Line: line, Column: col})
			f.body = &f.node.Branches[len(f.node.Branches)-1].Body
		case "endif", "endunless", "endisset", "endempty", "endforeach", "endfor", "endwhile":
			want := closers[t.name]
			if len(stack) == 0 {
				return nil, st.errorAt(t.pos, t.src, "@%s without matching @%s", t.name, want)
			}
			f := stack[len(stack)-1]
			if f.opener.name != want {
				ol, _ := lineCol(st.raw, f.opener.pos)
				return nil, st.errorAt(t.pos, t.src, "@%s does not close @%s opened on line %d", t.name, f.opener.name, ol)
			}
			stack = stack[:len(stack)-1]
			emit(*f.node)
		case "extends":
			args := splitArgs(t.args)
			if len(args) != 1 {
				return nil, st.errorAt(t.pos, t.src, "@extends takes exactly one argument")
			}
			name, err := literalName(args[0])
			if err != nil {
				return nil, st.errorAt(t.pos, t.src, "@extends: %v", err)
			}
			emit(Node{Op: OpExtends, Name: name, Line: line, Column: col})
		case "section":
			args := splitArgs(t.args)
			if len(args) < 1 || len(args) > 2 {
				return nil, st.errorAt(t.pos, t.src, "@section takes one or two arguments")
			}
			name, err := literalName(args[0])
			if err != nil {
				return nil, st.errorAt(t.pos, t.src, "@section: %v", err)
			}
			emit(Node{Op: OpSectionStart, Name: name, Line: line, Column: col})
			if len(args) == 2 {
				// inline form: @section('title', expr)
				emit(Node{Op: OpEscapedEcho, Expr: args[1], Line: line, Column: col})
				emit(Node{Op: OpSectionEnd, Line: line, Column: col})
			}
		case "endsection":
			emit(Node{Op: OpSectionEnd, Line: line, Column: col})
		case "yield", "include":
			args := splitArgs(t.args)
			if len(args) < 1 || len(args) > 2 {
				return nil, st.errorAt(t.pos, t.src, "@%s takes one or two arguments", t.name)
			}
			name, err := literalName(args[0])
			if err != nil {
				return nil, st.errorAt(t.pos, t.src, "@%s: %v", t.name, err)
			}
			n := Node{Op: OpYield, Name: name, Line: line, Column: col}
			if t.name == "include" {
				n.Op = OpInclude
			}
			if len(args) == 2 {
				n.Expr = args[1]
			}
			emit(n)
		default:
			return nil, st.errorAt(t.pos, t.src, "unknown directive @%s", t.name)
		}
	}
	if len(stack) > 0 {
		f := stack[len(stack)-1]
		return nil, st.errorAt(f.opener.pos, f.opener.src, "unclosed @%s", f.opener.name)
	}
	return root, nil
}
