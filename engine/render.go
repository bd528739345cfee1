package engine

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"blade_view/engine/expr"
)

const (
	DefaultMaxLayoutDepth    = 32
	DefaultMaxLoopIterations = 10000
)

// ProgramSource hands out compiled programs by view id. *Cache implements it.
type ProgramSource interface {
	Get(viewID string) (*Program, error)
}

// RenderOptions tune a Renderer. Zero values select the defaults.
type RenderOptions struct {
	Funcs                  map[string]expr.Func
	Strict                 bool
	MaxLayoutDepth         int
	MaxLoopIterations      int
	PreserveContentSection bool
}

// Renderer executes Programs. It keeps no per-render state, so one Renderer
// serves any number of concurrent renders.
type Renderer struct {
	programs        ProgramSource
	eval            *expr.Evaluator
	maxLayoutDepth  int
	maxLoopIter     int
	preserveContent bool
}

func NewRenderer(programs ProgramSource, opts RenderOptions) *Renderer {
	r := &Renderer{
		programs:        programs,
		eval:            expr.NewEvaluator(opts.Funcs, opts.Strict),
		maxLayoutDepth:  opts.MaxLayoutDepth,
		maxLoopIter:     opts.MaxLoopIterations,
		preserveContent: opts.PreserveContentSection,
	}
	if r.maxLayoutDepth <= 0 {
		r.maxLayoutDepth = DefaultMaxLayoutDepth
	}
	if r.maxLoopIter <= 0 {
		r.maxLoopIter = DefaultMaxLoopIterations
	}
	return r
}

// Result is the outcome of a full render including layout composition.
type Result struct {
	Output string
	// Sections holds every section captured by the view and its layouts.
	Sections map[string]string
	// Layouts lists the layouts applied, innermost first.
	Layouts []string
}

// Render executes a program and composes its layouts. On error no output is returned.
func (r *Renderer) Render(p *Program, data any) (string, error) {
	res, err := r.Execute("", p, data)
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// Execute is Render with the captured sections exposed. view names the program
// in error messages.
func (r *Renderer) Execute(view string, p *Program, data any) (*Result, error) {
	return r.compose(view, p, newRootScope(data), data, 0)
}

func (r *Renderer) compose(view string, p *Program, sc *scope, data any, depth int) (*Result, error) {
	res := &Result{Sections: make(map[string]string)}
	ctx := r.newContext(view, sc, res.Sections, depth)
	out, err := ctx.run(p)
	if err != nil {
		return nil, err
	}
	layouts := 0
	for {
		r.storeContent(res.Sections, out)
		ref := ctx.layoutRef
		if ref == "" {
			break
		}
		if layouts++; layouts > r.maxLayoutDepth {
			return nil, &RenderError{View: ctx.view, Err: fmt.Errorf("layout chain deeper than %d (cycle through %q?)", r.maxLayoutDepth, ref)}
		}
		lp, err := r.programs.Get(ref)
		if err != nil {
			return nil, ctx.fetchError(ref, err)
		}
		res.Layouts = append(res.Layouts, ref)
		ctx = r.newContext(ref, newRootScope(data), res.Sections, depth)
		if out, err = ctx.run(lp); err != nil {
			return nil, err
		}
	}
	res.Output = out
	return res, nil
}

func (r *Renderer) storeContent(sections map[string]string, out string) {
	if r.preserveContent && strings.TrimSpace(out) == "" {
		if _, ok := sections["content"]; ok {
			return
		}
	}
	sections["content"] = out
}

// renderContext is the mutable state of one program execution.
type renderContext struct {
	r            *Renderer
	view         string
	scope        *scope
	sections     map[string]string
	sectionStack []string
	writers      []*strings.Builder
	layoutRef    string
	loops        []map[string]any
	depth        int
}

func (r *Renderer) newContext(view string, sc *scope, sections map[string]string, depth int) *renderContext {
	return &renderContext{
		r:        r,
		view:     view,
		scope:    sc,
		sections: sections,
		writers:  []*strings.Builder{{}},
		depth:    depth,
	}
}

func (c *renderContext) top() *strings.Builder {
	return c.writers[len(c.writers)-1]
}

func (c *renderContext) run(p *Program) (string, error) {
	if err := c.exec(p.Nodes); err != nil {
		return "", err
	}
	if n := len(c.sectionStack); n > 0 {
		return "", &RenderError{View: c.view, Err: fmt.Errorf("%w: section %q was never closed", ErrStackUnderflow, c.sectionStack[n-1])}
	}
	return c.writers[0].String(), nil
}

func (c *renderContext) fail(n *Node, src string, err error) error {
	var re *RenderError
	if errors.As(err, &re) {
		return err
	}
	return &RenderError{View: c.view, Line: n.Line, Expr: src, Err: err}
}

func (c *renderContext) fetchError(ref string, err error) error {
	if errors.Is(err, ErrTemplateNotFound) {
		err = fmt.Errorf("%w: %s", ErrLayoutNotFound, ref)
	}
	var re *RenderError
	if errors.As(err, &re) {
		return err
	}
	return &RenderError{View: c.view, Err: err}
}

func (c *renderContext) exec(nodes []Node) error {
	for i := range nodes {
		if err := c.execNode(&nodes[i]); err != nil {
			return err
		}
	}
	return nil
}

func (c *renderContext) execNode(n *Node) error {
	switch n.Op {
	case OpText:
		c.top().WriteString(n.Text)
	case OpEcho, OpEscapedEcho:
		v, err := c.r.eval.Eval(n.x, c.scope)
		if err != nil {
			if c.r.eval.Strict {
				return c.fail(n, n.Expr, err)
			}
			return nil
		}
		s := expr.ToString(v)
		if n.Op == OpEscapedEcho {
			s = html.EscapeString(s)
		}
		c.top().WriteString(s)
	case OpIf, OpUnless, OpIsset, OpEmpty:
		for i := range n.Branches {
			b := &n.Branches[i]
			ok, err := c.r.eval.EvalBool(b.cond, c.scope)
			if err != nil {
				return &RenderError{View: c.view, Line: b.Line, Expr: b.Cond, Err: err}
			}
			if ok {
				return c.exec(b.Body)
			}
		}
		return c.exec(n.Else)
	case OpForeach:
		return c.execForeach(n)
	case OpFor:
		return c.execFor(n)
	case OpWhile:
		for i := 0; ; i++ {
			if i >= c.r.maxLoopIter {
				return c.fail(n, n.Expr, fmt.Errorf("loop exceeded %d iterations", c.r.maxLoopIter))
			}
			ok, err := c.r.eval.EvalBool(n.x, c.scope)
			if err != nil {
				return c.fail(n, n.Expr, err)
			}
			if !ok {
				return nil
			}
			if err := c.exec(n.Body); err != nil {
				return err
			}
		}
	case OpCode:
		if err := c.r.eval.Exec(n.stmts, c.scope, c.top()); err != nil {
			return c.fail(n, "@code", err)
		}
	case OpSectionStart:
		c.sectionStack = append(c.sectionStack, n.Name)
		c.writers = append(c.writers, &strings.Builder{})
	case OpSectionEnd:
		k := len(c.sectionStack)
		if k == 0 {
			return &RenderError{View: c.view, Line: n.Line, Err: fmt.Errorf("%w: @endsection without @section", ErrStackUnderflow)}
		}
		name := c.sectionStack[k-1]
		c.sectionStack = c.sectionStack[:k-1]
		captured := c.top().String()
		c.writers = c.writers[:len(c.writers)-1]
		c.sections[name] = captured
		if len(c.sectionStack) > 0 {
			// an enclosing section also receives the nested section's text
			c.top().WriteString(captured)
		}
	case OpYield:
		if s, ok := c.sections[n.Name]; ok {
			c.top().WriteString(s)
			return nil
		}
		if n.x == nil {
			return nil
		}
		v, err := c.r.eval.Eval(n.x, c.scope)
		if err != nil {
			if c.r.eval.Strict {
				return c.fail(n, n.Expr, err)
			}
			return nil
		}
		c.top().WriteString(expr.ToString(v))
	case OpExtends:
		c.layoutRef = n.Name
	case OpInclude:
		return c.execInclude(n)
	default:
		return c.fail(n, "", fmt.Errorf("unknown instruction %q", n.Op))
	}
	return nil
}

func (c *renderContext) execInclude(n *Node) error {
	if c.depth+1 > c.r.maxLayoutDepth {
		return c.fail(n, n.Name, fmt.Errorf("includes nested deeper than %d", c.r.maxLayoutDepth))
	}
	child := newChildScope(c.scope)
	if n.x != nil {
		v, err := c.r.eval.Eval(n.x, c.scope)
		if err != nil {
			return c.fail(n, n.Expr, err)
		}
		entries, err := expr.Entries(v)
		if err != nil {
			return c.fail(n, n.Expr, fmt.Errorf("include variables: %w", err))
		}
		for _, en := range entries {
			child.Assign(expr.ToString(en.Key), en.Value)
		}
	}
	p, err := c.r.programs.Get(n.Name)
	if err != nil {
		return c.fetchError(n.Name, err)
	}
	res, err := c.r.compose(n.Name, p, child, c.scope.rootData(), c.depth+1)
	if err != nil {
		return err
	}
	c.top().WriteString(res.Output)
	return nil
}

func (c *renderContext) execForeach(n *Node) error {
	h := n.foreach
	coll, err := c.r.eval.Eval(h.Collection, c.scope)
	if err != nil {
		return c.fail(n, n.Expr, err)
	}
	entries, err := expr.Entries(coll)
	if err != nil {
		return c.fail(n, n.Expr, err)
	}
	prevLoop, hadLoop := c.scope.Lookup("loop")
	defer func() {
		c.loops = c.loops[:len(c.loops)-1]
		if hadLoop {
			c.scope.Assign("loop", prevLoop)
		} else {
			c.scope.Unset("loop")
		}
	}()
	var parent any
	if k := len(c.loops); k > 0 {
		parent = c.loops[k-1]
	}
	c.loops = append(c.loops, nil)
	count := len(entries)
	for i, en := range entries {
		loop := map[string]any{
			"index":     i,
			"iteration": i + 1,
			"first":     i == 0,
			"last":      i == count-1,
			"count":     count,
			"remaining": count - i - 1,
			"depth":     len(c.loops),
			"parent":    parent,
			"odd":       (i+1)%2 == 1,
			"even":      (i+1)%2 == 0,
		}
		c.loops[len(c.loops)-1] = loop
		c.scope.Assign("loop", loop)
		if h.Key != "" {
			c.scope.Assign(h.Key, en.Key)
		}
		c.scope.Assign(h.Value, en.Value)
		if err := c.exec(n.Body); err != nil {
			return err
		}
	}
	return nil
}

func (c *renderContext) execFor(n *Node) error {
	h := n.loop
	if err := c.r.eval.Exec(h.Init, c.scope, c.top()); err != nil {
		return c.fail(n, n.Expr, err)
	}
	for i := 0; ; i++ {
		if i >= c.r.maxLoopIter {
			return c.fail(n, n.Expr, fmt.Errorf("loop exceeded %d iterations", c.r.maxLoopIter))
		}
		if h.Cond != nil {
			ok, err := c.r.eval.EvalBool(h.Cond, c.scope)
			if err != nil {
				return c.fail(n, n.Expr, err)
			}
			if !ok {
				return nil
			}
		}
		if err := c.exec(n.Body); err != nil {
			return err
		}
		if err := c.r.eval.Exec(h.Step, c.scope, c.top()); err != nil {
			return c.fail(n, n.Expr, err)
		}
	}
}

// scope layers template variables over the render data.
type scope struct {
	vars   map[string]any
	parent *scope
	data   any
}

func newRootScope(data any) *scope {
	return &scope{vars: make(map[string]any), data: data}
}

func newChildScope(parent *scope) *scope {
	return &scope{vars: make(map[string]any), parent: parent}
}

func (s *scope) Lookup(name string) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
		if cur.parent == nil {
			return lookupData(cur.data, name)
		}
	}
	return nil, false
}

func (s *scope) Assign(name string, value any) {
	s.vars[name] = value
}

func (s *scope) Unset(name string) {
	delete(s.vars, name)
}

func (s *scope) rootData() any {
	cur := s
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur.data
}

func lookupData(data any, name string) (any, bool) {
	switch d := data.(type) {
	case nil:
		return nil, false
	case map[string]any:
		v, ok := d[name]
		return v, ok
	case map[string]string:
		v, ok := d[name]
		return v, ok
	}
	return expr.Field(data, name)
}
