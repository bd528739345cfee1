package expr

import (
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrUndefined is returned in strict mode when a variable, key or field is missing.
var ErrUndefined = errors.New("undefined")

// Func is the calling convention for template functions.
type Func func(args ...any) (any, error)

// Scope resolves and assigns template variables.
type Scope interface {
	Lookup(name string) (any, bool)
	Assign(name string, value any)
}

// MapScope is a Scope over a plain map, handy for tests and one-off evaluation.
type MapScope map[string]any

func (m MapScope) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

func (m MapScope) Assign(name string, value any) { m[name] = value }

// Evaluator evaluates parsed expressions against a Scope. It holds no per-call
// state and may be shared by concurrent renders.
type Evaluator struct {
	Funcs  map[string]Func
	Strict bool
}

// NewEvaluator returns an evaluator with the builtin functions plus funcs.
func NewEvaluator(funcs map[string]Func, strict bool) *Evaluator {
	all := Builtins()
	for k, f := range funcs {
		all[k] = f
	}
	return &Evaluator{Funcs: all, Strict: strict}
}

func (ev *Evaluator) lenient() *Evaluator {
	if !ev.Strict {
		return ev
	}
	return &Evaluator{Funcs: ev.Funcs}
}

func (ev *Evaluator) Eval(e Expr, s Scope) (any, error) {
	switch v := e.(type) {
	case *NullLit:
		return nil, nil
	case *BoolLit:
		return v.Val, nil
	case *StringLit:
		return v.Val, nil
	case *NumberLit:
		return v.Value, nil
	case *DollarIdent:
		return ev.lookup(v.Name, s)
	case *Ident:
		return ev.lookup(v.Name, s)
	case *DotAccess:
		base, err := ev.Eval(v.Base, s)
		if err != nil {
			return nil, err
		}
		return ev.fetch(base, v.Field)
	case *IndexAccess:
		base, err := ev.Eval(v.Base, s)
		if err != nil {
			return nil, err
		}
		key, err := ev.Eval(v.Key, s)
		if err != nil {
			return nil, err
		}
		return ev.fetch(base, key)
	case *CallExpr:
		return ev.call(v, s)
	case *UnaryExpr:
		x, err := ev.Eval(v.X, s)
		if err != nil {
			return nil, err
		}
		switch v.Op {
		case "!":
			return !Truthy(x), nil
		case "-":
			n, ok := toNumber(x)
			if !ok {
				return nil, fmt.Errorf("cannot negate %T", x)
			}
			if n.isFloat {
				return -n.f, nil
			}
			return -n.i, nil
		case "+":
			n, ok := toNumber(x)
			if !ok {
				return nil, fmt.Errorf("cannot convert %T to number", x)
			}
			return n.value(), nil
		}
		return nil, fmt.Errorf("unknown unary operator %q", v.Op)
	case *BinaryExpr:
		return ev.binary(v, s)
	case *TernaryExpr:
		c, err := ev.Eval(v.Cond, s)
		if err != nil {
			return nil, err
		}
		if Truthy(c) {
			return ev.Eval(v.Then, s)
		}
		return ev.Eval(v.Else, s)
	case *ArrayLit:
		return ev.array(v, s)
	}
	return nil, fmt.Errorf("unsupported expression %T", e)
}

// EvalBool evaluates e and reports its truthiness.
func (ev *Evaluator) EvalBool(e Expr, s Scope) (bool, error) {
	v, err := ev.Eval(e, s)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// Exec runs statements, writing echo output to w.
func (ev *Evaluator) Exec(stmts []Stmt, s Scope, w io.Writer) error {
	for _, st := range stmts {
		switch v := st.(type) {
		case *AssignStmt:
			val, err := ev.Eval(v.Value, s)
			if err != nil {
				return err
			}
			if v.Op != "=" {
				cur, _ := s.Lookup(v.Name)
				op := strings.TrimSuffix(v.Op, "=")
				if val, err = applyBinary(op, cur, val); err != nil {
					return fmt.Errorf("$%s %s: %w", v.Name, v.Op, err)
				}
			}
			s.Assign(v.Name, val)
		case *IncDecStmt:
			cur, _ := s.Lookup(v.Name)
			val, err := applyBinary("+", cur, v.Delta)
			if err != nil {
				return fmt.Errorf("$%s: %w", v.Name, err)
			}
			s.Assign(v.Name, val)
		case *EchoStmt:
			val, err := ev.Eval(v.Value, s)
			if err != nil {
				return err
			}
			if w != nil {
				if _, err := io.WriteString(w, ToString(val)); err != nil {
					return err
				}
			}
		case *ExprStmt:
			if _, err := ev.Eval(v.Value, s); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported statement %T", st)
		}
	}
	return nil
}

func (ev *Evaluator) lookup(name string, s Scope) (any, error) {
	if s != nil {
		if v, ok := s.Lookup(name); ok {
			return v, nil
		}
	}
	if ev.Strict {
		return nil, fmt.Errorf("variable $%s: %w", name, ErrUndefined)
	}
	return nil, nil
}

func (ev *Evaluator) missing(key any) (any, error) {
	if ev.Strict {
		return nil, fmt.Errorf("key %v: %w", key, ErrUndefined)
	}
	return nil, nil
}

// fetch resolves base[key] / base->key over maps, structs, slices and methods.
func (ev *Evaluator) fetch(base any, key any) (any, error) {
	if base == nil {
		return ev.missing(key)
	}
	rv := reflect.ValueOf(base)
	ind := rv
	for ind.Kind() == reflect.Pointer || ind.Kind() == reflect.Interface {
		if ind.IsNil() {
			return ev.missing(key)
		}
		ind = ind.Elem()
	}
	switch ind.Kind() {
	case reflect.Map:
		if kv, ok := mapKey(ind.Type().Key(), key); ok {
			if r := ind.MapIndex(kv); r.IsValid() {
				return r.Interface(), nil
			}
		}
	case reflect.Struct:
		if name, ok := key.(string); ok {
			if f := fieldByName(ind, name); f.IsValid() && f.CanInterface() {
				return f.Interface(), nil
			}
		}
	case reflect.Slice, reflect.Array:
		if i, ok := toIndex(key); ok && i >= 0 && i < ind.Len() {
			return ind.Index(i).Interface(), nil
		}
	case reflect.String:
		if i, ok := toIndex(key); ok {
			rs := []rune(ind.String())
			if i >= 0 && i < len(rs) {
				return string(rs[i]), nil
			}
		}
	}
	if name, ok := key.(string); ok {
		if m := methodByName(rv, name); m.IsValid() && m.Type().NumIn() == 0 {
			return callValue(m, nil)
		}
	}
	return ev.missing(key)
}

func (ev *Evaluator) call(c *CallExpr, s Scope) (any, error) {
	if id, ok := c.Fn.(*Ident); ok {
		switch id.Name {
		case "isset":
			return ev.isset(c.Args, s), nil
		case "empty":
			if len(c.Args) != 1 {
				return nil, fmt.Errorf("empty() expects 1 argument, got %d", len(c.Args))
			}
			v, err := ev.lenient().Eval(c.Args[0], s)
			return err != nil || !Truthy(v), nil
		}
	}
	args := make([]any, len(c.Args))
	for i, a := range c.Args {
		v, err := ev.Eval(a, s)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	switch fn := c.Fn.(type) {
	case *Ident:
		if f, ok := ev.Funcs[fn.Name]; ok {
			return f(args...)
		}
		// a variable holding a func value
		if s == nil {
			return nil, fmt.Errorf("unknown function %s()", fn.Name)
		}
		if v, ok := s.Lookup(fn.Name); ok && v != nil {
			return callAny(v, args, fn.Name)
		}
		return nil, fmt.Errorf("unknown function %s()", fn.Name)
	case *DotAccess:
		base, err := ev.Eval(fn.Base, s)
		if err != nil {
			return nil, err
		}
		if base == nil {
			if ev.Strict {
				return nil, fmt.Errorf("call of %s() on null", fn.Field)
			}
			return nil, nil
		}
		if m := methodByName(reflect.ValueOf(base), fn.Field); m.IsValid() {
			return callValue(m, args)
		}
		// a func stored under a map key or struct field
		v, err := ev.fetch(base, fn.Field)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, fmt.Errorf("method %s() not found on %T", fn.Field, base)
		}
		return callAny(v, args, fn.Field)
	default:
		v, err := ev.Eval(c.Fn, s)
		if err != nil {
			return nil, err
		}
		return callAny(v, args, String(c.Fn))
	}
}

func (ev *Evaluator) isset(args []Expr, s Scope) bool {
	if len(args) == 0 {
		return false
	}
	le := ev.lenient()
	for _, a := range args {
		v, err := le.Eval(a, s)
		if err != nil || isNil(v) {
			return false
		}
	}
	return true
}

func (ev *Evaluator) binary(b *BinaryExpr, s Scope) (any, error) {
	switch b.Op {
	case "&&":
		l, err := ev.EvalBool(b.Left, s)
		if err != nil || !l {
			return false, err
		}
		return ev.EvalBool(b.Right, s)
	case "||":
		l, err := ev.EvalBool(b.Left, s)
		if err != nil || l {
			return l, err
		}
		return ev.EvalBool(b.Right, s)
	case "??":
		l, err := ev.lenient().Eval(b.Left, s)
		if err == nil && !isNil(l) {
			return l, nil
		}
		return ev.Eval(b.Right, s)
	case "?:":
		l, err := ev.Eval(b.Left, s)
		if err != nil {
			return nil, err
		}
		if Truthy(l) {
			return l, nil
		}
		return ev.Eval(b.Right, s)
	}
	l, err := ev.Eval(b.Left, s)
	if err != nil {
		return nil, err
	}
	r, err := ev.Eval(b.Right, s)
	if err != nil {
		return nil, err
	}
	return applyBinary(b.Op, l, r)
}

func applyBinary(op string, l, r any) (any, error) {
	switch op {
	case ".":
		return ToString(l) + ToString(r), nil
	case "==":
		return looseEqual(l, r), nil
	case "!=":
		return !looseEqual(l, r), nil
	case "===":
		return strictEqual(l, r), nil
	case "!==":
		return !strictEqual(l, r), nil
	case "<", "<=", ">", ">=":
		c, err := compare(l, r)
		if err != nil {
			return nil, err
		}
		switch op {
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		}
		return c >= 0, nil
	case "+":
		_, ls := l.(string)
		_, rs := r.(string)
		if ls || rs {
			return ToString(l) + ToString(r), nil
		}
		if l == nil {
			l = int64(0)
		}
		fallthrough
	case "-", "*", "/", "%":
		if l == nil {
			l = int64(0)
		}
		if r == nil {
			r = int64(0)
		}
		return arith(op, l, r)
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func (ev *Evaluator) array(a *ArrayLit, s Scope) (any, error) {
	keyed := false
	for _, it := range a.Items {
		if it.Key != nil {
			keyed = true
			break
		}
	}
	if !keyed {
		list := make([]any, 0, len(a.Items))
		for _, it := range a.Items {
			v, err := ev.Eval(it.Value, s)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	}
	m := make(map[string]any, len(a.Items))
	next := 0
	for _, it := range a.Items {
		var key string
		if it.Key == nil {
			key = strconv.Itoa(next)
			next++
		} else {
			k, err := ev.Eval(it.Key, s)
			if err != nil {
				return nil, err
			}
			key = ToString(k)
		}
		v, err := ev.Eval(it.Value, s)
		if err != nil {
			return nil, err
		}
		m[key] = v
	}
	return m, nil
}

// Entry is one iteration step of a foreach loop.
type Entry struct {
	Key   any
	Value any
}

// Entries lists the elements of a slice, array or map. Map entries are sorted
// by key so iteration order is stable between renders.
func Entries(v any) ([]Entry, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]Entry, rv.Len())
		for i := range out {
			out[i] = Entry{Key: i, Value: rv.Index(i).Interface()}
		}
		return out, nil
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			a, b := keys[i].Interface(), keys[j].Interface()
			if c, err := compare(a, b); err == nil {
				return c < 0
			}
			return ToString(a) < ToString(b)
		})
		out := make([]Entry, len(keys))
		for i, k := range keys {
			out[i] = Entry{Key: k.Interface(), Value: rv.MapIndex(k).Interface()}
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot iterate over %T", v)
}

// Truthy applies template truthiness: nil, false, 0, "", "0" and empty
// collections are false.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && t != "0"
	}
	if n, ok := toNumber(v); ok {
		if n.isFloat {
			return n.f != 0
		}
		return n.i != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	}
	return true
}

// ToString converts a value to its output text; nil renders as "".
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case fmt.Stringer:
		return t.String()
	case error:
		return t.Error()
	}
	if isNil(v) {
		return ""
	}
	return fmt.Sprint(v)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

type number struct {
	i       int64
	f       float64
	isFloat bool
}

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

func (n number) value() any {
	if n.isFloat {
		return n.f
	}
	return n.i
}

// toNumber converts Go numeric kinds; strings are not numbers here.
func toNumber(v any) (number, bool) {
	if v == nil {
		return number{}, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{i: rv.Int()}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return number{i: int64(rv.Uint())}, true
	case reflect.Float32, reflect.Float64:
		return number{f: rv.Float(), isFloat: true}, true
	}
	return number{}, false
}

// toNumeric also accepts numeric strings and bools, for arithmetic.
func toNumeric(v any) (number, bool) {
	if n, ok := toNumber(v); ok {
		return n, true
	}
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return number{i: i}, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return number{f: f, isFloat: true}, true
		}
	case bool:
		if t {
			return number{i: 1}, true
		}
		return number{}, true
	}
	return number{}, false
}

func arith(op string, l, r any) (any, error) {
	a, ok := toNumeric(l)
	if !ok {
		return nil, fmt.Errorf("unsupported operand %T for %s", l, op)
	}
	b, ok := toNumeric(r)
	if !ok {
		return nil, fmt.Errorf("unsupported operand %T for %s", r, op)
	}
	if !a.isFloat && !b.isFloat {
		switch op {
		case "+":
			return a.i + b.i, nil
		case "-":
			return a.i - b.i, nil
		case "*":
			return a.i * b.i, nil
		case "/":
			if b.i == 0 {
				return nil, errors.New("division by zero")
			}
			if a.i%b.i == 0 {
				return a.i / b.i, nil
			}
			return float64(a.i) / float64(b.i), nil
		case "%":
			if b.i == 0 {
				return nil, errors.New("modulo by zero")
			}
			return a.i % b.i, nil
		}
	}
	x, y := a.float(), b.float()
	switch op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/":
		if y == 0 {
			return nil, errors.New("division by zero")
		}
		return x / y, nil
	case "%":
		if y == 0 {
			return nil, errors.New("modulo by zero")
		}
		return math.Mod(x, y), nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func looseEqual(l, r any) bool {
	if isNil(l) || isNil(r) {
		return isNil(l) && isNil(r)
	}
	if lb, ok := l.(bool); ok {
		return lb == Truthy(r)
	}
	if rb, ok := r.(bool); ok {
		return rb == Truthy(l)
	}
	_, ls := l.(string)
	_, rs := r.(string)
	if !(ls && rs) {
		if a, ok := toNumeric(l); ok {
			if b, ok := toNumeric(r); ok {
				return a.float() == b.float()
			}
		}
	}
	if ls || rs {
		return ToString(l) == ToString(r)
	}
	return reflect.DeepEqual(l, r)
}

func strictEqual(l, r any) bool {
	if isNil(l) || isNil(r) {
		return isNil(l) && isNil(r)
	}
	a, aok := toNumber(l)
	b, bok := toNumber(r)
	if aok || bok {
		if !aok || !bok || a.isFloat != b.isFloat {
			return false
		}
		return a.float() == b.float()
	}
	if reflect.TypeOf(l) != reflect.TypeOf(r) {
		return false
	}
	return reflect.DeepEqual(l, r)
}

func compare(l, r any) (int, error) {
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		return strings.Compare(ls, rs), nil
	}
	a, aok := toNumeric(l)
	b, bok := toNumeric(r)
	if l == nil {
		a, aok = number{}, true
	}
	if r == nil {
		b, bok = number{}, true
	}
	if aok && bok {
		x, y := a.float(), b.float()
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("cannot compare %T with %T", l, r)
}

func toIndex(key any) (int, bool) {
	if n, ok := toNumeric(key); ok && !n.isFloat {
		return int(n.i), true
	}
	return 0, false
}

func mapKey(t reflect.Type, key any) (reflect.Value, bool) {
	if key == nil {
		return reflect.Value{}, false
	}
	kv := reflect.ValueOf(key)
	if kv.Type().AssignableTo(t) {
		return kv, true
	}
	switch {
	case t.Kind() == reflect.String:
		return reflect.ValueOf(ToString(key)).Convert(t), true
	case isIntKind(t.Kind()):
		if n, ok := toNumeric(key); ok && !n.isFloat {
			return reflect.ValueOf(n.i).Convert(t), true
		}
	case t.Kind() == reflect.Interface:
		return kv, kv.Type().Implements(t)
	}
	return reflect.Value{}, false
}

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func fieldByName(v reflect.Value, name string) reflect.Value {
	if f := v.FieldByName(name); f.IsValid() {
		return f
	}
	if up := capitalize(name); up != name {
		if f := v.FieldByName(up); f.IsValid() {
			return f
		}
	}
	return v.FieldByNameFunc(func(n string) bool { return strings.EqualFold(n, name) })
}

func methodByName(v reflect.Value, name string) reflect.Value {
	if !v.IsValid() {
		return reflect.Value{}
	}
	if m := v.MethodByName(name); m.IsValid() {
		return m
	}
	return v.MethodByName(capitalize(name))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func callAny(fn any, args []any, name string) (any, error) {
	if f, ok := fn.(Func); ok {
		return f(args...)
	}
	if f, ok := fn.(func(...any) (any, error)); ok {
		return f(args...)
	}
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not callable (%T)", name, fn)
	}
	return callValue(rv, args)
}

// callValue invokes a reflected function, converting arguments to the
// parameter types. Results may be (v), (v, error), (error) or nothing.
func callValue(fn reflect.Value, args []any) (any, error) {
	t := fn.Type()
	nin := t.NumIn()
	if t.IsVariadic() {
		if len(args) < nin-1 {
			return nil, fmt.Errorf("expected at least %d arguments, got %d", nin-1, len(args))
		}
	} else if len(args) != nin {
		return nil, fmt.Errorf("expected %d arguments, got %d", nin, len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var pt reflect.Type
		if t.IsVariadic() && i >= nin-1 {
			pt = t.In(nin - 1).Elem()
		} else {
			pt = t.In(i)
		}
		v, err := convertArg(a, pt)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		in[i] = v
	}
	out := fn.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if t.Out(0) == errorType {
			if out[0].IsNil() {
				return nil, nil
			}
			return nil, out[0].Interface().(error)
		}
		return out[0].Interface(), nil
	case 2:
		if t.Out(1) == errorType && !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		return out[0].Interface(), nil
	}
	return nil, fmt.Errorf("function returns %d values", len(out))
}

func convertArg(a any, pt reflect.Type) (reflect.Value, error) {
	if a == nil {
		return reflect.Zero(pt), nil
	}
	av := reflect.ValueOf(a)
	if av.Type().AssignableTo(pt) {
		return av, nil
	}
	if _, ok := toNumber(a); ok && (isIntKind(pt.Kind()) || pt.Kind() == reflect.Float32 || pt.Kind() == reflect.Float64) {
		return av.Convert(pt), nil
	}
	if pt.Kind() == reflect.String {
		return reflect.ValueOf(ToString(a)).Convert(pt), nil
	}
	if av.Kind() == pt.Kind() && av.Type().ConvertibleTo(pt) {
		return av.Convert(pt), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", a, pt)
}

// WrapFunc adapts an arbitrary Go func into a Func.
func WrapFunc(fn any) (Func, error) {
	switch f := fn.(type) {
	case Func:
		return f, nil
	case func(...any) (any, error):
		return f, nil
	}
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return nil, fmt.Errorf("%T is not a function", fn)
	}
	return func(args ...any) (any, error) {
		return callValue(rv, args)
	}, nil
}

var strictEvaluator = &Evaluator{Strict: true}

// Field resolves base[key] or base->key the way templates do and reports
// whether the member exists.
func Field(base any, key any) (any, bool) {
	v, err := strictEvaluator.fetch(base, key)
	return v, err == nil
}
