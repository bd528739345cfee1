package expr

import (
	"encoding/json"
	"fmt"
	"html"
	"reflect"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var (
	sanitizePolicyOnce sync.Once
	sanitizePolicy     *bluemonday.Policy
)

func sanitizer() *bluemonday.Policy {
	sanitizePolicyOnce.Do(func() {
		sanitizePolicy = bluemonday.UGCPolicy()
	})
	return sanitizePolicy
}

// Sanitize strips markup that is unsafe for user generated content.
func Sanitize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	return sanitizer().Sanitize(raw)
}

// Builtins returns a fresh copy of the builtin function table. isset and empty
// are special forms handled by the evaluator and are not listed here.
func Builtins() map[string]Func {
	return map[string]Func{
		"count":    countFunc,
		"len":      countFunc,
		"upper":    stringFunc(strings.ToUpper),
		"lower":    stringFunc(strings.ToLower),
		"trim":     stringFunc(strings.TrimSpace),
		"e":        stringFunc(html.EscapeString),
		"sanitize": stringFunc(Sanitize),
		"join":     joinFunc,
		"json":     jsonFunc,
		"default":  defaultFunc,
	}
}

func arity(name string, args []any, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s() expects %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

func stringFunc(fn func(string) string) Func {
	return func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
		}
		return fn(ToString(args[0])), nil
	}
}

func countFunc(args ...any) (any, error) {
	if err := arity("count", args, 1); err != nil {
		return nil, err
	}
	v := args[0]
	if v == nil {
		return int64(0), nil
	}
	if s, ok := v.(string); ok {
		return int64(utf8.RuneCountInString(s)), nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return int64(0), nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return int64(rv.Len()), nil
	}
	return nil, fmt.Errorf("count() of %T", v)
}

// join(list, sep) joins the elements of a list; sep defaults to ", ".
func joinFunc(args ...any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("join() expects 1 or 2 arguments, got %d", len(args))
	}
	sep := ", "
	if len(args) == 2 {
		sep = ToString(args[1])
	}
	entries, err := Entries(args[0])
	if err != nil {
		return nil, fmt.Errorf("join(): %w", err)
	}
	parts := make([]string, len(entries))
	for i, en := range entries {
		parts[i] = ToString(en.Value)
	}
	return strings.Join(parts, sep), nil
}

func jsonFunc(args ...any) (any, error) {
	if err := arity("json", args, 1); err != nil {
		return nil, err
	}
	b, err := json.Marshal(args[0])
	if err != nil {
		return nil, fmt.Errorf("json(): %w", err)
	}
	return string(b), nil
}

// default(v, fallback) returns fallback when v is falsy.
func defaultFunc(args ...any) (any, error) {
	if err := arity("default", args, 2); err != nil {
		return nil, err
	}
	if Truthy(args[0]) {
		return args[0], nil
	}
	return args[1], nil
}
