package engine

import "github.com/gofiber/fiber/v2"

// FiberAccessor defines the minimal methods templates are allowed to call.
type FiberAccessor interface {
	Header(string) string
	Param(string) string
	Local(string) interface{}
	Query(string) string
	Path() string
	Method() string
}

// SafeFiberCtx wraps *fiber.Ctx and exposes only read accessors to templates.
// The context is unexported so templates cannot reach it through field access.
type SafeFiberCtx struct {
	c *fiber.Ctx
}

var _ FiberAccessor = (*SafeFiberCtx)(nil)

// NewSafeFiberCtx creates a SafeFiberCtx
func NewSafeFiberCtx(c *fiber.Ctx) *SafeFiberCtx {
	return &SafeFiberCtx{c: c}
}

func (s *SafeFiberCtx) Header(k string) string {
	if s == nil || s.c == nil {
		return ""
	}
	return s.c.Get(k)
}

func (s *SafeFiberCtx) Param(name string) string {
	if s == nil || s.c == nil {
		return ""
	}
	return s.c.Params(name)
}

func (s *SafeFiberCtx) Local(key string) interface{} {
	if s == nil || s.c == nil {
		return nil
	}
	return s.c.Locals(key)
}

func (s *SafeFiberCtx) Query(key string) string {
	if s == nil || s.c == nil {
		return ""
	}
	return s.c.Query(key)
}

func (s *SafeFiberCtx) Path() string {
	if s == nil || s.c == nil {
		return ""
	}
	return s.c.Path()
}

func (s *SafeFiberCtx) Method() string {
	if s == nil || s.c == nil {
		return ""
	}
	return s.c.Method()
}
