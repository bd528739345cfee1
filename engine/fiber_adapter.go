package engine

import (
	"io"

	"github.com/gofiber/fiber/v2"
)

// FiberViewsAdapter implements fiber.Views by delegating to BladeEngine
type FiberViewsAdapter struct {
	Engine *BladeEngine
}

var _ fiber.Views = (*FiberViewsAdapter)(nil)

// Render implements fiber.Views. Layouts come from @extends inside the view,
// so the layout names fiber passes are ignored.
func (v *FiberViewsAdapter) Render(w io.Writer, name string, data interface{}, layout ...string) error {
	return v.Engine.Render(w, name, data)
}

// Load implements fiber.Views; it compiles every template ahead of the first request.
func (v *FiberViewsAdapter) Load() error {
	return v.Engine.PreloadTemplates()
}

// WithFiberContext returns template data with a SafeFiberCtx under "request",
// so templates can call $request->query('page'). Map data keeps its keys;
// any other value is placed under "data".
func WithFiberContext(c *fiber.Ctx, data interface{}) map[string]interface{} {
	req := NewSafeFiberCtx(c)
	switch d := data.(type) {
	case nil:
		return map[string]interface{}{"request": req}
	case map[string]interface{}:
		nm := make(map[string]interface{}, len(d)+1)
		for k, v := range d {
			nm[k] = v
		}
		nm["request"] = req
		return nm
	case fiber.Map:
		return WithFiberContext(c, map[string]interface{}(d))
	}
	return map[string]interface{}{"request": req, "data": data}
}

// RenderWithCtx injects a SafeFiberCtx and writes the rendered view as the
// HTML response body.
func (v *FiberViewsAdapter) RenderWithCtx(c *fiber.Ctx, name string, data interface{}) error {
	out, err := v.Engine.RenderString(name, WithFiberContext(c, data))
	if err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.SendString(out)
}
