package engine

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Templates rendered through the Fiber adapter receive a SafeFiberCtx under
// "request" and can call its read accessors.
func TestFiberAdapterInjection(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "pages/home.blade.tpl", `<!doctype html>
<html><body>
Host: {{ $request->header('Host') }}
Query foo: {{{ $request->query('foo') }}}
Path: {{ $request->path() }}
X: {{ $x }}
</body></html>`, time.Time{})
	writeTemplate(t, dir, "pages/user.blade.tpl", "user {{ $request->param('id') }} via {{ $request->method() }} {{ $data }}", time.Time{})

	be := newTestEngine(t, dir, nil)
	adapter := &FiberViewsAdapter{Engine: be}
	app := fiber.New(fiber.Config{Views: adapter})

	app.Get("/pages/home", func(c *fiber.Ctx) error {
		return adapter.RenderWithCtx(c, "pages/home.blade.tpl", map[string]interface{}{"x": 1})
	})
	app.Get("/users/:id", func(c *fiber.Ctx) error {
		return c.Render("pages.user", WithFiberContext(c, "extra"))
	})

	req := httptest.NewRequest("GET", "/pages/home?foo=%3Cbar%3E", nil)
	req.Host = "example.local"
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("http do: %v", err)
	}
	defer resp.Body.Close()
	bodyBytes, _ := io.ReadAll(resp.Body)
	body := string(bodyBytes)

	for _, want := range []string{"Host: example.local", "Query foo: &lt;bar&gt;", "Path: /pages/home", "X: 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in body; got: %s", want, body)
		}
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/users/42", nil), 5000)
	if err != nil {
		t.Fatalf("http do: %v", err)
	}
	defer resp.Body.Close()
	bodyBytes, _ = io.ReadAll(resp.Body)
	if got := string(bodyBytes); got != "user 42 via GET extra" {
		t.Fatalf("body = %q", got)
	}
}

func TestWithFiberContext(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		orig := map[string]interface{}{"a": 1}
		got := WithFiberContext(c, orig)
		if _, ok := got["request"].(*SafeFiberCtx); !ok || got["a"] != 1 {
			t.Errorf("map data = %v", got)
		}
		if _, leaked := orig["request"]; leaked {
			t.Error("caller's map was modified")
		}
		if got := WithFiberContext(c, fiber.Map{"b": 2}); got["b"] != 2 || got["request"] == nil {
			t.Errorf("fiber.Map data = %v", got)
		}
		if got := WithFiberContext(c, nil); len(got) != 1 {
			t.Errorf("nil data = %v", got)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
	if _, err := app.Test(httptest.NewRequest("GET", "/", nil)); err != nil {
		t.Fatal(err)
	}

	var nilCtx *SafeFiberCtx
	if nilCtx.Header("Host") != "" || nilCtx.Local("k") != nil || nilCtx.Path() != "" {
		t.Fatal("nil SafeFiberCtx should answer with zero values")
	}
}
