package engine

import (
	"testing"
)

func benchData() map[string]interface{} {
	return map[string]interface{}{
		"title":   "Bench",
		"showNav": true,
		"features": []map[string]interface{}{
			{"title": "Layouts", "description": "@extends and @yield"},
			{"title": "Loops", "description": "@foreach with $loop"},
		},
		"users": []map[string]interface{}{
			{"name": "Ann", "email": "ann@example.test", "isAdmin": true},
			{"name": "Bob", "email": "bob@example.test", "isAdmin": false},
		},
	}
}

// BenchmarkBladeEngine benchmark hiệu năng render với cache
func BenchmarkBladeEngine(b *testing.B) {
	blade := newTestEngine(b, "../templates", func(c *BladeConfig) { c.SkipPreload = false })
	data := benchData()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := blade.RenderString("home", data); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkBladeEngineNoCache compiles on every render.
func BenchmarkBladeEngineNoCache(b *testing.B) {
	blade := newTestEngine(b, "../templates", func(c *BladeConfig) { c.CacheEnabled = false })
	data := benchData()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := blade.RenderString("home", data); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCompile(b *testing.B) {
	src := "@extends('layouts.app')\n@section('content')@foreach($users as $user)@include('partials.user')@endforeach @endsection"
	c := NewCompiler()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := c.Compile(src); err != nil {
			b.Fatal(err)
		}
	}
}

func TestSampleTemplatesRender(t *testing.T) {
	blade := newTestEngine(t, "../templates", nil)
	if err := blade.ValidateAllTemplates(); err != nil {
		t.Fatal(err)
	}
	out, err := blade.RenderString("home", benchData())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 {
		t.Fatal("empty output")
	}
}
