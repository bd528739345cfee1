package engine

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"blade_view/engine/expr"
)

// mapPrograms compiles views from in-memory sources.
type mapPrograms map[string]string

func (m mapPrograms) Get(viewID string) (*Program, error) {
	src, ok := m[viewID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, viewID)
	}
	return NewCompiler().Compile(src)
}

func renderView(t *testing.T, views mapPrograms, name string, data any, opts RenderOptions) (*Result, error) {
	t.Helper()
	p, err := views.Get(name)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return NewRenderer(views, opts).Execute(name, p, data)
}

func mustRender(t *testing.T, views mapPrograms, name string, data any) string {
	t.Helper()
	res, err := renderView(t, views, name, data, RenderOptions{})
	if err != nil {
		t.Fatalf("render %s: %v", name, err)
	}
	return res.Output
}

func TestRenderEscaping(t *testing.T) {
	views := mapPrograms{
		"escaped": "Hello, {{{ name }}}!",
		"raw":     "Hello, {{ name }}!",
	}
	data := map[string]any{"name": "<b>"}
	if got := mustRender(t, views, "escaped", data); got != "Hello, &lt;b&gt;!" {
		t.Errorf("escaped = %q", got)
	}
	if got := mustRender(t, views, "raw", data); got != "Hello, <b>!" {
		t.Errorf("raw = %q", got)
	}
}

func TestRenderLayoutYield(t *testing.T) {
	views := mapPrograms{
		"layout":  "<h1>@yield('title', 'Default')</h1>",
		"with":    "@extends('layout') @section('title')Hi@endsection",
		"without": "@extends('layout')",
		"inline":  "@extends('layout')@section('title', $t)",
	}
	res, err := renderView(t, views, "with", nil, RenderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "<h1>Hi</h1>" {
		t.Errorf("with section = %q", res.Output)
	}
	if diff := cmp.Diff([]string{"layout"}, res.Layouts); diff != "" {
		t.Errorf("layouts (-want +got):\n%s", diff)
	}
	if got := mustRender(t, views, "without", nil); got != "<h1>Default</h1>" {
		t.Errorf("without section = %q", got)
	}
	if got := mustRender(t, views, "inline", map[string]any{"t": "<x>"}); got != "<h1>&lt;x&gt;</h1>" {
		t.Errorf("inline section = %q", got)
	}
}

func TestRenderLayoutChain(t *testing.T) {
	views := mapPrograms{
		"base": "<html>@yield('content')</html>",
		"mid":  "@extends('base')<main>@yield('content')</main>",
		"page": "@extends('mid')hi",
	}
	res, err := renderView(t, views, "page", nil, RenderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "<html><main>hi</main></html>" {
		t.Errorf("output = %q", res.Output)
	}
	if diff := cmp.Diff([]string{"mid", "base"}, res.Layouts); diff != "" {
		t.Errorf("layouts (-want +got):\n%s", diff)
	}
}

func TestRenderContentSection(t *testing.T) {
	views := mapPrograms{
		"layout":   "[@yield('content')]",
		"leftover": "@extends('layout')body",
		"explicit": "@extends('layout')\n@section('content')kept@endsection\n",
	}
	if got := mustRender(t, views, "leftover", nil); got != "[body]" {
		t.Errorf("leftover = %q", got)
	}
	// text outside sections always replaces an explicit content section
	if got := mustRender(t, views, "explicit", nil); got != "[\n\n]" {
		t.Errorf("explicit = %q", got)
	}
	res, err := renderView(t, views, "explicit", nil, RenderOptions{PreserveContentSection: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "[kept]" {
		t.Errorf("explicit with PreserveContentSection = %q", res.Output)
	}
}

func TestRenderNestedSections(t *testing.T) {
	views := mapPrograms{
		"page": "@section('A')outer-@section('B')inner@endsection-tail@endsection",
	}
	res, err := renderView(t, views, "page", nil, RenderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"A":       "outer-inner-tail",
		"B":       "inner",
		"content": "",
	}
	if diff := cmp.Diff(want, res.Sections); diff != "" {
		t.Fatalf("sections (-want +got):\n%s", diff)
	}
	if res.Output != "" {
		t.Errorf("output = %q, want empty", res.Output)
	}
}

func TestRenderSectionStackErrors(t *testing.T) {
	views := mapPrograms{
		"unclosed": "@section('x')abc",
		"stray":    "abc @endsection",
	}
	for name := range views {
		t.Run(name, func(t *testing.T) {
			_, err := renderView(t, views, name, nil, RenderOptions{})
			if !errors.Is(err, ErrStackUnderflow) {
				t.Fatalf("want ErrStackUnderflow, got %v", err)
			}
			var re *RenderError
			if !errors.As(err, &re) || re.View != name {
				t.Fatalf("want *RenderError for %s, got %#v", name, err)
			}
		})
	}
}

func TestRenderMissingTargets(t *testing.T) {
	views := mapPrograms{
		"extends": "@extends('nope')",
		"include": "a @include('nope') b",
	}
	for name := range views {
		t.Run(name, func(t *testing.T) {
			res, err := renderView(t, views, name, nil, RenderOptions{})
			if !errors.Is(err, ErrLayoutNotFound) {
				t.Fatalf("want ErrLayoutNotFound, got %v", err)
			}
			if res != nil {
				t.Fatalf("partial result returned: %+v", res)
			}
		})
	}
}

func TestRenderLayoutCycle(t *testing.T) {
	views := mapPrograms{
		"a": "@extends('b')",
		"b": "@extends('a')",
	}
	_, err := renderView(t, views, "a", nil, RenderOptions{MaxLayoutDepth: 4})
	var re *RenderError
	if !errors.As(err, &re) || !strings.Contains(err.Error(), "deeper than 4") {
		t.Fatalf("want layout depth error, got %v", err)
	}
}

func TestRenderLoops(t *testing.T) {
	views := mapPrograms{
		"list":   "@foreach($items as $item){{ $loop->iteration }}:{{ $item }}{{ $loop->last ? '' : ',' }}@endforeach",
		"map":    "@foreach($prices as $name => $price){{ $name }}={{ $price }};@endforeach",
		"nested": "@foreach($rows as $row)@foreach($row as $cell){{ $loop->parent->iteration }}.{{ $loop->iteration }}={{ $cell }} @endforeach|@endforeach",
		"scoped": "@foreach([1] as $x)@endforeach{{ isset($loop) ? 'yes' : 'no' }}",
		"for":    "@for($i = 0; $i < 3; $i++){{ $i }}@endfor",
		"while":  "@code $n = 3; @endcode\n@while($n > 0){{ $n }}@code $n--; @endcode\n@endwhile",
		"empty":  "[@foreach($none as $x)<x>@endforeach]",
	}
	data := map[string]any{
		"items":  []string{"a", "b", "c"},
		"prices": map[string]int{"tea": 2, "coffee": 3},
		"rows":   [][]string{{"x", "y"}, {"z"}},
	}
	tests := map[string]string{
		"list":   "1:a,2:b,3:c",
		"map":    "coffee=3;tea=2;",
		"nested": "1.1=x 1.2=y |2.1=z |",
		"scoped": "no",
		"for":    "012",
		"while":  "\n3\n2\n1\n",
		"empty":  "[]",
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			if got := mustRender(t, views, name, data); got != want {
				t.Fatalf("got %q, want %q", got, want)
			}
		})
	}
}

func TestRenderLoopGuard(t *testing.T) {
	views := mapPrograms{"spin": "@while(true)<x>@endwhile"}
	_, err := renderView(t, views, "spin", nil, RenderOptions{MaxLoopIterations: 5})
	var re *RenderError
	if !errors.As(err, &re) || !strings.Contains(err.Error(), "exceeded 5 iterations") {
		t.Fatalf("want loop guard error, got %v", err)
	}
}

func TestRenderInclude(t *testing.T) {
	views := mapPrograms{
		"partial": "<{{ $label }}:{{ $user }}>",
		"main":    "@include('partial', ['label' => 'hi'])",
		"setter":  "@code $x = 1; @endcode",
		"isolate": "@include('setter')[{{ $x ?? 'unset' }}]",
		"row":     "<li>{{ $u }}</li>",
		"loop":    "@foreach($users as $u)@include('row', ['u' => upper($u)])@endforeach",
	}
	data := map[string]any{"user": "ann", "users": []string{"a", "b"}}
	tests := map[string]string{
		"main":    "<hi:ann>",
		"isolate": "[unset]",
		"loop":    "<li>A</li><li>B</li>",
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			if got := mustRender(t, views, name, data); got != want {
				t.Fatalf("got %q, want %q", got, want)
			}
		})
	}
}

func TestRenderConditionals(t *testing.T) {
	data := map[string]any{
		"users":   []string{"ann"},
		"none":    []string{},
		"admin":   true,
		"guest":   false,
		"zero":    "0",
		"profile": map[string]any{"name": "Ann"},
	}
	tests := []struct {
		src  string
		want string
	}{
		{"@if(!empty($users))yes@endif", "yes"},
		{"@if($admin && !$guest)<ok>@endif", "<ok>"},
		{"@if(not $admin)<a>@elseif($guest)<b>@else<c>@endif", "<c>"},
		{"@unless($guest)<shown>@endunless", "<shown>"},
		{"@isset($profile['name'])<set>@endisset", "<set>"},
		{"@isset($profile['age'])<set>@endisset", ""},
		{"@empty($none)<empty>@endempty", "<empty>"},
		{"@empty($users)<empty>@endempty", ""},
		{"@if($zero)<truthy>@else<falsy>@endif", "<falsy>"},
		{"@if($missing)<x>@endif", ""},
		{"{{ count($users) }} {{ $profile->name }}", "1 Ann"},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			views := mapPrograms{"v": tc.src}
			if got := mustRender(t, views, "v", data); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRenderStrict(t *testing.T) {
	views := mapPrograms{"v": "a{{ $missing }}b"}
	if got := mustRender(t, views, "v", nil); got != "ab" {
		t.Fatalf("lenient render = %q", got)
	}
	_, err := renderView(t, views, "v", nil, RenderOptions{Strict: true})
	if !errors.Is(err, expr.ErrUndefined) {
		t.Fatalf("want ErrUndefined, got %v", err)
	}
	var re *RenderError
	if !errors.As(err, &re) || re.Line != 1 || re.Expr != "$missing" {
		t.Fatalf("want positioned *RenderError, got %#v", err)
	}
}

type pageData struct {
	Title string
	Tags  []string
}

func TestRenderStructData(t *testing.T) {
	views := mapPrograms{"v": "{{ $title }}|{{ join($tags, '+') }}|{{ $tags[1] }}|{{ $author ?? 'anon' }}"}
	got := mustRender(t, views, "v", pageData{Title: "News", Tags: []string{"go", "web"}})
	if got != "News|go+web|web|anon" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderCustomFuncs(t *testing.T) {
	views := mapPrograms{"v": "{{ greet($name) }}"}
	p, err := views.Get("v")
	if err != nil {
		t.Fatal(err)
	}
	greet, err := expr.WrapFunc(func(s string) string { return "hello " + s })
	if err != nil {
		t.Fatal(err)
	}
	r := NewRenderer(views, RenderOptions{Funcs: map[string]expr.Func{"greet": greet}})
	got, err := r.Render(p, map[string]any{"name": "ann"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello ann" {
		t.Fatalf("got %q", got)
	}
}

func TestRendererConcurrent(t *testing.T) {
	views := mapPrograms{
		"layout": "<title>@yield('title')</title>@yield('content')",
		"page":   "@extends('layout')@section('title', $n)@foreach($xs as $x){{ $x * $n }};@endforeach",
	}
	p, err := views.Get("page")
	if err != nil {
		t.Fatal(err)
	}
	r := NewRenderer(views, RenderOptions{})

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for n := 1; n <= 32; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			got, err := r.Render(p, map[string]any{"n": n, "xs": []int{1, 2}})
			if err != nil {
				errs <- err
				return
			}
			want := fmt.Sprintf("<title>%d</title>%d;%d;", n, n, 2*n)
			if got != want {
				errs <- fmt.Errorf("n=%d: got %q want %q", n, got, want)
			}
		}(n)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
