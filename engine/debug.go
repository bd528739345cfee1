package engine

import (
	"errors"
	"fmt"
	"io"
)

// DebugTemplate debug template compilation: prints the token stream after each
// pass and the resulting program.
func (b *BladeEngine) DebugTemplate(name string, w io.Writer) error {
	id, err := b.viewID(name)
	if err != nil {
		return err
	}
	src, err := b.loader.Load(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "=== DEBUG TEMPLATE: %s (%s) ===\n", id, src.Path)
	if err := b.compiler.DebugCompile(src.Raw, w); err != nil {
		var ce *CompileError
		if errors.As(err, &ce) && ce.View == "" {
			ce.View = id
		}
		return err
	}
	return nil
}

// ValidateAllTemplates validate tất cả templates. It compiles every source
// without touching the cache.
func (b *BladeEngine) ValidateAllTemplates() error {
	ids, err := b.Templates()
	errs := []error{err}
	for _, id := range ids {
		src, err := b.loader.Load(id)
		if err == nil {
			_, err = b.compiler.Compile(src.Raw)
		}
		if err != nil {
			var ce *CompileError
			if errors.As(err, &ce) && ce.View == "" {
				ce.View = id
			}
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
