package engine

import "context"

// PackageLoader makes the named top-level modules importable, typically by
// installing them. Progress text goes to report.
type PackageLoader interface {
	Load(ctx context.Context, modules []string, report func(string)) error
}

// PackageLoaderFunc adapts a function to PackageLoader.
type PackageLoaderFunc func(ctx context.Context, modules []string, report func(string)) error

func (f PackageLoaderFunc) Load(ctx context.Context, modules []string, report func(string)) error {
	return f(ctx, modules, report)
}
