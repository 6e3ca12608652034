package python

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/tailored-agentic-units/pyide/engine"
)

// PipLoader installs missing modules with pip into the interpreter's
// environment. Module names are passed through as distribution names.
type PipLoader struct {
	Python string
}

var _ engine.PackageLoader = PipLoader{}

func (l PipLoader) Load(ctx context.Context, modules []string, report func(string)) error {
	if len(modules) == 0 {
		return nil
	}
	python := l.Python
	if python == "" {
		python = defaultPython
	}

	names := strings.Join(modules, ", ")
	report(fmt.Sprintf("Loading %s", names))

	args := append([]string{"-m", "pip", "install", "--quiet", "--disable-pip-version-check"}, modules...)
	out, err := exec.CommandContext(ctx, python, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s: %s", engine.ErrPackageInstall, names, strings.TrimSpace(string(out)))
	}

	report(fmt.Sprintf("Loaded %s", names))
	return nil
}
