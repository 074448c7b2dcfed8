package runner

import (
	"fmt"
	"strings"

	"github.com/google/shlex"

	"judgecore/pkg/errs"
)

// buildCommand expands a language's command template and splits it with
// shell-word semantics, exactly as the judge's own runner does it.
func buildCommand(tpl string, lang Language, extraFlags []string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, errs.New(errs.RunnerInternal).WithMessage("command template is required")
	}
	expanded := tpl
	expanded = strings.ReplaceAll(expanded, "{src}", lang.SourceFile)
	expanded = strings.ReplaceAll(expanded, "{bin}", lang.BinaryFile)
	if strings.Contains(expanded, "{extraFlags}") {
		expanded = strings.ReplaceAll(expanded, "{extraFlags}", strings.Join(extraFlags, " "))
	}
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, errs.Wrapf(err, errs.RunnerInternal, "parse command template %q", tpl)
	}
	if len(fields) == 0 {
		return nil, errs.New(errs.RunnerInternal).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

// renderStdin joins an ordered tuple of primitives one per line, the
// default stdin convention spec.md describes for a TestCase's rendered
// input.
func renderStdin(values []interface{}) []byte {
	lines := make([]string, len(values))
	for i, v := range values {
		lines[i] = primitiveToLine(v)
	}
	return []byte(strings.Join(lines, "\n"))
}

func primitiveToLine(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
