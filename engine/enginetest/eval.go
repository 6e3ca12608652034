package enginetest

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tailored-agentic-units/pyide/engine"
)

// Evaluate understands just enough source for protocol tests, one statement
// per line:
//
//	print(x)     writes x, unquoting string literals
//	a+b, a/b     integer arithmetic; division by zero raises
//	name = expr  no value
//	def/class    no value
//	<int>        the integer
//
// Anything else evaluates to no value. The last line's value is the result.
func Evaluate(ctx context.Context, source string, stdout io.Writer) (engine.Result, error) {
	var res engine.Result
	for _, line := range strings.Split(source, "\n") {
		if ctx.Err() != nil {
			return engine.Result{}, ctx.Err()
		}
		line = strings.TrimSpace(line)
		res = engine.Result{}
		switch {
		case line == "", strings.HasPrefix(line, "#"):
		case strings.HasPrefix(line, "def "), strings.HasPrefix(line, "class "), strings.HasPrefix(line, "return "):
		case strings.HasPrefix(line, "print(") && strings.HasSuffix(line, ")"):
			arg := line[len("print(") : len(line)-1]
			v, err := value(arg)
			if err != nil {
				return engine.Result{}, err
			}
			fmt.Fprintln(stdout, v)
		case strings.Contains(line, "=") && !strings.Contains(line, "=="):
		default:
			v, err := value(line)
			if err != nil {
				return engine.Result{}, err
			}
			if v != "" {
				res = engine.Result{Value: v, HasValue: true}
			}
		}
	}
	return res, nil
}

func value(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if unq, err := strconv.Unquote(expr); err == nil {
		return unq, nil
	}
	if len(expr) >= 2 && expr[0] == '\'' && expr[len(expr)-1] == '\'' {
		return expr[1 : len(expr)-1], nil
	}
	for _, op := range []string{"+", "-", "*", "/"} {
		left, right, ok := strings.Cut(expr, op)
		if !ok {
			continue
		}
		a, errA := strconv.Atoi(strings.TrimSpace(left))
		b, errB := strconv.Atoi(strings.TrimSpace(right))
		if errA != nil || errB != nil {
			continue
		}
		switch op {
		case "+":
			return strconv.Itoa(a + b), nil
		case "-":
			return strconv.Itoa(a - b), nil
		case "*":
			return strconv.Itoa(a * b), nil
		default:
			if b == 0 {
				return "", &engine.ExecError{
					Type:      "ZeroDivisionError",
					Message:   "division by zero",
					Formatted: "Traceback (most recent call last):\n  File \"<console>\", line 1, in <module>\nZeroDivisionError: division by zero\n",
				}
			}
			return strconv.FormatFloat(float64(a)/float64(b), 'f', -1, 64), nil
		}
	}
	if _, err := strconv.Atoi(expr); err == nil {
		return expr, nil
	}
	return "", nil
}

// BlockUntilInterrupt returns an EvalFunc that blocks until rt is
// interrupted or closed, or ctx ends.
func BlockUntilInterrupt(rt *Runtime) EvalFunc {
	return func(ctx context.Context, source string, stdout io.Writer) (engine.Result, error) {
		select {
		case <-rt.Interrupted():
			return engine.Result{}, &engine.ExecError{
				Type:      "KeyboardInterrupt",
				Formatted: "Traceback (most recent call last):\n  File \"<exec>\", line 1, in <module>\nKeyboardInterrupt\n",
			}
		case <-rt.Gone():
			return engine.Result{}, fmt.Errorf("%w: killed", engine.ErrRuntimeExited)
		case <-ctx.Done():
			return engine.Result{}, ctx.Err()
		}
	}
}
