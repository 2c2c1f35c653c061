package bindings

import (
	"context"
	"fmt"
	"io"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

// Call is one parsed script line.
type Call struct {
	Line int
	Name string
	Args []string
}

func (c Call) String() string {
	return fmt.Sprintf("%s %q", c.Name, c.Args)
}

// Result is the outcome of running one Call.
type Result struct {
	Call  Call
	Value any
	Err   error
}

// ParseScript reads shell-like calls, one per line:
//
//	Claude.SetModel claude-sonnet-4-5
//	Claude.QueryForTurn 3 'Describe the room.'
//
// Words may be quoted but must be literal; variables, substitutions,
// pipelines and redirections are rejected.
func ParseScript(r io.Reader, name string) ([]Call, error) {
	file, err := syntax.NewParser().Parse(r, name)
	if err != nil {
		return nil, err
	}

	calls := make([]Call, 0, len(file.Stmts))
	for _, stmt := range file.Stmts {
		line := int(stmt.Pos().Line())
		call, ok := stmt.Cmd.(*syntax.CallExpr)
		if !ok || stmt.Negated || stmt.Background || stmt.Coprocess || len(stmt.Redirs) > 0 {
			return nil, fmt.Errorf("%s:%d: only plain calls are supported", name, line)
		}
		if len(call.Assigns) > 0 {
			return nil, fmt.Errorf("%s:%d: assignments are not supported", name, line)
		}
		if len(call.Args) == 0 {
			continue
		}

		words := make([]string, 0, len(call.Args))
		for _, w := range call.Args {
			s, err := literalWord(w)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", name, line, err)
			}
			words = append(words, s)
		}
		calls = append(calls, Call{Line: line, Name: words[0], Args: words[1:]})
	}
	return calls, nil
}

func literalWord(w *syntax.Word) (string, error) {
	var dynamic syntax.Node
	syntax.Walk(w, func(node syntax.Node) bool {
		switch node.(type) {
		case *syntax.ParamExp, *syntax.CmdSubst, *syntax.ArithmExp, *syntax.ProcSubst, *syntax.ExtGlob:
			if dynamic == nil {
				dynamic = node
			}
		}
		return true
	})
	if dynamic != nil {
		return "", fmt.Errorf("non-literal word %q", w.Lit())
	}
	return expand.Literal(nil, w)
}

// RunScript executes calls in order against t. Failed calls are reported in
// their Result and do not stop the script; an unknown entry point does.
func RunScript(ctx context.Context, t *Table, calls []Call) ([]Result, error) {
	results := make([]Result, 0, len(calls))
	for _, c := range calls {
		if _, ok := t.Lookup(c.Name); !ok {
			return results, fmt.Errorf("line %d: %w: %s", c.Line, ErrUnknownEntry, c.Name)
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		v, err := t.Call(ctx, c.Name, c.Args...)
		results = append(results, Result{Call: c, Value: v, Err: err})
	}
	return results, nil
}
