// Package bindings exposes a session to a scripting host as a table of
// named entry points taking string arguments.
package bindings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/HexSleeves/turnbridge/internal/job"
	"github.com/HexSleeves/turnbridge/internal/llm"
)

// Namespace prefixes every entry point name.
const Namespace = "Claude"

var (
	ErrUnknownEntry = errors.New("unknown entry point")
	ErrArgCount     = errors.New("wrong number of arguments")
)

// Host is the session surface the table drives.
type Host interface {
	Query(ctx context.Context, prompt, systemPrompt string) llm.Response
	QueryForTurn(ctx context.Context, turn int, prompt, systemPrompt string) llm.Response
	QueryAsync(ctx context.Context, prompt, systemPrompt string) (*job.Job, error)
	QueryForTurnAsync(ctx context.Context, turn int, prompt, systemPrompt string) (*job.Job, error)
	HasResponse() bool
	GetResponse() (llm.Response, bool)
	SetAPIKey(key string)
	SetModel(model string)
	SetMaxTokens(n int)
	Shutdown(ctx context.Context) error
}

// Entry is one callable. Results are nil, a string or a bool.
type Entry struct {
	Name    string
	MinArgs int
	MaxArgs int
	Usage   string
	call    func(ctx context.Context, h Host, args []string) (any, error)
}

type Table struct {
	host    Host
	entries map[string]Entry
}

func NewTable(h Host) *Table {
	t := &Table{host: h, entries: make(map[string]Entry)}
	for _, e := range builtin() {
		t.entries[e.Name] = e
	}
	return t
}

func builtin() []Entry {
	return []Entry{
		{Name: "Query", MinArgs: 1, MaxArgs: 2, Usage: "prompt [system]",
			call: func(ctx context.Context, h Host, a []string) (any, error) {
				return h.Query(ctx, a[0], optional(a, 1)).String(), nil
			}},
		{Name: "QueryForTurn", MinArgs: 2, MaxArgs: 3, Usage: "turn prompt [system]",
			call: func(ctx context.Context, h Host, a []string) (any, error) {
				turn, err := parseInt("turn", a[0])
				if err != nil {
					return nil, err
				}
				return h.QueryForTurn(ctx, turn, a[1], optional(a, 2)).String(), nil
			}},
		{Name: "QueryAsync", MinArgs: 1, MaxArgs: 2, Usage: "prompt [system]",
			call: func(ctx context.Context, h Host, a []string) (any, error) {
				_, err := h.QueryAsync(ctx, a[0], optional(a, 1))
				return nil, err
			}},
		{Name: "QueryForTurnAsync", MinArgs: 2, MaxArgs: 3, Usage: "turn prompt [system]",
			call: func(ctx context.Context, h Host, a []string) (any, error) {
				turn, err := parseInt("turn", a[0])
				if err != nil {
					return nil, err
				}
				_, err = h.QueryForTurnAsync(ctx, turn, a[1], optional(a, 2))
				return nil, err
			}},
		{Name: "HasResponse", Usage: "",
			call: func(ctx context.Context, h Host, a []string) (any, error) {
				return h.HasResponse(), nil
			}},
		{Name: "GetResponse", Usage: "",
			call: func(ctx context.Context, h Host, a []string) (any, error) {
				resp, _ := h.GetResponse()
				return resp.String(), nil
			}},
		{Name: "SetAPIKey", MinArgs: 1, MaxArgs: 1, Usage: "key",
			call: func(ctx context.Context, h Host, a []string) (any, error) {
				h.SetAPIKey(a[0])
				return nil, nil
			}},
		{Name: "SetModel", MinArgs: 1, MaxArgs: 1, Usage: "model",
			call: func(ctx context.Context, h Host, a []string) (any, error) {
				h.SetModel(a[0])
				return nil, nil
			}},
		{Name: "SetMaxTokens", MinArgs: 1, MaxArgs: 1, Usage: "n",
			call: func(ctx context.Context, h Host, a []string) (any, error) {
				n, err := parseInt("max tokens", a[0])
				if err != nil {
					return nil, err
				}
				h.SetMaxTokens(n)
				return nil, nil
			}},
		{Name: "Shutdown", Usage: "",
			call: func(ctx context.Context, h Host, a []string) (any, error) {
				return nil, h.Shutdown(ctx)
			}},
	}
}

// Names lists the qualified entry point names, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, Namespace+"."+name)
	}
	sort.Strings(names)
	return names
}

// Lookup finds an entry by bare or qualified name.
func (t *Table) Lookup(name string) (Entry, bool) {
	e, ok := t.entries[strings.TrimPrefix(name, Namespace+".")]
	return e, ok
}

// Call invokes the named entry point with args.
func (t *Table) Call(ctx context.Context, name string, args ...string) (any, error) {
	e, ok := t.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntry, name)
	}
	if len(args) < e.MinArgs || len(args) > e.MaxArgs {
		return nil, fmt.Errorf("%s.%s(%s): %w: got %d", Namespace, e.Name, e.Usage, ErrArgCount, len(args))
	}
	return e.call(ctx, t.host, args)
}

// FormatValue renders a call result for display.
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func optional(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func parseInt(what, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", what, s, err)
	}
	return n, nil
}
