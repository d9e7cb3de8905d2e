package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kalambet/wcdata/internal/cache"
	"github.com/kalambet/wcdata/internal/querykey"
)

var (
	ErrUnknownSelector   = errors.New("no resolver registered for selector")
	ErrDuplicateSelector = errors.New("selector already registered")
	ErrEmptySelector     = errors.New("empty selector name")
	ErrBadArgs           = errors.New("bad resolver arguments")
)

// Func resolves the data behind a selector. It receives the selector's
// arguments without the state.
type Func func(ctx context.Context, args ...any) error

// Table maps selector names to the resolvers that fill them.
type Table struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{funcs: make(map[string]Func)}
}

// Register binds selector to fn.
func (t *Table) Register(selector string, fn Func) error {
	if selector == "" {
		return ErrEmptySelector
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.funcs[selector]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSelector, selector)
	}
	t.funcs[selector] = fn
	return nil
}

// Resolve runs the resolver registered for selector.
func (t *Table) Resolve(ctx context.Context, selector string, args ...any) error {
	t.mu.RLock()
	fn, ok := t.funcs[selector]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSelector, selector)
	}
	return fn(ctx, args...)
}

// Selectors lists the registered selector names in sorted order.
func (t *Table) Selectors() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.funcs))
	for name := range t.funcs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RegisterResource registers "<name>.getItem" (args: id) and
// "<name>.getItems" (args: optional query) for r.
func RegisterResource(t *Table, r *Resolver) error {
	name := r.Resource().Name
	err := t.Register(name+".getItem", func(ctx context.Context, args ...any) error {
		if len(args) != 1 {
			return fmt.Errorf("%w: %s.getItem wants an id", ErrBadArgs, name)
		}
		id, err := cache.NewID(args[0])
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadArgs, err)
		}
		_, err = r.GetItem(ctx, id)
		return err
	})
	if err != nil {
		return err
	}
	return t.Register(name+".getItems", func(ctx context.Context, args ...any) error {
		q, err := queryArg(args)
		if err != nil {
			return fmt.Errorf("%w: %s.getItems: %w", ErrBadArgs, name, err)
		}
		_, err = r.GetItems(ctx, q)
		return err
	})
}

func queryArg(args []any) (querykey.Query, error) {
	switch len(args) {
	case 0:
		return querykey.Query{}, nil
	case 1:
	default:
		return nil, errors.New("want at most one query")
	}
	switch q := args[0].(type) {
	case nil:
		return querykey.Query{}, nil
	case querykey.Query:
		return q, nil
	case map[string]any:
		return querykey.Query(q), nil
	default:
		return nil, fmt.Errorf("query has type %T", args[0])
	}
}
