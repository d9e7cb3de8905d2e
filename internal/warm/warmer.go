// Package warm keeps a configured set of lists fresh in the cache by
// re-resolving them on an interval.
package warm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/wcdata/internal/querykey"
	"github.com/kalambet/wcdata/internal/resolver"
)

const (
	defaultInterval    = 5 * time.Minute
	defaultConcurrency = 4
)

// Target is one list to keep warm.
type Target struct {
	Resource string
	Query    querykey.Query
}

func (t Target) String() string {
	p, err := querykey.Path(t.Resource, t.Query)
	if err != nil {
		return t.Resource
	}
	return p
}

// ParseTargets parses a comma or whitespace separated list such as
// "products?status=publish orders?status=processing&per_page=50". List
// parameters use brackets: "products?include[]=1&include[]=2". Targets that
// name the same resource and query are kept once.
func ParseTargets(s string) ([]Target, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	targets := make([]Target, 0, len(fields))
	for _, f := range fields {
		name, rawQuery, _ := strings.Cut(f, "?")
		if name == "" {
			return nil, fmt.Errorf("target %q has no resource", f)
		}
		if !resolver.ValidResourceName(name) {
			return nil, fmt.Errorf("target %q: %w", f, resolver.ErrInvalidResource)
		}
		values, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil, fmt.Errorf("parsing target %q: %w", f, err)
		}
		t := Target{Resource: name, Query: querykey.FromValues(values)}
		if !slices.ContainsFunc(targets, t.same) {
			targets = append(targets, t)
		}
	}
	return targets, nil
}

func (t Target) same(o Target) bool {
	return t.Resource == o.Resource && querykey.Equal(t.Query, o.Query)
}

// Resolvers looks up the resolver of a resource.
type Resolvers interface {
	Resolver(name string) (*resolver.Resolver, error)
}

// Result summarizes one warming pass.
type Result struct {
	Targets int
	Failed  int
}

// Warmer re-resolves its targets every interval.
type Warmer struct {
	resolvers   Resolvers
	targets     []Target
	interval    time.Duration
	concurrency int
	logger      *slog.Logger
}

// NewWarmer creates a Warmer. If interval is <= 0 it defaults to 5m; if
// concurrency is <= 0 it defaults to 4.
func NewWarmer(resolvers Resolvers, targets []Target, interval time.Duration, concurrency int) *Warmer {
	if interval <= 0 {
		interval = defaultInterval
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Warmer{
		resolvers:   resolvers,
		targets:     targets,
		interval:    interval,
		concurrency: concurrency,
		logger:      slog.Default(),
	}
}

// SetLogger replaces the default logger.
func (w *Warmer) SetLogger(l *slog.Logger) {
	if l != nil {
		w.logger = l
	}
}

// Run warms immediately and then every interval until ctx is cancelled.
func (w *Warmer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		res, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Warn("warm pass had failures", "targets", res.Targets, "failed", res.Failed, "error", err)
		} else {
			w.logger.Debug("warm pass done", "targets", res.Targets)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.interval):
		}
	}
}

// RunOnce resolves every target once. Failed targets are not retried within
// the pass; their errors are already in the cache and are also returned
// joined.
func (w *Warmer) RunOnce(ctx context.Context) (Result, error) {
	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(w.concurrency)
	for _, t := range w.targets {
		g.Go(func() error {
			if err := w.warm(ctx, t); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warming %s: %w", t, err))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	return Result{Targets: len(w.targets), Failed: len(errs)}, errors.Join(errs...)
}

func (w *Warmer) warm(ctx context.Context, t Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := w.resolvers.Resolver(t.Resource)
	if err != nil {
		return err
	}
	_, err = r.GetItems(ctx, t.Query)
	return err
}
