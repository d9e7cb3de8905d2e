package resolver

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"

	"github.com/kalambet/wcdata/internal/cache"
	"github.com/kalambet/wcdata/internal/wcapi"
)

var (
	ErrEmptyResource      = errors.New("resource without a name")
	ErrDuplicateResource  = errors.New("resource already registered")
	ErrInvalidResource    = errors.New("invalid resource name")
	ErrResourceNotAllowed = errors.New("resource not allowed")
)

// resourceName matches wc/v3 collection names such as "orders" or
// "products/categories".
var resourceName = regexp.MustCompile(`^[a-z0-9_-]+(/[a-z0-9_-]+)*$`)

// ValidResourceName reports whether name can be turned into a wc/v3 path.
func ValidResourceName(name string) bool {
	return resourceName.MatchString(name)
}

// Registry owns one Resolver per resource, each writing into its own
// cache.Store, and the Table of their selectors.
type Registry struct {
	client wcapi.Client
	logger *slog.Logger
	table  *Table

	mu        sync.Mutex
	resolvers map[string]*Resolver
	allowed   map[string]bool
}

// NewRegistry creates a Registry whose resolvers share client. The given
// resources are registered up front.
func NewRegistry(client wcapi.Client, resources ...Resource) (*Registry, error) {
	reg := &Registry{
		client:    client,
		logger:    slog.Default(),
		table:     NewTable(),
		resolvers: make(map[string]*Resolver),
	}
	for _, res := range resources {
		if _, err := reg.Add(res); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// SetLogger replaces the logger used by current and future resolvers.
func (reg *Registry) SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.logger = l
	for _, r := range reg.resolvers {
		r.SetLogger(l)
	}
}

// Restrict limits the resources Resolver creates on demand to names. An
// empty list lifts the restriction. Resources already registered stay.
func (reg *Registry) Restrict(names ...string) error {
	allowed := make(map[string]bool, len(names))
	for _, name := range names {
		if !ValidResourceName(name) {
			return fmt.Errorf("%w: %q", ErrInvalidResource, name)
		}
		allowed[name] = true
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if len(allowed) == 0 {
		allowed = nil
	}
	reg.allowed = allowed
	return nil
}

// Add registers res with a fresh store.
func (reg *Registry) Add(res Resource) (*Resolver, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.addLocked(res)
}

func (reg *Registry) addLocked(res Resource) (*Resolver, error) {
	if res.Name == "" {
		return nil, ErrEmptyResource
	}
	if _, ok := reg.resolvers[res.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateResource, res.Name)
	}
	r := New(res, cache.NewStore(cache.WithLogger(reg.logger)), reg.client)
	r.SetLogger(reg.logger)
	if err := RegisterResource(reg.table, r); err != nil {
		return nil, err
	}
	reg.resolvers[res.Name] = r
	return r, nil
}

// Get returns the resolver registered for name.
func (reg *Registry) Get(name string) (*Resolver, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.resolvers[name]
	return r, ok
}

// Resolver returns the resolver for name, registering a wc/v3 resource of
// that name on first use. Names must be lowercase path segments and, after
// Restrict, on the allow-list.
func (reg *Registry) Resolver(name string) (*Resolver, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.resolvers[name]; ok {
		return r, nil
	}
	if !ValidResourceName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResource, name)
	}
	if reg.allowed != nil && !reg.allowed[name] {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotAllowed, name)
	}
	return reg.addLocked(WooCommerce(name))
}

// Table returns the selector table of every registered resource.
func (reg *Registry) Table() *Table { return reg.table }

// Names lists the registered resources in sorted order.
func (reg *Registry) Names() []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]string, 0, len(reg.resolvers))
	for name := range reg.resolvers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Stats summarizes every resource's current snapshot.
func (reg *Registry) Stats() map[string]cache.Stats {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make(map[string]cache.Stats, len(reg.resolvers))
	for name, r := range reg.resolvers {
		out[name] = r.Store().State().Stats()
	}
	return out
}
