package operation

import (
	"sort"
	"sync"

	"github.com/kbukum/flowkit/registry"
)

// Registry is a thread-safe Library keyed by module and block name.
type Registry struct {
	mu         sync.RWMutex
	ops        map[string]Operation
	versioned  map[string]Operation
	middleware []Middleware
}

var _ Library = (*Registry)(nil)

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		ops:       make(map[string]Operation),
		versioned: make(map[string]Operation),
	}
}

func key(module, name string) string { return module + "/" + name }

func versionedKey(module, version, name string) string {
	return module + "@" + version + "/" + name
}

// Register binds op to every version of module/name.
func (r *Registry) Register(module, name string, op Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[key(module, name)] = op
}

// RegisterVersion binds op to one exact module version.
func (r *Registry) RegisterVersion(module, version, name string, op Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versioned[versionedKey(module, version, name)] = op
}

// Use appends middleware applied to every resolved operation.
func (r *Registry) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw...)
}

// Resolve returns the operation for h, wrapped in the registered
// middleware.
func (r *Registry) Resolve(h registry.BlockHandle) (Operation, bool) {
	r.mu.RLock()
	op, ok := r.versioned[versionedKey(h.Module, h.Version, h.Name)]
	if !ok {
		op, ok = r.ops[key(h.Module, h.Name)]
	}
	mw := r.middleware
	r.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if len(mw) == 0 {
		return op, true
	}
	return Chain(mw...)(op), true
}

// List returns the sorted registration keys: "module/name" and
// "module@version/name".
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops)+len(r.versioned))
	for k := range r.ops {
		names = append(names, k)
	}
	for k := range r.versioned {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
