package orchestrator

import "sync"

type registeredModule struct {
	kind   ModuleKind
	module Module
}

// registry tracks live modules in registration order plus a per-kind index
// used for fan-out. Mutations and reads are independent of the virtual-host
// lock so module code running inside a fan-out can consult the registry.
type registry struct {
	mu    sync.RWMutex
	list  []registeredModule
	kinds map[ModuleKind][]Module
}

// register inserts the module if absent. It refuses duplicates, including
// the same instance reporting a different kind than it was registered with.
func (r *registry) register(m Module) bool {
	if m == nil {
		return false
	}
	kind := m.Kind()
	if kind == KindUnknown {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.list {
		if entry.module == m {
			return false
		}
	}
	if r.kinds == nil {
		r.kinds = make(map[ModuleKind][]Module)
	}
	r.list = append(r.list, registeredModule{kind: kind, module: m})
	r.kinds[kind] = append(r.kinds[kind], m)
	return true
}

// unregister removes the module from both indexes, reporting whether it was
// present.
func (r *registry) unregister(m Module) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, entry := range r.list {
		if entry.module != m {
			continue
		}
		r.list = append(r.list[:i], r.list[i+1:]...)
		byKind := r.kinds[entry.kind]
		for j, candidate := range byKind {
			if candidate == m {
				r.kinds[entry.kind] = append(byKind[:j], byKind[j+1:]...)
				break
			}
		}
		return true
	}
	return false
}

// ofKind returns the modules of a kind in registration order. The slice is a
// copy; callers may iterate without holding any lock.
func (r *registry) ofKind(kind ModuleKind) []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byKind := r.kinds[kind]
	if len(byKind) == 0 {
		return nil
	}
	out := make([]Module, len(byKind))
	copy(out, byKind)
	return out
}

// fanoutOrder returns every module in application-create order: kinds in
// createOrder sequence, registration order within each kind.
func (r *registry) fanoutOrder() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Module
	for _, kind := range createOrder {
		out = append(out, r.kinds[kind]...)
	}
	return out
}

// providers returns the registered providers in registration order.
func (r *registry) providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byKind := r.kinds[KindProvider]
	out := make([]Provider, 0, len(byKind))
	for _, m := range byKind {
		if p, ok := m.(Provider); ok {
			out = append(out, p)
		}
	}
	return out
}

// mediaRouters returns the registered media routers in registration order.
func (r *registry) mediaRouters() []MediaRouter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byKind := r.kinds[KindMediaRouter]
	out := make([]MediaRouter, 0, len(byKind))
	for _, m := range byKind {
		if router, ok := m.(MediaRouter); ok {
			out = append(out, router)
		}
	}
	return out
}

func (r *registry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.list)
}
