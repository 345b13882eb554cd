package runtime

import (
	"sort"
	"sync"
)

// Factory constructs a backend with default options.
type Factory func() Runtime

type factoryEntry struct {
	name    string
	factory Factory
}

var (
	registryMu       sync.RWMutex
	builtinFactories []factoryEntry
)

// Register makes a backend available under name. Backends register from
// their package init; a later registration of the same name replaces the
// earlier one.
func Register(name string, factory Factory) {
	if name == "" {
		panic("runtime.Register: name must not be empty")
	}
	if factory == nil {
		panic("runtime.Register: factory must not be nil")
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	for i, entry := range builtinFactories {
		if entry.name == name {
			builtinFactories[i].factory = factory
			return
		}
	}

	builtinFactories = append(builtinFactories, factoryEntry{name: name, factory: factory})
}

// NewRegistry instantiates every registered backend.
func NewRegistry() Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()

	reg := make(Registry, len(builtinFactories))
	for _, entry := range builtinFactories {
		reg[entry.name] = entry.factory()
	}
	return reg
}

// Names lists the registered backend names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(builtinFactories))
	for _, entry := range builtinFactories {
		names = append(names, entry.name)
	}
	sort.Strings(names)
	return names
}

// Names lists the backends in the registry in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name, rt := range r {
		if rt != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
