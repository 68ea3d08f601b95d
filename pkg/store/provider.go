package store

import "github.com/vango-dev/slicestore/pkg/vango"

var registryContext = vango.CreateContext[*Registry](nil)

// Provider returns a component that makes r available to the hooks of its
// children.
//
//	sched := vango.NewScheduler()
//	sched.Mount(store.Provider(reg, App))
func Provider(r *Registry, children ...vango.Component) vango.Component {
	return registryContext.Provider(r, children...)
}

// Provide makes r available to components rendered below the current one.
func Provide(r *Registry) {
	registryContext.Provide(r)
}

// FromContext returns the registry from the nearest Provider, or nil.
func FromContext() *Registry {
	return registryContext.Use()
}

func useRegistry() *Registry {
	r, ok := registryContext.Lookup()
	if !ok || r == nil {
		panic(ErrNoProvider)
	}
	return r
}
