package vango

import "context"

// Ctx is the runtime context available during render and after-render work.
type Ctx interface {
	// StdContext returns the standard library context for the current pass.
	// Use it when calling into code that takes a context.Context.
	StdContext() context.Context
}

// stdCtx adapts a context.Context to Ctx.
type stdCtx struct {
	ctx context.Context
}

func (c stdCtx) StdContext() context.Context {
	return c.ctx
}

// NewCtx wraps ctx as a runtime context.
func NewCtx(ctx context.Context) Ctx {
	if ctx == nil {
		ctx = context.Background()
	}
	return stdCtx{ctx: ctx}
}

// UseCtx returns the runtime context for the active render, or nil outside
// of one.
func UseCtx() Ctx {
	if ctx, ok := getCurrentCtx().(Ctx); ok {
		return ctx
	}
	return nil
}

// StdContext returns UseCtx().StdContext(), or context.Background() when no
// runtime context is active.
func StdContext() context.Context {
	if ctx := UseCtx(); ctx != nil {
		return ctx.StdContext()
	}
	return context.Background()
}

// SetContext sets a context value on the current component scope.
func SetContext(key, value any) {
	if owner := getCurrentOwner(); owner != nil {
		owner.SetValue(key, value)
	}
}

// GetContext retrieves a context value from the nearest scope that set it.
// Returns nil if no value is found.
func GetContext(key any) any {
	if owner := getCurrentOwner(); owner != nil {
		v, _ := owner.LookupValue(key)
		return v
	}
	return nil
}

// SetValue sets a value on this Owner.
func (o *Owner) SetValue(key, value any) {
	o.valuesMu.Lock()
	defer o.valuesMu.Unlock()

	if o.values == nil {
		o.values = make(map[any]any)
	}
	o.values[key] = value
}

// LookupValue retrieves a value from this Owner or its ancestors.
func (o *Owner) LookupValue(key any) (any, bool) {
	o.valuesMu.RLock()
	val, ok := o.values[key]
	o.valuesMu.RUnlock()
	if ok {
		return val, true
	}

	if o.parent != nil {
		return o.parent.LookupValue(key)
	}
	return nil, false
}

// Context provides dependency injection through the component tree.
//
//	var ThemeContext = vango.CreateContext("light")
//
//	app := ThemeContext.Provider("dark", Header, Main)
//
//	func Header() {
//	    theme := ThemeContext.Use()
//	    ...
//	}
type Context[T any] struct {
	key          any
	defaultValue T
}

type contextKey[T any] struct {
	ctx *Context[T]
}

// CreateContext creates a new context with the given default value.
func CreateContext[T any](defaultValue T) *Context[T] {
	ctx := &Context[T]{defaultValue: defaultValue}
	ctx.key = contextKey[T]{ctx: ctx}
	return ctx
}

// Provide stores value on the current component scope. Descendants rendered
// afterwards see it through Use.
func (c *Context[T]) Provide(value T) {
	SetContext(c.key, value)
}

// Provider returns a component that provides value to children.
func (c *Context[T]) Provider(value T, children ...Component) Component {
	return func() {
		c.Provide(value)
		for _, child := range children {
			Child(child)
		}
	}
}

// Lookup returns the value from the nearest provider and whether one exists.
func (c *Context[T]) Lookup() (T, bool) {
	TrackHook(HookContext)

	if owner := getCurrentOwner(); owner != nil {
		if value, ok := owner.LookupValue(c.key); ok {
			if typed, ok := value.(T); ok {
				return typed, true
			}
		}
	}
	return c.defaultValue, false
}

// Use returns the value from the nearest provider, or the default value.
func (c *Context[T]) Use() T {
	v, _ := c.Lookup()
	return v
}

// Default returns the default value for this context.
func (c *Context[T]) Default() T {
	return c.defaultValue
}
