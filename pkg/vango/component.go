package vango

import (
	"sync"
	"sync/atomic"
)

// Component is a render function. It is re-run whenever a signal it read
// during its last render changes.
type Component func()

// Instance is a mounted component: its owner scope, the signals it read on
// the last render and its dirty state.
type Instance struct {
	id        uint64
	component Component
	depth     int

	// Owner scopes hooks and context values for this instance.
	Owner *Owner

	parent    *Instance
	scheduler *Scheduler

	dirty atomic.Bool

	sources   []*signalBase
	sourcesMu sync.Mutex

	renders atomic.Int64

	errMu   sync.Mutex
	lastErr error
}

var _ Listener = (*Instance)(nil)

func newInstance(c Component, parent *Instance, s *Scheduler) *Instance {
	var parentOwner *Owner
	depth := 0
	if parent != nil {
		parentOwner = parent.Owner
		depth = parent.depth + 1
	}

	inst := &Instance{
		id:        nextID(),
		component: c,
		depth:     depth,
		Owner:     NewOwner(parentOwner),
		parent:    parent,
		scheduler: s,
	}
	inst.Owner.OnCleanup(inst.dropSources)
	return inst
}

// ID implements Listener.
func (c *Instance) ID() uint64 {
	return c.id
}

// Parent returns the parent instance, or nil for a root.
func (c *Instance) Parent() *Instance {
	return c.parent
}

// MarkDirty implements Listener and schedules a re-render.
func (c *Instance) MarkDirty() {
	if c.Owner.IsDisposed() {
		return
	}
	if c.dirty.CompareAndSwap(false, true) && c.scheduler != nil {
		c.scheduler.schedule(c)
	}
}

// IsDirty reports whether the instance is waiting for a re-render.
func (c *Instance) IsDirty() bool {
	return c.dirty.Load()
}

// Renders returns how many times the instance has rendered.
func (c *Instance) Renders() int {
	return int(c.renders.Load())
}

// Err returns the error from the most recent render, if any.
func (c *Instance) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}

// Render runs the component with this instance as owner and listener.
// Subscriptions from the previous render are dropped first. A panic in the
// component is recovered and returned as a *RenderError.
func (c *Instance) Render() error {
	if c.component == nil || c.Owner.IsDisposed() {
		return nil
	}

	c.dirty.Store(false)
	c.dropSources()

	var ctx any
	if c.scheduler != nil {
		ctx = c.scheduler.ctx
	}

	var err error
	WithCtx(ctx, func() {
		WithOwner(c.Owner, func() {
			old := setCurrentInstance(c)
			defer setCurrentInstance(old)

			WithListener(c, func() {
				err = c.run()
			})
		})
	})
	c.renders.Add(1)

	c.errMu.Lock()
	c.lastErr = err
	c.errMu.Unlock()
	return err
}

func (c *Instance) run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RenderError{InstanceID: c.id, Value: r}
		}
	}()

	c.Owner.StartRender()
	c.component()
	c.Owner.EndRender()
	return nil
}

// Dispose unmounts the instance and its descendants.
func (c *Instance) Dispose() {
	c.Owner.Dispose()
}

func (c *Instance) addSource(source *signalBase) {
	c.sourcesMu.Lock()
	defer c.sourcesMu.Unlock()

	for _, s := range c.sources {
		if s == source {
			return
		}
	}
	c.sources = append(c.sources, source)
}

func (c *Instance) dropSources() {
	c.sourcesMu.Lock()
	sources := c.sources
	c.sources = nil
	c.sourcesMu.Unlock()

	for _, s := range sources {
		s.unsubscribe(c)
	}
}

// Child renders c as a child component of the instance currently rendering.
// The child keeps its instance across parent renders (one hook slot per call
// site), so it must be called unconditionally, like any hook. Outside a
// component tree c simply runs inline.
func Child(c Component) *Instance {
	parent := getCurrentInstance()
	if parent == nil {
		c()
		return nil
	}

	owner := parent.Owner
	owner.TrackHook(HookSlot)

	var inst *Instance
	if slot := owner.UseHookSlot(); slot != nil {
		inst = slot.(*Instance)
	} else {
		inst = newInstance(c, parent, parent.scheduler)
		owner.SetHookSlot(inst)
	}
	inst.component = c

	if err := inst.Render(); err != nil && inst.scheduler != nil {
		inst.scheduler.report(err)
	}
	return inst
}
