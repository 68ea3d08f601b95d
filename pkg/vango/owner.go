package vango

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// HookType identifies the type of hook call for order validation.
type HookType uint8

const (
	HookSlot HookType = iota + 1
	HookContext
	HookStore
)

// String returns a human-readable name for the hook type.
func (h HookType) String() string {
	switch h {
	case HookSlot:
		return "Slot"
	case HookContext:
		return "Context"
	case HookStore:
		return "Store"
	default:
		return "Unknown"
	}
}

// Owner represents a component scope. Disposing an Owner disposes its child
// owners and runs its cleanups. Owners mirror the component tree.
type Owner struct {
	id uint64

	parent *Owner

	children   []*Owner
	childrenMu sync.Mutex

	cleanups   []Cleanup
	cleanupsMu sync.Mutex

	// afterRender holds work queued during render, run by RunAfterRender.
	afterRender   []func()
	afterRenderMu sync.Mutex

	values   map[any]any
	valuesMu sync.RWMutex

	disposed atomic.Bool

	// Dev-mode hook order tracking (only used when DebugMode is true).
	hookOrder   []HookType
	hookIndex   int
	renderCount int

	// hookSlots give hooks stable identity across renders.
	hookSlots   []any
	hookSlotIdx int
}

// NewOwner creates a new Owner registered as a child of parent.
// A nil parent creates a root Owner.
func NewOwner(parent *Owner) *Owner {
	o := &Owner{
		id:     nextID(),
		parent: parent,
	}
	if parent != nil {
		parent.addChild(o)
	}
	return o
}

// ID returns the unique identifier for this Owner.
func (o *Owner) ID() uint64 {
	return o.id
}

// Parent returns the parent Owner, or nil for a root Owner.
func (o *Owner) Parent() *Owner {
	return o.parent
}

// IsDisposed reports whether Dispose has been called.
func (o *Owner) IsDisposed() bool {
	return o.disposed.Load()
}

func (o *Owner) addChild(child *Owner) {
	o.childrenMu.Lock()
	defer o.childrenMu.Unlock()
	o.children = append(o.children, child)
}

func (o *Owner) removeChild(child *Owner) {
	o.childrenMu.Lock()
	defer o.childrenMu.Unlock()

	for i, c := range o.children {
		if c == child {
			o.children = append(o.children[:i], o.children[i+1:]...)
			return
		}
	}
}

func (o *Owner) childrenSnapshot() []*Owner {
	o.childrenMu.Lock()
	defer o.childrenMu.Unlock()
	children := make([]*Owner, len(o.children))
	copy(children, o.children)
	return children
}

// OnCleanup registers fn to run when this Owner is disposed. On a disposed
// Owner fn runs immediately.
func (o *Owner) OnCleanup(fn Cleanup) {
	if o.disposed.Load() {
		fn()
		return
	}

	o.cleanupsMu.Lock()
	defer o.cleanupsMu.Unlock()
	o.cleanups = append(o.cleanups, fn)
}

// AfterRender queues fn to run once the current render pass has finished.
func (o *Owner) AfterRender(fn func()) {
	if o.disposed.Load() {
		return
	}

	o.afterRenderMu.Lock()
	defer o.afterRenderMu.Unlock()
	o.afterRender = append(o.afterRender, fn)
}

// RunAfterRender runs queued after-render work for this Owner and then for its
// children. Work queued while running is kept for the next call.
func (o *Owner) RunAfterRender() {
	if o.disposed.Load() {
		return
	}

	o.afterRenderMu.Lock()
	pending := o.afterRender
	o.afterRender = nil
	o.afterRenderMu.Unlock()

	for _, fn := range pending {
		fn()
	}

	for _, child := range o.childrenSnapshot() {
		child.RunAfterRender()
	}
}

// HasAfterRender reports whether this Owner or a descendant has queued work.
func (o *Owner) HasAfterRender() bool {
	if o.disposed.Load() {
		return false
	}

	o.afterRenderMu.Lock()
	pending := len(o.afterRender) > 0
	o.afterRenderMu.Unlock()
	if pending {
		return true
	}

	for _, child := range o.childrenSnapshot() {
		if child.HasAfterRender() {
			return true
		}
	}
	return false
}

// Dispose disposes children in reverse creation order, then runs cleanups in
// reverse registration order.
func (o *Owner) Dispose() {
	if o.disposed.Swap(true) {
		return
	}

	if o.parent != nil {
		o.parent.removeChild(o)
	}

	o.childrenMu.Lock()
	children := o.children
	o.children = nil
	o.childrenMu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		children[i].Dispose()
	}

	o.cleanupsMu.Lock()
	cleanups := o.cleanups
	o.cleanups = nil
	o.cleanupsMu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}

	o.afterRenderMu.Lock()
	o.afterRender = nil
	o.afterRenderMu.Unlock()
}

// StartRender resets the hook slot index. In debug mode it also resets the
// hook order validation index.
func (o *Owner) StartRender() {
	o.hookSlotIdx = 0
	if DebugMode {
		o.hookIndex = 0
	}
}

// EndRender validates, in debug mode, that every expected hook was called.
func (o *Owner) EndRender() {
	if !DebugMode {
		return
	}
	if o.renderCount == 0 {
		o.renderCount = 1
	} else if o.hookIndex < len(o.hookOrder) {
		panic(fmt.Sprintf("[VANGO E002] Hook order changed: expected %d hooks, got %d",
			len(o.hookOrder), o.hookIndex))
	}
}

// TrackHook records a hook call. In debug mode, hooks called in a different
// order than on the first render cause a panic.
func (o *Owner) TrackHook(ht HookType) {
	if !DebugMode {
		return
	}

	if o.renderCount == 0 {
		o.hookOrder = append(o.hookOrder, ht)
		o.hookIndex++
		return
	}
	if o.hookIndex >= len(o.hookOrder) {
		panic(fmt.Sprintf("[VANGO E002] Hook order changed: extra %s hook at index %d",
			ht, o.hookIndex))
	}
	if expected := o.hookOrder[o.hookIndex]; expected != ht {
		panic(fmt.Sprintf("[VANGO E002] Hook order changed at index %d: expected %s, got %s",
			o.hookIndex, expected, ht))
	}
	o.hookIndex++
}

// UseHookSlot returns the value stored in the current hook slot, or nil on
// the first render, in which case the caller creates the value and stores it
// with SetHookSlot.
//
//	slot := owner.UseHookSlot()
//	if slot != nil {
//	    return slot.(*handle)
//	}
//	h := &handle{}
//	owner.SetHookSlot(h)
//	return h
func (o *Owner) UseHookSlot() any {
	idx := o.hookSlotIdx
	o.hookSlotIdx++

	if idx < len(o.hookSlots) {
		return o.hookSlots[idx]
	}
	return nil
}

// SetHookSlot stores value in the slot most recently returned by UseHookSlot.
// Called after UseHookSlot returned nil it appends; otherwise it replaces.
func (o *Owner) SetHookSlot(value any) {
	idx := o.hookSlotIdx - 1
	if idx >= 0 && idx < len(o.hookSlots) {
		o.hookSlots[idx] = value
		return
	}
	o.hookSlots = append(o.hookSlots, value)
}

// TrackHook records a hook call on the current owner, if any.
func TrackHook(ht HookType) {
	if owner := getCurrentOwner(); owner != nil {
		owner.TrackHook(ht)
	}
}

// AfterRender queues fn on the current owner. Outside a render, fn runs
// immediately.
func AfterRender(fn func()) {
	if owner := getCurrentOwner(); owner != nil {
		owner.AfterRender(fn)
		return
	}
	fn()
}
