package vango

import (
	"testing"
)

func TestOwnerHierarchy(t *testing.T) {
	root := NewOwner(nil)
	child := NewOwner(root)
	grandchild := NewOwner(child)

	if root.Parent() != nil {
		t.Error("root owner should have nil parent")
	}
	if child.Parent() != root || grandchild.Parent() != child {
		t.Error("parent links are wrong")
	}
	if root.ID() == child.ID() {
		t.Error("owners should have distinct IDs")
	}
}

func TestOwnerDisposeOrder(t *testing.T) {
	root := NewOwner(nil)
	child := NewOwner(root)

	var order []string
	root.OnCleanup(func() { order = append(order, "root-1") })
	root.OnCleanup(func() { order = append(order, "root-2") })
	child.OnCleanup(func() { order = append(order, "child") })

	root.Dispose()

	want := []string{"child", "root-2", "root-1"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("cleanup %d: expected %s, got %s", i, want[i], order[i])
		}
	}
	if !child.IsDisposed() {
		t.Error("child should be disposed with its parent")
	}

	// Dispose is idempotent.
	root.Dispose()
	if len(order) != 3 {
		t.Errorf("second Dispose should not rerun cleanups, got %v", order)
	}
}

func TestOwnerCleanupAfterDisposeRunsImmediately(t *testing.T) {
	o := NewOwner(nil)
	o.Dispose()

	ran := false
	o.OnCleanup(func() { ran = true })
	if !ran {
		t.Error("cleanup on disposed owner should run immediately")
	}
}

func TestOwnerHookSlots(t *testing.T) {
	o := NewOwner(nil)

	o.StartRender()
	if o.UseHookSlot() != nil {
		t.Fatal("first render should return nil slot")
	}
	o.SetHookSlot("a")
	if o.UseHookSlot() != nil {
		t.Fatal("first render should return nil slot")
	}
	o.SetHookSlot("b")
	o.EndRender()

	o.StartRender()
	if got := o.UseHookSlot(); got != "a" {
		t.Errorf("slot 0: expected a, got %v", got)
	}
	if got := o.UseHookSlot(); got != "b" {
		t.Errorf("slot 1: expected b, got %v", got)
	}
	o.SetHookSlot("c")
	o.EndRender()

	o.StartRender()
	o.UseHookSlot()
	if got := o.UseHookSlot(); got != "c" {
		t.Errorf("replaced slot: expected c, got %v", got)
	}
	o.EndRender()
}

func TestOwnerAfterRender(t *testing.T) {
	root := NewOwner(nil)
	child := NewOwner(root)

	var order []string
	root.AfterRender(func() { order = append(order, "root") })
	child.AfterRender(func() {
		order = append(order, "child")
		child.AfterRender(func() { order = append(order, "requeued") })
	})

	if !root.HasAfterRender() {
		t.Fatal("expected queued work")
	}
	root.RunAfterRender()
	if len(order) != 2 || order[0] != "root" || order[1] != "child" {
		t.Fatalf("unexpected order %v", order)
	}

	// Work queued while running waits for the next call.
	if !root.HasAfterRender() {
		t.Fatal("expected requeued work")
	}
	root.RunAfterRender()
	if len(order) != 3 || order[2] != "requeued" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestAfterRenderOutsideOwnerRunsImmediately(t *testing.T) {
	ran := false
	AfterRender(func() { ran = true })
	if !ran {
		t.Error("AfterRender without an owner should run immediately")
	}
}

func TestTrackHookDetectsOrderChange(t *testing.T) {
	DebugMode = true
	defer func() { DebugMode = false }()

	o := NewOwner(nil)
	o.StartRender()
	o.TrackHook(HookStore)
	o.TrackHook(HookContext)
	o.EndRender()

	defer func() {
		if recover() == nil {
			t.Error("expected panic on hook order change")
		}
	}()
	o.StartRender()
	o.TrackHook(HookContext)
}
