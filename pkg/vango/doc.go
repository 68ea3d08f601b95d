// Package vango provides the reactive runtime that slice hooks run on.
//
// Reading a Signal while a component renders subscribes that component to the
// signal. Writing the signal marks the component dirty, and the Scheduler
// re-renders dirty components on its next Flush.
//
// # Core Types
//
// Signal[T] is a reactive value container:
//
//	count := NewSignal(0)
//	value := count.Get()  // Read (subscribes current listener)
//	count.Set(5)          // Write (notifies subscribers)
//	count.Update(func(n int) int { return n + 1 })
//
// Owner is a component scope. It stores context values, hook slots and
// work queued with AfterRender, and it is disposed with its component.
//
// Scheduler mounts a Component tree and re-renders dirty instances:
//
//	sched := NewScheduler()
//	root, err := sched.Mount(func() {
//	    label = fmt.Sprint(count.Get())
//	})
//	count.Set(1)
//	err = sched.Flush() // root renders again
//
// # Batching
//
// Multiple signal updates can be batched to trigger a single notification:
//
//	Batch(func() {
//	    a.Set(1)
//	    b.Set(2)
//	})
//
// # Thread Safety
//
// Signals and owners are safe for concurrent use. The tracking context is
// per-goroutine, so goroutines that create hooks or signals for a component
// must establish it explicitly with WithOwner.
package vango
