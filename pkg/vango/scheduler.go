package vango

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// DefaultMaxPasses bounds the number of render passes one Flush may run.
const DefaultMaxPasses = 100

// Scheduler owns a component tree and re-renders dirty instances.
// Renders happen only inside Mount and Flush, on the calling goroutine, so a
// write made through a mutator is observed on the next pass.
type Scheduler struct {
	mu    sync.Mutex
	queue []*Instance
	errs  []error

	root      *Instance
	ctx       Ctx
	maxPasses int
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithContext sets the context returned by UseCtx during renders.
func WithContext(ctx context.Context) SchedulerOption {
	return func(s *Scheduler) {
		s.ctx = NewCtx(ctx)
	}
}

// WithMaxPasses sets the render pass limit for Flush.
// Default: DefaultMaxPasses.
func WithMaxPasses(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxPasses = n
		}
	}
}

// NewScheduler creates a scheduler with no mounted tree.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		ctx:       NewCtx(context.Background()),
		maxPasses: DefaultMaxPasses,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mount renders c as the root component, replacing any previous root, and
// flushes until the tree settles. Render failures are returned joined.
func (s *Scheduler) Mount(c Component) (*Instance, error) {
	s.Unmount()

	inst := newInstance(c, nil, s)
	s.mu.Lock()
	s.root = inst
	s.mu.Unlock()

	s.report(inst.Render())
	return inst, s.Flush()
}

// Root returns the mounted root instance, or nil.
func (s *Scheduler) Root() *Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// Unmount disposes the root instance.
func (s *Scheduler) Unmount() {
	s.mu.Lock()
	root := s.root
	s.root = nil
	s.queue = nil
	s.mu.Unlock()

	if root != nil {
		root.Dispose()
	}
}

// Pending reports whether a Flush would do any work.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	queued := len(s.queue) > 0
	root := s.root
	s.mu.Unlock()

	return queued || (root != nil && root.Owner.HasAfterRender())
}

// Flush runs after-render work and re-renders dirty instances, shallowest
// first, until nothing is left to do. After-render work sees the scheduler's
// context through UseCtx.
func (s *Scheduler) Flush() error {
	for pass := 0; ; pass++ {
		if pass >= s.maxPasses {
			s.report(ErrRenderLoop)
			break
		}

		if root := s.Root(); root != nil {
			WithCtx(s.ctx, root.Owner.RunAfterRender)
		}

		batch := s.drain()
		if len(batch) == 0 {
			break
		}
		for _, inst := range batch {
			if inst.IsDirty() {
				s.report(inst.Render())
			}
		}
	}

	s.mu.Lock()
	errs := s.errs
	s.errs = nil
	s.mu.Unlock()
	return errors.Join(errs...)
}

func (s *Scheduler) schedule(inst *Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, inst)
}

func (s *Scheduler) drain() []*Instance {
	s.mu.Lock()
	batch := s.queue
	s.queue = nil
	s.mu.Unlock()

	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].depth < batch[j].depth
	})
	return batch
}

func (s *Scheduler) report(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}
