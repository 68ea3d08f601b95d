package vango

import (
	"errors"
	"fmt"
)

// ErrRenderLoop is returned by Scheduler.Flush when renders keep scheduling
// further renders beyond the configured pass limit.
var ErrRenderLoop = errors.New("vango: render did not settle")

// RenderError is a panic recovered while rendering a component.
type RenderError struct {
	// InstanceID identifies the component instance that failed.
	InstanceID uint64

	// Value is the recovered panic value.
	Value any
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	return fmt.Sprintf("vango: component %d render failed: %v", e.InstanceID, e.Value)
}

// Unwrap returns the panic value when it is an error, so errors.Is and
// errors.As see hook failures through a RenderError.
func (e *RenderError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
