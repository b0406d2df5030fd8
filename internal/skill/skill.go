// Package skill defines the vision-skill abstraction: a Descriptor with the
// feature schema, a Binding holding named feature values, and a Skill that
// evaluates a binding on an execution device.
//
// Each skill family pairs with its own binding type through Skill[B], so a
// binding of the wrong family is a compile error rather than a runtime check.
// A binding from another instance of the same family is still rejected at
// Evaluate with ErrInvalidArgument.
package skill

import (
	"context"
	"fmt"

	"github.com/born-ml/vision/internal/device"
	"github.com/born-ml/vision/internal/imaging"
)

// Skill evaluates bindings of type B.
type Skill[B any] interface {
	Descriptor() *Descriptor
	Device() device.ExecutionDevice
	CreateBinding() (B, error)
	Evaluate(ctx context.Context, b B) error
	Close() error
}

// Bound is implemented by typed bindings that wrap a *Binding.
type Bound interface {
	Base() *Binding
}

// ImageInput is implemented by bindings whose primary input is an image.
type ImageInput interface {
	Bound
	SetInputImage(f *imaging.Frame) error
}

// CheckBinding returns ErrInvalidArgument for a nil binding or one created
// by a different skill instance than owner.
func CheckBinding(owner any, b Bound) error {
	if b == nil {
		return fmt.Errorf("%w: nil binding", ErrInvalidArgument)
	}
	base := b.Base()
	if base == nil {
		return fmt.Errorf("%w: nil binding", ErrInvalidArgument)
	}
	if base.owner != owner {
		return fmt.Errorf("%w: binding belongs to another skill instance", ErrInvalidArgument)
	}
	return nil
}

// PrepareImage runs the common start of Evaluate for image skills: binding
// ownership, required inputs, and a validated CPU copy of the named image.
func PrepareImage(ctx context.Context, owner any, b Bound, input string) (*imaging.Frame, error) {
	if err := CheckBinding(owner, b); err != nil {
		return nil, err
	}
	base := b.Base()
	if err := base.Validate(); err != nil {
		return nil, err
	}
	frame := base.Image(input)
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	return frame.EnsureCPU(ctx)
}
