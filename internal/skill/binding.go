package skill

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/born-ml/vision/internal/imaging"
)

// Binding is the named-feature store of one skill instance. Names must match
// the descriptor and values its declared kind and shape. Inputs are set by
// the caller; outputs are written only by Commit, all at once.
//
// A Binding is not safe for concurrent use; the pipeline's admission gate
// keeps it single-writer.
type Binding struct {
	desc   *Descriptor
	owner  any
	values map[string]FeatureValue
}

// NewBinding creates an empty binding for desc owned by owner, normally the
// skill instance that will evaluate it.
func NewBinding(desc *Descriptor, owner any) *Binding {
	return &Binding{
		desc:   desc,
		owner:  owner,
		values: make(map[string]FeatureValue),
	}
}

// Descriptor returns the schema the binding follows.
func (b *Binding) Descriptor() *Descriptor {
	return b.desc
}

// Owner returns the skill instance the binding belongs to.
func (b *Binding) Owner() any {
	return b.owner
}

func checkValue(fd FeatureDescriptor, v FeatureValue) error {
	if !v.IsSet() {
		return fmt.Errorf("%w: %s: empty value", ErrInvalidArgument, fd.Name)
	}
	if v.Kind() != fd.Kind {
		return fmt.Errorf("%w: %s is %s, got %s", ErrFeatureKind, fd.Name, fd.Kind, v.Kind())
	}
	if fd.Kind != KindImage && !ShapeCompatible(fd.Shape, v.Shape()) {
		return fmt.Errorf("%w: %s declared %v, got %v", ErrFeatureShape, fd.Name, fd.Shape, v.Shape())
	}
	return nil
}

// Set stores an input feature value.
func (b *Binding) Set(name string, v FeatureValue) error {
	fd, ok := b.desc.Input(name)
	if !ok {
		if _, isOutput := b.desc.Output(name); isOutput {
			return fmt.Errorf("%w: %s is an output feature", ErrInvalidArgument, name)
		}
		return fmt.Errorf("%w: %q", ErrUnknownFeature, name)
	}
	if err := checkValue(fd, v); err != nil {
		return err
	}
	b.values[name] = v
	return nil
}

// SetImage is Set with an ImageValue.
func (b *Binding) SetImage(name string, f *imaging.Frame) error {
	v, err := ImageValue(f)
	if err != nil {
		return err
	}
	return b.Set(name, v)
}

// Get returns the value of a feature.
func (b *Binding) Get(name string) (FeatureValue, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Image returns the frame stored in an image feature, or nil.
func (b *Binding) Image(name string) *imaging.Frame {
	return b.values[name].Frame()
}

// Floats returns the data of a float feature, or nil.
func (b *Binding) Floats(name string) []float32 {
	return b.values[name].Floats()
}

// Ints returns the data of an int feature, or nil.
func (b *Binding) Ints(name string) []int64 {
	return b.values[name].Ints()
}

// Bools returns the data of a bool feature, or nil.
func (b *Binding) Bools(name string) []bool {
	return b.values[name].Bools()
}

// Strings returns the data of a string feature, or nil.
func (b *Binding) Strings(name string) []string {
	return b.values[name].Strings()
}

// Names returns the set feature names, inputs then outputs, in descriptor order.
func (b *Binding) Names() []string {
	names := make([]string, 0, len(b.values))
	for _, fds := range [][]FeatureDescriptor{b.desc.Inputs, b.desc.Outputs} {
		for _, fd := range fds {
			if _, ok := b.values[fd.Name]; ok {
				names = append(names, fd.Name)
			}
		}
	}
	return names
}

// Len returns the number of set features.
func (b *Binding) Len() int {
	return len(b.values)
}

// Validate reports every required input that is not set.
func (b *Binding) Validate() error {
	var result *multierror.Error
	for _, fd := range b.desc.Inputs {
		if _, ok := b.values[fd.Name]; !ok && fd.Required {
			result = multierror.Append(result, fmt.Errorf("%w: %s", ErrMissingFeature, fd.Name))
		}
	}
	return result.ErrorOrNil()
}

// Commit writes every declared output at once. It fails without writing
// anything when an output is missing, unknown or does not match its descriptor.
func (b *Binding) Commit(outputs map[string]FeatureValue) error {
	var result *multierror.Error
	for name := range outputs {
		if _, ok := b.desc.Output(name); !ok {
			result = multierror.Append(result, fmt.Errorf("%w: output %q", ErrUnknownFeature, name))
		}
	}
	for _, fd := range b.desc.Outputs {
		v, ok := outputs[fd.Name]
		if !ok {
			result = multierror.Append(result, fmt.Errorf("%w: output %s", ErrMissingFeature, fd.Name))
			continue
		}
		if err := checkValue(fd, v); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}

	for name, v := range outputs {
		b.values[name] = v
	}
	return nil
}

// CommitZero commits the zero value of every tensor output, with any
// entries of overrides taking precedence.
func (b *Binding) CommitZero(overrides map[string]FeatureValue) error {
	outputs := make(map[string]FeatureValue, len(b.desc.Outputs))
	for _, fd := range b.desc.Outputs {
		if v, ok := overrides[fd.Name]; ok {
			outputs[fd.Name] = v
			continue
		}
		z, err := ZeroValue(fd)
		if err != nil {
			return err
		}
		outputs[fd.Name] = z
	}
	return b.Commit(outputs)
}

// Reset clears every feature value.
func (b *Binding) Reset() {
	clear(b.values)
}

// ResetOutputs clears output values, keeping inputs.
func (b *Binding) ResetOutputs() {
	for _, fd := range b.desc.Outputs {
		delete(b.values, fd.Name)
	}
}
