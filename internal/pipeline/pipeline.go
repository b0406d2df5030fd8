// Package pipeline feeds frames to a skill through an admission gate. At
// most MaxInFlight frames are evaluated at once; a frame arriving while the
// gate is full is dropped, never queued.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/logger"
	"github.com/born-ml/vision/internal/skill"
)

// Evaluator is the part of a skill the pipeline drives.
type Evaluator[B skill.ImageInput] interface {
	CreateBinding() (B, error)
	Evaluate(ctx context.Context, b B) error
}

// Result is handed to the render callback after each admitted frame.
type Result[B any] struct {
	Frame      *imaging.Frame
	Binding    B
	Err        error
	Generation uint64
}

// RenderFunc receives results. The binding is only valid for the duration
// of the call; the next admitted frame reuses it.
type RenderFunc[B any] func(Result[B])

// Stats counts frames by outcome.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Processed uint64 `json:"processed"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
	Discarded uint64 `json:"discarded"`
}

// Option configures a Processor.
type Option func(*options)

type options struct {
	maxInFlight int
	tracer      trace.Tracer
}

// WithMaxInFlight sets the admission gate size. The default is 1.
func WithMaxInFlight(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxInFlight = n
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

type slot[B any] struct {
	binding       B
	width, height int
	ready         bool
}

// Processor evaluates submitted frames with one skill.
type Processor[B skill.ImageInput] struct {
	eval   Evaluator[B]
	render RenderFunc[B]
	tracer trace.Tracer

	sem        *semaphore.Weighted
	generation atomic.Uint64
	wg         sync.WaitGroup

	mu    sync.Mutex
	slots []*slot[B]

	submitted, processed, dropped, failed, discarded atomic.Uint64
}

// New creates a processor. render may be nil.
func New[B skill.ImageInput](eval Evaluator[B], render RenderFunc[B], opts ...Option) *Processor[B] {
	o := options{maxInFlight: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		o.tracer = otel.GetTracerProvider().Tracer("github.com/born-ml/vision/internal/pipeline")
	}

	p := &Processor[B]{
		eval:   eval,
		render: render,
		tracer: o.tracer,
		sem:    semaphore.NewWeighted(int64(o.maxInFlight)),
	}
	for range o.maxInFlight {
		p.slots = append(p.slots, &slot[B]{})
	}
	return p
}

// MaxInFlight returns the admission gate size.
func (p *Processor[B]) MaxInFlight() int { return len(p.slots) }

// Submit admits frame if the gate has room and evaluates it in the
// background. It never blocks; it returns false when the frame is dropped.
func (p *Processor[B]) Submit(ctx context.Context, frame *imaging.Frame) bool {
	p.submitted.Add(1)
	if !p.sem.TryAcquire(1) {
		p.dropped.Add(1)
		logger.G(ctx).Debug("frame dropped, evaluation in flight")
		return false
	}

	gen := p.generation.Load()
	s := p.takeSlot()
	p.wg.Add(1)
	go p.run(context.WithoutCancel(ctx), frame, gen, s)
	return true
}

// SwapSource marks every in-flight result as stale and returns the new
// generation. Call it when the frame source changes.
func (p *Processor[B]) SwapSource() uint64 {
	return p.generation.Add(1)
}

// Generation returns the current source generation.
func (p *Processor[B]) Generation() uint64 {
	return p.generation.Load()
}

// Wait blocks until every admitted frame is handed off or discarded.
func (p *Processor[B]) Wait() {
	p.wg.Wait()
}

// Stats returns a snapshot of the frame counters.
func (p *Processor[B]) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Processed: p.processed.Load(),
		Dropped:   p.dropped.Load(),
		Failed:    p.failed.Load(),
		Discarded: p.discarded.Load(),
	}
}

func (p *Processor[B]) run(ctx context.Context, frame *imaging.Frame, gen uint64, s *slot[B]) {
	defer p.wg.Done()
	defer p.sem.Release(1)
	defer p.putSlot(s)

	ctx, span := p.tracer.Start(ctx, "pipeline.evaluate", trace.WithAttributes(
		attribute.Int64("pipeline.generation", int64(gen)), //nolint:gosec // generation counts swaps
	))
	defer span.End()

	err := p.evaluate(ctx, s, frame)
	log := logger.G(ctx).WithField("generation", gen)
	if err != nil {
		p.failed.Add(1)
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		log.WithError(err).Warn("frame evaluation failed")
	} else {
		p.processed.Add(1)
		span.SetStatus(codes.Ok, "")
	}

	if current := p.generation.Load(); current != gen {
		p.discarded.Add(1)
		log.WithFields(logrus.Fields{"current": current, "reason": skill.ErrCanceled}).Debug("result discarded")
		return
	}
	if p.render != nil {
		p.render(Result[B]{Frame: frame, Binding: s.binding, Err: err, Generation: gen})
	}
}

// evaluate binds frame into the slot's binding, recreating the binding when
// the frame size changes, and runs the skill.
func (p *Processor[B]) evaluate(ctx context.Context, s *slot[B], frame *imaging.Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	if !s.ready || s.width != frame.Width || s.height != frame.Height {
		b, err := p.eval.CreateBinding()
		if err != nil {
			return err
		}
		s.binding, s.width, s.height, s.ready = b, frame.Width, frame.Height, true
		trace.SpanFromContext(ctx).AddEvent("binding created", trace.WithAttributes(
			attribute.Int("frame.width", frame.Width),
			attribute.Int("frame.height", frame.Height),
		))
	}
	if err := s.binding.SetInputImage(frame); err != nil {
		return err
	}
	return p.eval.Evaluate(ctx, s.binding)
}

func (p *Processor[B]) takeSlot() *slot[B] {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.slots[len(p.slots)-1]
	p.slots = p.slots[:len(p.slots)-1]
	return s
}

func (p *Processor[B]) putSlot(s *slot[B]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots = append(p.slots, s)
}
