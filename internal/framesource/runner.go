package framesource

import (
	"context"
	"sync"

	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/logger"
)

// Submitter is the pipeline side of a Runner.
type Submitter interface {
	Submit(ctx context.Context, frame *imaging.Frame) bool
	SwapSource() uint64
}

// Runner pumps frames from the current source into a Submitter. Replacing
// the source closes the old one and bumps the pipeline generation, which is
// the only way in-flight work is canceled.
type Runner struct {
	sub    Submitter
	onSwap []func()

	mu      sync.Mutex
	current Source
	done    chan struct{}
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithOnSwap registers fn to run each time the source is replaced, after the
// old source stopped and before the new one starts. Trackers use it to drop
// targets and histories that belong to the old stream.
func WithOnSwap(fn func()) RunnerOption {
	return func(r *Runner) {
		if fn != nil {
			r.onSwap = append(r.onSwap, fn)
		}
	}
}

// NewRunner creates a runner without a source.
func NewRunner(sub Submitter, opts ...RunnerOption) *Runner {
	r := &Runner{sub: sub}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetSource stops the current source, if any, and starts src.
func (r *Runner) SetSource(ctx context.Context, src Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		if err := r.stopLocked(); err != nil {
			logger.G(ctx).WithError(err).Warn("closing previous frame source")
		}
		r.sub.SwapSource()
		for _, fn := range r.onSwap {
			fn()
		}
	}
	if err := src.Start(ctx); err != nil {
		return err
	}
	r.current = src
	r.done = make(chan struct{})
	go r.pump(ctx, src, r.done)

	logger.G(ctx).WithField("source", src.Name()).WithField("mode", src.Mode().String()).Debug("frame source started")
	return nil
}

func (r *Runner) pump(ctx context.Context, src Source, done chan struct{}) {
	defer close(done)
	for f := range src.Frames() {
		r.sub.Submit(ctx, f)
	}
}

// Done is closed when the current source runs out of frames.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return r.done
}

// Close stops the current source.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	return r.stopLocked()
}

func (r *Runner) stopLocked() error {
	err := r.current.Close()
	<-r.done
	r.current = nil
	return err
}
