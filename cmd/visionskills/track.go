package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/born-ml/vision/internal/device"
	"github.com/born-ml/vision/internal/framesource"
	"github.com/born-ml/vision/internal/logger"
	"github.com/born-ml/vision/internal/pipeline"
	"github.com/born-ml/vision/internal/skills"
	"github.com/born-ml/vision/internal/skills/objecttracker"
)

type trackOptions struct {
	seeds    []string
	interval time.Duration
	loop     bool
	watch    bool
}

type trackUpdate struct {
	Frame     int         `json:"frame"`
	Timestamp time.Time   `json:"timestamp"`
	Rects     [][]float32 `json:"rects,omitempty"`
	Succeeded []bool      `json:"succeeded,omitempty"`
	Error     string      `json:"error,omitempty"`
}

func newTrackCmd(a *app) *cobra.Command {
	var opts trackOptions
	cmd := &cobra.Command{
		Use:   "track --seed x,y,w,h <glob|dir>",
		Short: "Track seeded targets across a frame stream",
		Long: `Track targets across frames read from a doublestar glob (in name order)
or, with --watch, from images written into a directory. Each --seed is a
pixel rectangle in the first frame. One JSON line is printed per processed
frame; frames arriving while the previous one is still being tracked are
dropped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return a.track(ctx, args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&opts.seeds, "seed", nil, "target rectangle x,y,w,h in pixels (repeatable)")
	f.DurationVar(&opts.interval, "interval", 33*time.Millisecond, "delay between frames read from a glob")
	f.BoolVar(&opts.loop, "loop", false, "restart the glob from the first frame when it ends")
	f.BoolVar(&opts.watch, "watch", false, "treat the argument as a directory to watch for new images")
	return cmd
}

func parseSeed(s string) (image.Rectangle, error) {
	v, err := parseFloats(s, 4)
	if err != nil {
		return image.Rectangle{}, errors.Wrap(err, "--seed")
	}
	x, y := int(math.Round(v[0])), int(math.Round(v[1]))
	w, h := int(math.Round(v[2])), int(math.Round(v[3]))
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, errors.Errorf("--seed %q: width and height must be positive", s)
	}
	return image.Rect(x, y, x+w, y+h), nil
}

// seedingTracker adds the seed targets on the first frame it evaluates.
type seedingTracker struct {
	*objecttracker.Skill
	seeds []image.Rectangle

	once sync.Once
	err  error
}

func (t *seedingTracker) Evaluate(ctx context.Context, b *objecttracker.Binding) error {
	t.once.Do(func() {
		var n int
		n, t.err = t.AddTargets(ctx, b.Image(objecttracker.InputImage), t.seeds)
		if t.err == nil && n < len(t.seeds) {
			logger.G(ctx).WithField("seeds", len(t.seeds)).WithField("tracking", n).Warn("tracker limit reached, extra seeds dropped")
		}
	})
	if t.err != nil {
		return errors.Wrap(t.err, "seed trackers")
	}
	return t.Skill.Evaluate(ctx, b)
}

func (a *app) newTrackProcessor(eval pipeline.Evaluator[*objecttracker.Binding], render pipeline.RenderFunc[*objecttracker.Binding]) *pipeline.Processor[*objecttracker.Binding] {
	return pipeline.New(eval, render, pipeline.WithMaxInFlight(a.cfg.Pipeline.MaxInFlight))
}

func (a *app) track(ctx context.Context, target string, opts trackOptions) error {
	if len(opts.seeds) == 0 {
		return errors.New("at least one --seed is required")
	}
	seeds := make([]image.Rectangle, 0, len(opts.seeds))
	for _, s := range opts.seeds {
		r, err := parseSeed(s)
		if err != nil {
			return err
		}
		seeds = append(seeds, r)
	}

	// The tracker runs on the CPU whatever --device selects.
	tracker, err := skills.NewTracker(skills.Options{Config: a.cfg, Device: device.CPU()})
	if err != nil {
		return err
	}
	defer tracker.Close()
	eval := &seedingTracker{Skill: tracker, seeds: seeds}

	enc := json.NewEncoder(a.out.out)
	var renderMu sync.Mutex
	frames := 0
	render := func(r pipeline.Result[*objecttracker.Binding]) {
		renderMu.Lock()
		defer renderMu.Unlock()
		frames++
		u := trackUpdate{Frame: frames}
		if r.Frame != nil {
			u.Timestamp = r.Frame.Timestamp
		}
		if r.Err != nil {
			u.Error = r.Err.Error()
		} else {
			for _, rect := range r.Binding.Rects() {
				u.Rects = append(u.Rects, rect.Slice())
			}
			u.Succeeded = r.Binding.Succeeded()
		}
		if err := enc.Encode(u); err != nil {
			logger.G(ctx).WithError(err).Warn("write tracking result")
		}
	}
	proc := a.newTrackProcessor(eval, render)

	var opener framesource.Opener
	if opts.watch {
		opener = framesource.WatchOpener(target)
	} else {
		opener = framesource.FileOpener(target, framesource.FileOptions{Interval: opts.interval, Loop: opts.loop})
	}
	src, err := framesource.Open(ctx, opener)
	if err != nil {
		return errors.Wrapf(err, "open %s", target)
	}

	// Targets and histories belong to one stream.
	runner := framesource.NewRunner(proc, framesource.WithOnSwap(tracker.Reset))
	if err := runner.SetSource(ctx, src); err != nil {
		src.Close()
		return errors.Wrapf(err, "start %s", target)
	}
	select {
	case <-runner.Done():
	case <-ctx.Done():
	}
	if err := runner.Close(); err != nil {
		logger.G(ctx).WithError(err).Warn("close frame source")
	}
	proc.Wait()

	st := proc.Stats()
	a.out.Success(fmt.Sprintf("tracked %d frames (%d dropped, %d failed) from %s in %s mode",
		st.Processed, st.Dropped, st.Failed, src.Name(), src.Mode()))
	return nil
}
