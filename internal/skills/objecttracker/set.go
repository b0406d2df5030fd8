package objecttracker

import (
	"context"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"

	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/logger"
)

// SetConfig caps the tracker set.
type SetConfig struct {
	MaxTrackers        int
	MaxHistory         int
	ReinitializePeriod int // 0 disables periodic re-initialization
}

// DefaultSetConfig returns five trackers with twenty results of history each.
func DefaultSetConfig() SetConfig {
	return SetConfig{MaxTrackers: 5, MaxHistory: 20}
}

// Validate rejects non-positive caps.
func (c SetConfig) Validate() error {
	if c.MaxTrackers <= 0 || c.MaxHistory <= 0 || c.ReinitializePeriod < 0 {
		return fmt.Errorf("invalid tracker set config %+v", c)
	}
	return nil
}

type target struct {
	tracker Tracker
	history *History
	frames  int
}

// TrackerSet updates a capped set of trackers frame by frame and keeps a
// bounded history per tracker.
type TrackerSet struct {
	cfg     SetConfig
	factory func() Tracker
	targets []*target
}

// NewTrackerSet creates an empty set building trackers with factory.
func NewTrackerSet(cfg SetConfig, factory func() Tracker) (*TrackerSet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("nil tracker factory")
	}
	return &TrackerSet{cfg: cfg, factory: factory}, nil
}

// AddTargets starts a tracker for each seed rectangle until MaxTrackers are
// active. Seeds beyond the cap are dropped in input order. It returns the
// number of trackers started.
func (s *TrackerSet) AddTargets(ctx context.Context, frame *imaging.Frame, rects []image.Rectangle) (int, error) {
	added := 0
	for _, r := range rects {
		if len(s.targets) >= s.cfg.MaxTrackers {
			logger.G(ctx).WithFields(logrus.Fields{
				"dropped": len(rects) - added,
				"max":     s.cfg.MaxTrackers,
			}).Debug("tracker cap reached")
			break
		}
		tr := s.factory()
		if err := tr.Init(frame, r); err != nil {
			return added, fmt.Errorf("init tracker at %v: %w", r, err)
		}
		h := NewHistory(s.cfg.MaxHistory)
		h.Push(Result{Rect: r, Succeeded: true})
		s.targets = append(s.targets, &target{tracker: tr, history: h})
		added++
	}
	return added, nil
}

// Update advances every tracker to frame and returns their results in
// creation order. Histories and re-initialization only change once every
// tracker has produced a result.
func (s *TrackerSet) Update(ctx context.Context, frame *imaging.Frame) ([]Result, error) {
	results := make([]Result, len(s.targets))
	for i, t := range s.targets {
		res, err := t.tracker.Update(ctx, frame)
		if err != nil {
			return nil, fmt.Errorf("update tracker %d: %w", i, err)
		}
		results[i] = res
	}

	for i, t := range s.targets {
		res := results[i]
		t.history.Push(res)
		t.frames++

		if p := s.cfg.ReinitializePeriod; p > 0 && t.frames%p == 0 && res.Succeeded {
			if err := t.tracker.Init(frame, res.Rect); err != nil {
				logger.G(ctx).WithError(err).WithField("tracker", i).Warn("tracker re-initialization failed")
			}
		}
	}
	return results, nil
}

// Reset removes every tracker.
func (s *TrackerSet) Reset() {
	s.targets = nil
}

// Len returns the number of active trackers.
func (s *TrackerSet) Len() int { return len(s.targets) }

// Histories returns each tracker's history, oldest first.
func (s *TrackerSet) Histories() [][]Result {
	out := make([][]Result, len(s.targets))
	for i, t := range s.targets {
		out[i] = t.history.Results()
	}
	return out
}
