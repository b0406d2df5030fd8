package framesource

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/logger"
)

// WatchSource emits a frame whenever an image file in a directory is
// created or written. Frames arriving while the consumer is busy are
// dropped.
type WatchSource struct {
	dir     string
	mode    SharingMode
	lock    *lockFile
	watcher *fsnotify.Watcher

	frames chan *imaging.Frame
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewWatchSource watches dir, locking it in exclusive mode.
func NewWatchSource(dir string, mode SharingMode) (*WatchSource, error) {
	s := &WatchSource{dir: dir, mode: mode, frames: make(chan *imaging.Frame, 1)}
	if mode == Exclusive {
		lock, err := acquireLock(dir)
		if err != nil {
			return nil, err
		}
		s.lock = lock
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		_ = s.lock.release()
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		_ = s.lock.release()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	s.watcher = w
	return s, nil
}

// WatchOpener returns an Opener for dir.
func WatchOpener(dir string) Opener {
	return func(_ context.Context, mode SharingMode) (Source, error) {
		return NewWatchSource(dir, mode)
	}
}

// Name returns the watched directory.
func (s *WatchSource) Name() string { return s.dir }

// Mode returns the sharing mode the source was opened in.
func (s *WatchSource) Mode() SharingMode { return s.mode }

// Frames implements Source.
func (s *WatchSource) Frames() <-chan *imaging.Frame { return s.frames }

// Start implements Source.
func (s *WatchSource) Start(ctx context.Context) error {
	if s.done != nil {
		return fmt.Errorf("source %s already started", s.dir)
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.watch(ctx)
	return nil
}

func (s *WatchSource) watch(ctx context.Context) {
	defer close(s.done)
	defer close(s.frames)
	log := logger.G(ctx).WithField("dir", s.dir)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !imaging.IsImageFile(event.Name) {
				continue
			}
			f, err := imaging.DecodeFile(event.Name)
			if err != nil {
				// Writes often arrive before the file is complete.
				log.WithError(err).WithField("file", event.Name).Debug("frame not decodable yet")
				continue
			}
			select {
			case s.frames <- f:
			default:
				log.WithField("file", event.Name).Debug("consumer busy, frame dropped")
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("file watcher error")
		}
	}
}

// Close stops watching and releases the lock.
func (s *WatchSource) Close() error {
	var err error
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}
		err = s.watcher.Close()
		if lerr := s.lock.release(); err == nil {
			err = lerr
		}
	})
	return err
}
