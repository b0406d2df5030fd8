package framesource

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/logger"
)

// FileOptions configures a FileSource.
type FileOptions struct {
	// Interval paces frames; zero sends them as fast as they are consumed.
	Interval time.Duration
	// Loop restarts from the first file after the last.
	Loop bool
	Mode SharingMode
}

// FileSource reads the image files matching a doublestar pattern, in
// sorted path order.
type FileSource struct {
	pattern string
	files   []string
	opts    FileOptions
	lock    *lockFile

	frames chan *imaging.Frame
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewFileSource resolves pattern and, in exclusive mode, locks the
// pattern's base directory.
func NewFileSource(pattern string, opts FileOptions) (*FileSource, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	files := matches[:0]
	for _, m := range matches {
		if imaging.IsImageFile(m) {
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image files match %q", pattern)
	}
	sort.Strings(files)

	s := &FileSource{pattern: pattern, files: files, opts: opts, frames: make(chan *imaging.Frame)}
	if opts.Mode == Exclusive {
		base, _ := doublestar.SplitPattern(pattern)
		if s.lock, err = acquireLock(base); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// FileOpener returns an Opener for pattern.
func FileOpener(pattern string, opts FileOptions) Opener {
	return func(_ context.Context, mode SharingMode) (Source, error) {
		opts.Mode = mode
		return NewFileSource(pattern, opts)
	}
}

// Name returns the glob pattern.
func (s *FileSource) Name() string { return s.pattern }

// Mode returns the sharing mode the source was opened in.
func (s *FileSource) Mode() SharingMode { return s.opts.Mode }

// Files returns the matched files.
func (s *FileSource) Files() []string { return s.files }

// Frames implements Source.
func (s *FileSource) Frames() <-chan *imaging.Frame { return s.frames }

// Start implements Source.
func (s *FileSource) Start(ctx context.Context) error {
	if s.done != nil {
		return fmt.Errorf("source %s already started", s.pattern)
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.produce(ctx)
	return nil
}

func (s *FileSource) produce(ctx context.Context) {
	defer close(s.done)
	defer close(s.frames)

	var tick <-chan time.Time
	if s.opts.Interval > 0 {
		t := time.NewTicker(s.opts.Interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		for _, path := range s.files {
			f, err := imaging.DecodeFile(path)
			if err != nil {
				logger.G(ctx).WithError(err).WithField("file", path).Warn("skipping undecodable frame")
				continue
			}
			if tick != nil {
				select {
				case <-tick:
				case <-ctx.Done():
					return
				}
			}
			select {
			case s.frames <- f:
			case <-ctx.Done():
				return
			}
		}
		if !s.opts.Loop {
			return
		}
	}
}

// Close stops the source and releases its lock.
func (s *FileSource) Close() error {
	var err error
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}
		err = s.lock.release()
	})
	return err
}
