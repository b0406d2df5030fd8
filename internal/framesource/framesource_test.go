package framesource

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vision/internal/imaging"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{R: 200, A: 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

type fakeSource struct {
	mode   SharingMode
	frames chan *imaging.Frame
}

func (s *fakeSource) Name() string                  { return "fake" }
func (s *fakeSource) Mode() SharingMode             { return s.mode }
func (s *fakeSource) Start(context.Context) error   { return nil }
func (s *fakeSource) Frames() <-chan *imaging.Frame { return s.frames }
func (s *fakeSource) Close() error                  { return nil }

func TestOpenRetriesOnceShared(t *testing.T) {
	var modes []SharingMode
	src, err := Open(context.Background(), func(_ context.Context, m SharingMode) (Source, error) {
		modes = append(modes, m)
		if m == Exclusive {
			return nil, ErrSourceInUse
		}
		return &fakeSource{mode: m}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, Shared, src.Mode())
	assert.Equal(t, []SharingMode{Exclusive, Shared}, modes)
}

func TestOpenNeverRetriesTwice(t *testing.T) {
	attempts := 0
	_, err := Open(context.Background(), func(context.Context, SharingMode) (Source, error) {
		attempts++
		return nil, ErrSourceInUse
	})
	assert.ErrorIs(t, err, ErrSourceInUse)
	assert.Equal(t, 2, attempts)
}

func TestOpenDoesNotRetryOtherErrors(t *testing.T) {
	attempts := 0
	boom := errors.New("no such camera")
	_, err := Open(context.Background(), func(context.Context, SharingMode) (Source, error) {
		attempts++
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
}

func collect(t *testing.T, src Source) []*imaging.Frame {
	t.Helper()
	var out []*imaging.Frame
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-src.Frames():
			if !ok {
				return out
			}
			out = append(out, f)
		case <-timeout:
			t.Fatal("source did not finish")
		}
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), 3, 2)
	writePNG(t, filepath.Join(dir, "a.png"), 2, 2)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	writePNG(t, filepath.Join(dir, "sub", "c.png"), 4, 4)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	src, err := NewFileSource(filepath.Join(dir, "**", "*"), FileOptions{})
	require.NoError(t, err)
	assert.Equal(t, Exclusive, src.Mode())
	assert.FileExists(t, filepath.Join(dir, LockFileName))
	assert.Equal(t, []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "sub", "c.png"),
	}, src.Files())

	require.NoError(t, src.Start(context.Background()))
	frames := collect(t, src)
	require.Len(t, frames, 3)
	assert.Equal(t, 2, frames[0].Width)
	assert.Equal(t, 3, frames[1].Width)

	require.NoError(t, src.Close())
	assert.NoFileExists(t, filepath.Join(dir, LockFileName))
}

func TestFileSourceLockFallsBackToShared(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 2, 2)
	pattern := filepath.Join(dir, "*.png")

	first, err := NewFileSource(pattern, FileOptions{})
	require.NoError(t, err)
	defer first.Close()

	_, err = NewFileSource(pattern, FileOptions{})
	assert.ErrorIs(t, err, ErrSourceInUse)

	second, err := Open(context.Background(), FileOpener(pattern, FileOptions{}))
	require.NoError(t, err)
	assert.Equal(t, Shared, second.Mode())
	require.NoError(t, second.Close())
	assert.FileExists(t, filepath.Join(dir, LockFileName), "shared close keeps the owner's lock")
}

func TestFileSourceNoMatches(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "*.png"), FileOptions{})
	assert.Error(t, err)
}

func TestFileSourceLoopStopsOnClose(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 2, 2)
	src, err := NewFileSource(filepath.Join(dir, "*.png"), FileOptions{Loop: true, Interval: time.Millisecond, Mode: Shared})
	require.NoError(t, err)
	require.NoError(t, src.Start(context.Background()))

	for range 3 {
		<-src.Frames()
	}
	require.NoError(t, src.Close())
	_, ok := <-src.Frames()
	assert.False(t, ok)
}

func TestWatchSource(t *testing.T) {
	dir := t.TempDir()
	src, err := NewWatchSource(dir, Exclusive)
	require.NoError(t, err)
	require.NoError(t, src.Start(context.Background()))
	defer src.Close()

	writePNG(t, filepath.Join(dir, "frame.png"), 5, 3)
	select {
	case f := <-src.Frames():
		assert.Equal(t, 5, f.Width)
	case <-time.After(5 * time.Second):
		t.Fatal("no frame from watched directory")
	}

	_, err = NewWatchSource(dir, Exclusive)
	assert.ErrorIs(t, err, ErrSourceInUse)
}

type countingSubmitter struct {
	mu     sync.Mutex
	frames int
	swaps  int
}

func (c *countingSubmitter) Submit(context.Context, *imaging.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames++
	return true
}

func (c *countingSubmitter) SwapSource() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.swaps++
	return uint64(c.swaps)
}

func TestRunner(t *testing.T) {
	sub := &countingSubmitter{}
	r := NewRunner(sub)
	ctx := context.Background()

	first := &fakeSource{frames: make(chan *imaging.Frame, 2)}
	first.frames <- imaging.NewFrame(2, 2, imaging.BGRA8)
	first.frames <- imaging.NewFrame(2, 2, imaging.BGRA8)
	close(first.frames)
	require.NoError(t, r.SetSource(ctx, first))
	<-r.Done()

	second := &fakeSource{frames: make(chan *imaging.Frame)}
	close(second.frames)
	require.NoError(t, r.SetSource(ctx, second))
	<-r.Done()
	require.NoError(t, r.Close())

	assert.Equal(t, 2, sub.frames)
	assert.Equal(t, 1, sub.swaps)
}

func TestRunnerOnSwap(t *testing.T) {
	sub := &countingSubmitter{}
	resets := 0
	r := NewRunner(sub, WithOnSwap(func() { resets++ }), WithOnSwap(nil))
	ctx := context.Background()

	first := &fakeSource{frames: make(chan *imaging.Frame)}
	require.NoError(t, r.SetSource(ctx, first))
	assert.Equal(t, 0, resets, "the first source is not a swap")

	second := &fakeSource{frames: make(chan *imaging.Frame)}
	close(first.frames)
	require.NoError(t, r.SetSource(ctx, second))
	assert.Equal(t, 1, resets)
	assert.Equal(t, 1, sub.swaps)

	close(second.frames)
	require.NoError(t, r.Close())
	assert.Equal(t, 1, resets, "closing is not a swap")
}
