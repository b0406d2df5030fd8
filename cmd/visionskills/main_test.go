package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vision/internal/device"
	"github.com/born-ml/vision/internal/skills/rectifier"
)

func testEnumerator() device.Enumerator {
	return device.EnumeratorFunc(func(context.Context) ([]device.Adapter, error) {
		return []device.Adapter{
			{Name: "Test GPU", Kind: device.KindGPU, FeatureLevel: device.Level12_1},
			{Name: "Old GPU", Kind: device.KindGPU, FeatureLevel: device.Level11_0},
		}, nil
	})
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := newApp()
	var out, errOut bytes.Buffer
	a.out = newPresenter(&out, &errOut)
	a.enumerator = testEnumerator()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	return dir
}

func writeTestPNG(t *testing.T, path string, w, h int, square image.Rectangle) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{A: 255}
			if image.Pt(x, y).In(square) {
				c = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestParseSeed(t *testing.T) {
	r, err := parseSeed("10, 20, 30, 40")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(10, 20, 40, 60), r)

	for _, bad := range []string{"", "1,2,3", "1,2,3,x", "1,2,0,4", "1,2,3,-4"} {
		_, err := parseSeed(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseQuad(t *testing.T) {
	q, err := parseQuad("0,0,1,0,1,1,0,1")
	require.NoError(t, err)
	assert.Equal(t, rectifier.Point{X: 1, Y: 1}, q[2])

	_, err = parseQuad("0,0,1,0")
	assert.Error(t, err)
}

func TestExpandImages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o750))
	for _, name := range []string{"a/one.png", "a/b/two.jpg", "a/notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}

	files, err := expandImages([]string{filepath.Join(dir, "**", "*")})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a", "one.png"),
		filepath.Join(dir, "a", "b", "two.jpg"),
	}, files)

	files, err = expandImages([]string{"missing.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{"missing.png"}, files)
}

func TestVersionCommand(t *testing.T) {
	isolate(t)
	out, err := run(t, "version")
	require.NoError(t, err)
	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version, info.Version)
}

func TestDevicesCommand(t *testing.T) {
	isolate(t)

	out, err := run(t, "devices")
	require.NoError(t, err)
	assert.Contains(t, out, "* [0] CPU")
	assert.Contains(t, out, "Test GPU")
	assert.NotContains(t, out, "Old GPU")

	out, err = run(t, "devices", "--min-level", "11_0", "--device", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "* [2] Old GPU")

	_, err = run(t, "devices", "--min-level", "bogus")
	assert.Error(t, err)
}

func TestDescribeCommand(t *testing.T) {
	isolate(t)

	out, err := run(t, "describe", "rectifier", "--json")
	require.NoError(t, err)
	var desc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &desc))
	assert.Equal(t, "rectifier", desc["kind"])

	out, err = run(t, "describe", "facesentiment")
	require.NoError(t, err)
	assert.Contains(t, out, "FaceSentimentScores")
	assert.Contains(t, out, "Test GPU")

	out, err = run(t, "describe", "rectifier")
	require.NoError(t, err)
	assert.NotContains(t, out, "Test GPU", "the rectifier is CPU-only")

	_, err = run(t, "describe", "nope")
	assert.Error(t, err)
}

func TestEvaluateRectifier(t *testing.T) {
	dir := isolate(t)
	src := filepath.Join(dir, "page.png")
	writeTestPNG(t, src, 8, 6, image.Rect(2, 2, 6, 4))
	outDir := t.TempDir()

	out, err := run(t, "evaluate", "rectifier", src, "--out", outDir, "--quad", "0.25,0.2,0.75,0.2,0.75,0.8,0.25,0.8")
	require.NoError(t, err)
	var res evaluation
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Empty(t, res.Error)
	assert.Equal(t, filepath.Join(outDir, "page_rectified.png"), res.Output)

	f, err := os.Open(res.Output)
	require.NoError(t, err)
	defer f.Close()
	_, err = png.Decode(f)
	require.NoError(t, err)
}

func TestEvaluateReportsFailures(t *testing.T) {
	dir := isolate(t)
	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not a png"), 0o600))

	out, err := run(t, "evaluate", "rectifier", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 images failed")
	assert.Contains(t, out, `"error"`)

	_, err = run(t, "evaluate", "facesentiment", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no facesentiment manifest")
}

func TestTrackCommand(t *testing.T) {
	dir := isolate(t)
	frames := filepath.Join(dir, "frames")
	require.NoError(t, os.Mkdir(frames, 0o750))
	for i := range 3 {
		sq := image.Rect(4+i, 4, 12+i, 12)
		writeTestPNG(t, filepath.Join(frames, fmt.Sprintf("frame%02d.png", i)), 32, 24, sq)
	}

	out, err := run(t, "track", "--seed", "4,4,8,8", "--interval", "5ms", filepath.Join(frames, "*.png"))
	require.NoError(t, err)

	var updates []trackUpdate
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var u trackUpdate
		require.NoError(t, json.Unmarshal([]byte(line), &u))
		updates = append(updates, u)
	}
	require.NotEmpty(t, updates)
	assert.Empty(t, updates[0].Error)
	assert.Len(t, updates[0].Succeeded, 1)
	assert.Contains(t, out, "tracked")

	_, err = run(t, "track", filepath.Join(frames, "*.png"))
	assert.Error(t, err)
}

func TestBindFlags(t *testing.T) {
	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("addr", ":8080", "")
	require.NoError(t, fs.Parse([]string{"--addr", ":9000"}))

	require.NoError(t, bindFlags(v, fs, map[string]string{"addr": "server.addr"}))
	assert.Equal(t, ":9000", v.GetString("server.addr"))

	assert.Error(t, bindFlags(v, fs, map[string]string{"port": "server.port"}))
}

func TestTrackProcessorUsesConfiguredGate(t *testing.T) {
	isolate(t)
	t.Setenv("VISIONSKILLS_PIPELINE_MAX_IN_FLIGHT", "3")
	a := newApp()
	require.NoError(t, a.load(newRootCmd(a)))
	assert.Equal(t, 3, a.cfg.Pipeline.MaxInFlight)
	assert.Equal(t, 3, a.newTrackProcessor(nil, nil).MaxInFlight())
}
