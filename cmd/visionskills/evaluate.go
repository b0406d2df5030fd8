package main

import (
	"context"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/skill"
	"github.com/born-ml/vision/internal/skills"
	"github.com/born-ml/vision/internal/skills/rectifier"
)

type evaluateOptions struct {
	outDir        string
	quad          string
	interpolation string
}

type evaluation struct {
	File   string `json:"file"`
	Result any    `json:"result,omitempty"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

func newEvaluateCmd(a *app) *cobra.Command {
	var opts evaluateOptions
	cmd := &cobra.Command{
		Use:   "evaluate <kind> <image|glob>...",
		Short: "Evaluate a skill on still images",
		Long: `Evaluate a skill on each image and print one JSON result per line.
Arguments may be doublestar globs such as "frames/**/*.png". The rectifier
writes its output image to --out and prints the path.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := skill.ParseKind(args[0])
			if err != nil {
				return err
			}
			files, err := expandImages(args[1:])
			if err != nil {
				return err
			}
			return a.evaluate(cmd.Context(), kind, files, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.outDir, "out", ".", "directory for image results")
	f.StringVar(&opts.quad, "quad", "", "rectifier corners as normalized x0,y0,x1,y1,x2,y2,x3,y3 (TL, TR, BR, BL)")
	f.StringVar(&opts.interpolation, "interpolation", "bilinear", "rectifier sampling: bilinear or nearest")
	return cmd
}

// expandImages resolves globs to image files; a plain path is kept as-is.
func expandImages(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Wrapf(err, "bad pattern %q", arg)
		}
		if len(matches) == 0 {
			files = append(files, arg)
			continue
		}
		for _, m := range matches {
			if imaging.IsImageFile(m) {
				files = append(files, m)
			}
		}
	}
	if len(files) == 0 {
		return nil, errors.New("no image files to evaluate")
	}
	return files, nil
}

func (a *app) evaluate(ctx context.Context, kind skill.Kind, files []string, opts evaluateOptions) error {
	o, err := a.skillOptions(ctx)
	if err != nil {
		return err
	}

	var sk skills.ImageSkill
	if kind == skill.ImageRectifier && opts.quad != "" {
		sk, err = newQuadRectifier(o, opts)
	} else {
		sk, err = skills.Load(kind, o)
	}
	if err != nil {
		return errors.Wrapf(err, "load %s", kind)
	}
	defer sk.Close()

	enc := json.NewEncoder(a.out.out)
	failed := 0
	for _, file := range files {
		res := evaluation{File: file}
		if err := a.evaluateFile(ctx, sk, file, opts.outDir, &res); err != nil {
			res.Error = err.Error()
			failed++
		}
		if err := enc.Encode(res); err != nil {
			return errors.Wrap(err, "write result")
		}
	}
	if failed > 0 {
		return errors.Errorf("%d of %d images failed", failed, len(files))
	}
	return nil
}

func (a *app) evaluateFile(ctx context.Context, sk skills.ImageSkill, file, outDir string, res *evaluation) error {
	frame, err := imaging.DecodeFile(file)
	if err != nil {
		return err
	}
	out, err := sk.EvaluateImage(ctx, frame)
	if err != nil {
		return err
	}
	img, ok := out.(*imaging.Frame)
	if !ok {
		res.Result = out
		return nil
	}
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	res.Output = filepath.Join(outDir, base+"_rectified.png")
	return writePNG(res.Output, img)
}

func writePNG(path string, f *imaging.Frame) error {
	img, err := f.ToImage()
	if err != nil {
		return err
	}
	file, err := os.Create(path) //nolint:gosec // G304: output path comes from the --out flag.
	if err != nil {
		return errors.Wrap(err, "create output image")
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return errors.Wrapf(err, "encode %s", path)
	}
	return file.Close()
}

// quadRectifier rectifies every image with the same corners.
type quadRectifier struct {
	*rectifier.Skill
	quad   [4]rectifier.Point
	interp rectifier.Interpolation
}

func newQuadRectifier(o skills.Options, opts evaluateOptions) (*quadRectifier, error) {
	quad, err := parseQuad(opts.quad)
	if err != nil {
		return nil, err
	}
	interp, err := rectifier.ParseInterpolation(opts.interpolation)
	if err != nil {
		return nil, err
	}
	desc, err := rectifier.NewDescriptor(o.Manifests[skill.ImageRectifier])
	if err != nil {
		return nil, err
	}
	s, err := rectifier.New(desc, o.Device)
	if err != nil {
		return nil, err
	}
	return &quadRectifier{Skill: s, quad: quad, interp: interp}, nil
}

func (r *quadRectifier) EvaluateImage(ctx context.Context, frame *imaging.Frame) (any, error) {
	b, err := r.CreateBinding()
	if err != nil {
		return nil, err
	}
	if err := b.SetInputImage(frame); err != nil {
		return nil, err
	}
	if err := b.SetQuad(r.quad); err != nil {
		return nil, err
	}
	if err := b.SetInterpolation(r.interp); err != nil {
		return nil, err
	}
	if err := r.Evaluate(ctx, b); err != nil {
		return nil, err
	}
	return b.OutputImage(), nil
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, errors.Errorf("%q: want %d comma-separated numbers, got %d", s, n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "%q", s)
		}
		out[i] = v
	}
	return out, nil
}

func parseQuad(s string) ([4]rectifier.Point, error) {
	var quad [4]rectifier.Point
	v, err := parseFloats(s, 8)
	if err != nil {
		return quad, errors.Wrap(err, "--quad")
	}
	for i := range quad {
		quad[i] = rectifier.Point{X: v[2*i], Y: v[2*i+1]}
	}
	return quad, nil
}
