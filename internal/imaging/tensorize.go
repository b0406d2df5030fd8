package imaging

import (
	"fmt"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
)

// Channels selects the channel layout of a tensorized frame.
type Channels int

// Channel layouts.
const (
	ChannelsGray Channels = iota
	ChannelsRGB
	ChannelsBGR
)

func (c Channels) count() int {
	if c == ChannelsGray {
		return 1
	}
	return 3
}

// TensorOptions controls ToTensor. Each value v in [0, 255] becomes
// (v*Scale - Mean[c]) / Std[c]. A zero Scale means 1 and a zero Std entry means 1.
type TensorOptions struct {
	Width, Height int // resize target; zero keeps the frame size
	Channels      Channels
	Scale         float32
	Mean          [3]float32
	Std           [3]float32
}

// ToTensor converts a CPU frame into a [1, C, H, W] float32 tensor.
func (f *Frame) ToTensor(opts TensorOptions) (*tensor.Tensor, error) {
	src, err := f.packed()
	if err != nil {
		return nil, err
	}
	if opts.Width > 0 && opts.Height > 0 && (opts.Width != src.Width || opts.Height != src.Height) {
		if src, err = src.Resize(opts.Width, opts.Height); err != nil {
			return nil, err
		}
	}
	if opts.Channels < ChannelsGray || opts.Channels > ChannelsBGR {
		return nil, fmt.Errorf("unknown channel layout %d", opts.Channels)
	}

	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}
	var std [3]float32
	for i, s := range opts.Std {
		std[i] = s
		if s == 0 {
			std[i] = 1
		}
	}

	c, w, h := opts.Channels.count(), src.Width, src.Height
	out := tensor.Zeros(tensor.Shape{1, c, h, w}, tensor.Float32)
	data := out.Float32()
	plane := w * h

	norm := func(ch int, v uint8) float32 {
		return (float32(v)*scale - opts.Mean[ch]) / std[ch]
	}
	parallel.Rows(h, parallel.DefaultConfig(), func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				if opts.Channels == ChannelsGray {
					data[i] = norm(0, src.Luma(x, y))
					continue
				}
				r, g, b, _ := src.rgba(x, y)
				if opts.Channels == ChannelsBGR {
					r, b = b, r
				}
				data[i] = norm(0, r)
				data[plane+i] = norm(1, g)
				data[2*plane+i] = norm(2, b)
			}
		}
	})
	return out, nil
}
