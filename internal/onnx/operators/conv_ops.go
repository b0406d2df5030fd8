package operators

import (
	"fmt"
	"math"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
)

// registerConvOps adds the 2-D convolution and pooling operators to the registry.
func (r *Registry) registerConvOps() {
	r.Register("Conv", handleConv)
	r.Register("MaxPool", handleMaxPool)
	r.Register("AveragePool", handleAveragePool)
	r.Register("GlobalAveragePool", handleGlobalAveragePool)
	r.Register("BatchNormalization", handleBatchNorm)
}

// window holds the resolved spatial geometry of a 2-D conv or pool.
type window struct {
	kh, kw     int
	sh, sw     int
	dh, dw     int
	padT, padL int
	outH, outW int
	inH, inW   int
}

// resolveWindow reads kernel/strides/pads/dilations/auto_pad for an NCHW input.
func resolveWindow(node *Node, inH, inW, kh, kw int) (window, error) {
	w := window{kh: kh, kw: kw, sh: 1, sw: 1, dh: 1, dw: 1, inH: inH, inW: inW}
	if s := GetAttrInts(node, "strides"); len(s) == 2 {
		w.sh, w.sw = int(s[0]), int(s[1])
	}
	if d := GetAttrInts(node, "dilations"); len(d) == 2 {
		w.dh, w.dw = int(d[0]), int(d[1])
	}
	if w.sh <= 0 || w.sw <= 0 || w.dh <= 0 || w.dw <= 0 {
		return w, fmt.Errorf("strides and dilations must be positive")
	}

	effH := (kh-1)*w.dh + 1
	effW := (kw-1)*w.dw + 1
	padB, padR := 0, 0

	switch autoPad := GetAttrString(node, "auto_pad", "NOTSET"); autoPad {
	case "NOTSET", "":
		if p := GetAttrInts(node, "pads"); len(p) == 4 {
			w.padT, w.padL, padB, padR = int(p[0]), int(p[1]), int(p[2]), int(p[3])
		}
	case "VALID":
	case "SAME_UPPER", "SAME_LOWER":
		outH := (inH + w.sh - 1) / w.sh
		outW := (inW + w.sw - 1) / w.sw
		totalH := max((outH-1)*w.sh+effH-inH, 0)
		totalW := max((outW-1)*w.sw+effW-inW, 0)
		if autoPad == "SAME_UPPER" {
			w.padT, w.padL = totalH/2, totalW/2
		} else {
			w.padT, w.padL = totalH-totalH/2, totalW-totalW/2
		}
		padB, padR = totalH-w.padT, totalW-w.padL
	default:
		return w, fmt.Errorf("unsupported auto_pad %q", autoPad)
	}

	w.outH = (inH+w.padT+padB-effH)/w.sh + 1
	w.outW = (inW+w.padL+padR-effW)/w.sw + 1
	if w.outH <= 0 || w.outW <= 0 {
		return w, fmt.Errorf("kernel %dx%d larger than padded input %dx%d", kh, kw, inH, inW)
	}
	return w, nil
}

func want4D(op string, x *tensor.Tensor) error {
	if err := wantFloat(op, x); err != nil {
		return err
	}
	if x.Rank() != 4 {
		return fmt.Errorf("%s: expected NCHW input, got shape %v", op, x.Shape())
	}
	return nil
}

// handleConv implements grouped 2-D convolution over NCHW input with OIHW weights.
func handleConv(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("conv", inputs, 2, 3); err != nil {
		return nil, err
	}
	x, wt, bias := inputs[0], inputs[1], optional(inputs, 2)
	if err := want4D("conv", x); err != nil {
		return nil, err
	}
	if err := want4D("conv", wt); err != nil {
		return nil, err
	}
	if err := wantFloat("conv", bias); err != nil {
		return nil, err
	}

	n, c, h, wd := x.Shape()[0], x.Shape()[1], x.Shape()[2], x.Shape()[3]
	m, cg, kh, kw := wt.Shape()[0], wt.Shape()[1], wt.Shape()[2], wt.Shape()[3]
	group := int(GetAttrInt(node, "group", 1))
	if group <= 0 || c%group != 0 || m%group != 0 || c/group != cg {
		return nil, fmt.Errorf("conv: channels %d, weights %v and group %d disagree", c, wt.Shape(), group)
	}
	if bias != nil && bias.NumElements() != m {
		return nil, fmt.Errorf("conv: bias has %d elements, want %d", bias.NumElements(), m)
	}

	win, err := resolveWindow(node, h, wd, kh, kw)
	if err != nil {
		return nil, fmt.Errorf("conv: %w", err)
	}

	out := tensor.Zeros(tensor.Shape{n, m, win.outH, win.outW}, tensor.Float32)
	xd, wdata, od := x.Float32(), wt.Float32(), out.Float32()
	var bd []float32
	if bias != nil {
		bd = bias.Float32()
	}

	// im2col per (batch, group), then one dot product per output pixel
	// against the flattened [cg*kh*kw] kernel row.
	mPerGroup := m / group
	plane := win.outH * win.outW
	colWidth := cg * kh * kw
	col := make([]float32, plane*colWidth)
	for b := 0; b < n; b++ {
		for g := 0; g < group; g++ {
			src := xd[(b*c+g*cg)*h*wd : (b*c+(g+1)*cg)*h*wd]
			im2col(col, src, cg, h, wd, win)
			parallel.Planes(mPerGroup, ctx.Parallel, func(i int) {
				oc := g*mPerGroup + i
				kern := wdata[oc*colWidth : (oc+1)*colWidth]
				dst := od[(b*m+oc)*plane : (b*m+oc+1)*plane]
				var bv float32
				if bd != nil {
					bv = bd[oc]
				}
				for j := range dst {
					row := col[j*colWidth : (j+1)*colWidth]
					sum := bv
					for k, kv := range kern {
						sum += kv * row[k]
					}
					dst[j] = sum
				}
			})
		}
	}
	return one(out), nil
}

// im2col lays out every receptive field of src ([C, H, W]) as one row of
// colBuf ([outH*outW, C*kh*kw]). Positions in the padding read as zero.
func im2col(colBuf, src []float32, channels, h, w int, win window) {
	idx := 0
	for oy := 0; oy < win.outH; oy++ {
		for ox := 0; ox < win.outW; ox++ {
			yStart := oy*win.sh - win.padT
			xStart := ox*win.sw - win.padL
			for ch := 0; ch < channels; ch++ {
				base := ch * h * w
				for ky := 0; ky < win.kh; ky++ {
					iy := yStart + ky*win.dh
					for kx := 0; kx < win.kw; kx++ {
						ix := xStart + kx*win.dw
						if iy >= 0 && iy < h && ix >= 0 && ix < w {
							colBuf[idx] = src[base+iy*w+ix]
						} else {
							colBuf[idx] = 0
						}
						idx++
					}
				}
			}
		}
	}
}

func kernelShape(op string, node *Node) (int, int, error) {
	k := GetAttrInts(node, "kernel_shape")
	if len(k) != 2 || k[0] <= 0 || k[1] <= 0 {
		return 0, 0, fmt.Errorf("%s: kernel_shape must have 2 positive dims, got %v", op, k)
	}
	return int(k[0]), int(k[1]), nil
}

// pool runs a 2-D pooling reduction; reduce receives the in-bounds values
// of one window and the full window size.
func pool(ctx *Context, op string, node *Node, x *tensor.Tensor, reduce func(vals []float32, size int) float32) (*tensor.Tensor, error) {
	if err := want4D(op, x); err != nil {
		return nil, err
	}
	kh, kw, err := kernelShape(op, node)
	if err != nil {
		return nil, err
	}
	n, c, h, wd := x.Shape()[0], x.Shape()[1], x.Shape()[2], x.Shape()[3]
	win, err := resolveWindow(node, h, wd, kh, kw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := tensor.Zeros(tensor.Shape{n, c, win.outH, win.outW}, tensor.Float32)
	xd, od := x.Float32(), out.Float32()
	parallel.Planes(n*c, ctx.Parallel, func(p int) {
		src := xd[p*h*wd : (p+1)*h*wd]
		dst := od[p*win.outH*win.outW:]
		vals := make([]float32, 0, kh*kw)
		for oy := 0; oy < win.outH; oy++ {
			for ox := 0; ox < win.outW; ox++ {
				vals = vals[:0]
				for ky := 0; ky < kh; ky++ {
					iy := oy*win.sh - win.padT + ky*win.dh
					if iy < 0 || iy >= h {
						continue
					}
					for kx := 0; kx < kw; kx++ {
						ix := ox*win.sw - win.padL + kx*win.dw
						if ix < 0 || ix >= wd {
							continue
						}
						vals = append(vals, src[iy*wd+ix])
					}
				}
				dst[oy*win.outW+ox] = reduce(vals, kh*kw)
			}
		}
	})
	return out, nil
}

func handleMaxPool(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("maxPool", inputs, 1, 1); err != nil {
		return nil, err
	}
	out, err := pool(ctx, "maxPool", node, inputs[0], func(vals []float32, _ int) float32 {
		m := float32(math.Inf(-1))
		for _, v := range vals {
			m = max(m, v)
		}
		return m
	})
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

func handleAveragePool(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("averagePool", inputs, 1, 1); err != nil {
		return nil, err
	}
	includePad := GetAttrInt(node, "count_include_pad", 0) != 0
	out, err := pool(ctx, "averagePool", node, inputs[0], func(vals []float32, size int) float32 {
		var sum float32
		for _, v := range vals {
			sum += v
		}
		if includePad {
			return sum / float32(size)
		}
		if len(vals) == 0 {
			return 0
		}
		return sum / float32(len(vals))
	})
	if err != nil {
		return nil, err
	}
	return one(out), nil
}

func handleGlobalAveragePool(_ *Context, _ *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("globalAveragePool", inputs, 1, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	if err := want4D("globalAveragePool", x); err != nil {
		return nil, err
	}
	n, c, hw := x.Shape()[0], x.Shape()[1], x.Shape()[2]*x.Shape()[3]
	out := tensor.Zeros(tensor.Shape{n, c, 1, 1}, tensor.Float32)
	xd, od := x.Float32(), out.Float32()
	for p := 0; p < n*c; p++ {
		var sum float32
		for _, v := range xd[p*hw : (p+1)*hw] {
			sum += v
		}
		if hw > 0 {
			od[p] = sum / float32(hw)
		}
	}
	return one(out), nil
}

// handleBatchNorm applies inference-mode batch normalization per channel.
func handleBatchNorm(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("batchNormalization", inputs, 5, 5); err != nil {
		return nil, err
	}
	x, scale, bias, mean, variance := inputs[0], inputs[1], inputs[2], inputs[3], inputs[4]
	if err := wantFloat("batchNormalization", inputs...); err != nil {
		return nil, err
	}
	if x.Rank() < 2 {
		return nil, fmt.Errorf("batchNormalization: input rank %d < 2", x.Rank())
	}
	c := x.Shape()[1]
	for _, p := range []*tensor.Tensor{scale, bias, mean, variance} {
		if p.NumElements() != c {
			return nil, fmt.Errorf("batchNormalization: parameter has %d elements, want %d", p.NumElements(), c)
		}
	}
	eps := float64(GetAttrFloat(node, "epsilon", 1e-5))

	n := x.Shape()[0]
	spatial := x.NumElements() / max(n*c, 1)
	out := tensor.Zeros(x.Shape(), tensor.Float32)
	xd, od := x.Float32(), out.Float32()
	sd, bd, md, vd := scale.Float32(), bias.Float32(), mean.Float32(), variance.Float32()

	parallel.Planes(n*c, ctx.Parallel, func(p int) {
		ch := p % c
		k := sd[ch] / float32(math.Sqrt(float64(vd[ch])+eps))
		off := bd[ch] - md[ch]*k
		for i := p * spatial; i < (p+1)*spatial; i++ {
			od[i] = xd[i]*k + off
		}
	})
	return one(out), nil
}
