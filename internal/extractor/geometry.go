package extractor

import (
	"math"

	"certmap/internal/domain"
)

// defaultItemHeight is used when neither a font size nor a vertical scale is known.
const defaultItemHeight = 10

// matrix is a PDF affine transform [a b c d e f].
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// mul returns m × n: applying the result equals applying m, then n.
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

func translate(tx, ty float64) matrix {
	return matrix{1, 0, 0, 1, tx, ty}
}

// viewport maps user space onto an unscaled page view with a top-left origin,
// honoring the page rotation.
type viewport struct {
	x0, y0, x1, y1 float64
	rotate         int
	width, height  float64
}

func newViewport(x0, y0, x1, y1 float64, rotate int) viewport {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	rotate %= 360
	if rotate < 0 {
		rotate += 360
	}
	rotate -= rotate % 90
	vp := viewport{x0: x0, y0: y0, x1: x1, y1: y1, rotate: rotate}
	if rotate == 90 || rotate == 270 {
		vp.width, vp.height = y1-y0, x1-x0
	} else {
		vp.width, vp.height = x1-x0, y1-y0
	}
	return vp
}

func (v viewport) toViewport(x, y float64) (float64, float64) {
	switch v.rotate {
	case 90:
		return y - v.y0, x - v.x0
	case 180:
		return v.x1 - x, y - v.y0
	case 270:
		return v.y1 - y, v.x1 - x
	default:
		return x - v.x0, v.y1 - y
	}
}

// itemHeight picks the text-space height of an item: font size, then the
// transform's vertical scale, then the default.
func itemHeight(t matrix, fontSize float64) float64 {
	if fs := math.Abs(fontSize); fs > 0 && !math.IsInf(fs, 0) {
		return fs
	}
	if h := math.Hypot(t[2], t[3]); h > 0 && !math.IsNaN(h) && !math.IsInf(h, 0) {
		return h
	}
	return defaultItemHeight
}

// bboxOf projects the item's text-space quad through its transform and the
// viewport and returns the axis-aligned bounds.
func bboxOf(t matrix, fontSize, width float64, vp viewport) domain.BBox {
	h := itemHeight(t, fontSize)
	corners := [4][2]float64{{0, 0}, {width, 0}, {width, h}, {0, h}}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		ux, uy := t.apply(c[0], c[1])
		dx, dy := vp.toViewport(ux, uy)
		minX, maxX = math.Min(minX, dx), math.Max(maxX, dx)
		minY, maxY = math.Min(minY, dy), math.Max(maxY, dy)
	}
	return domain.BBox{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}
