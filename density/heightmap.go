package density

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/soypat/dcterrain"
	"gonum.org/v1/gonum/spatial/r3"
)

// Heightmap is the density of ground whose elevation is read from a
// grayscale image. Image columns run along X and rows along Z. Black is
// the base height and white is the base height plus MaxHeight.
//
// The density is the vertical distance to the ground, which is exact on
// flat ground and overestimates the distance on slopes.
type Heightmap struct {
	heights []float64
	w, h    int
	origin  r3.Vec
	cell    float64
	max     float64
}

// NewHeightmap samples img. origin is the world position of the first
// pixel at base height and cell the world distance between pixels.
func NewHeightmap(img image.Image, origin r3.Vec, cell, maxHeight float64) (*Heightmap, error) {
	rect := img.Bounds()
	if rect.Dx() < 2 || rect.Dy() < 2 {
		return nil, errors.New("heightmap needs at least 2x2 pixels")
	}
	if !(cell > 0) || !(maxHeight > 0) {
		return nil, errors.New("heightmap cell size and height must be positive")
	}
	hm := &Heightmap{
		heights: make([]float64, rect.Dx()*rect.Dy()),
		w:       rect.Dx(),
		h:       rect.Dy(),
		origin:  origin,
		cell:    cell,
		max:     maxHeight,
	}
	for y := 0; y < hm.h; y++ {
		for x := 0; x < hm.w; x++ {
			g := color.Gray16Model.Convert(img.At(rect.Min.X+x, rect.Min.Y+y)).(color.Gray16)
			hm.heights[y*hm.w+x] = maxHeight * float64(g.Y) / math.MaxUint16
		}
	}
	return hm, nil
}

// Height returns the ground height at world position x, z, interpolated
// bilinearly between pixels and clamped to the image border. It returns
// NaN if x or z is NaN.
func (hm *Heightmap) Height(x, z float64) float64 {
	if math.IsNaN(x) || math.IsNaN(z) {
		return math.NaN()
	}
	u := dcterrain.Clamp((x-hm.origin.X)/hm.cell, 0, float64(hm.w-1))
	v := dcterrain.Clamp((z-hm.origin.Z)/hm.cell, 0, float64(hm.h-1))
	i0, j0 := int(u), int(v)
	i1, j1 := min(i0+1, hm.w-1), min(j0+1, hm.h-1)
	fu, fv := u-float64(i0), v-float64(j0)
	h00 := hm.heights[j0*hm.w+i0]
	h10 := hm.heights[j0*hm.w+i1]
	h01 := hm.heights[j1*hm.w+i0]
	h11 := hm.heights[j1*hm.w+i1]
	top := h00 + fu*(h10-h00)
	bottom := h01 + fu*(h11-h01)
	return hm.origin.Y + top + fv*(bottom-top)
}

// Evaluate returns the height of p above the ground.
func (hm *Heightmap) Evaluate(p r3.Vec) float64 {
	return p.Y - hm.Height(p.X, p.Z)
}

// Bounds returns the box spanned by the image between base height and
// maximum height.
func (hm *Heightmap) Bounds() r3.Box {
	return r3.Box{
		Min: hm.origin,
		Max: r3.Add(hm.origin, r3.Vec{
			X: float64(hm.w-1) * hm.cell,
			Y: hm.max,
			Z: float64(hm.h-1) * hm.cell,
		}),
	}
}
