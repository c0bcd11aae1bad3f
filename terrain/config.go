package terrain

import (
	"errors"
	"fmt"
	"math"

	"github.com/soypat/dcterrain"
	"github.com/soypat/dcterrain/form3/must3"
	"github.com/soypat/dcterrain/octree"
	"github.com/soypat/dcterrain/qef"
	"gonum.org/v1/gonum/spatial/r3"
)

// Config holds the parameters of the octree pass run on every rebuild.
type Config struct {
	// OctreeSize is the edge length of the octree root in field units.
	// It must be a power of two.
	OctreeSize int `toml:"octree_size" yaml:"octree_size" json:"octree_size"`
	// Origin is the minimum corner of the octree root.
	Origin dcterrain.V3i `toml:"origin" yaml:"origin" json:"origin"`
	// SimplifyThreshold is the QEF error below which a subtree is collapsed.
	// Zero disables simplification.
	SimplifyThreshold float64 `toml:"simplify_threshold" yaml:"simplify_threshold" json:"simplify_threshold"`
	QEFErrorTolerance float64 `toml:"qef_error_tolerance" yaml:"qef_error_tolerance" json:"qef_error_tolerance"`
	QEFSweeps         int     `toml:"qef_sweeps" yaml:"qef_sweeps" json:"qef_sweeps"`
	QEFPinvTolerance  float64 `toml:"qef_pinv_tolerance" yaml:"qef_pinv_tolerance" json:"qef_pinv_tolerance"`
	MaxCrossings      int     `toml:"max_crossings" yaml:"max_crossings" json:"max_crossings"`
	NormalStep        float64 `toml:"normal_step" yaml:"normal_step" json:"normal_step"`
}

// DefaultConfig returns a 64 unit octree centered on the origin.
func DefaultConfig() Config {
	return Config{
		OctreeSize:        64,
		Origin:            dcterrain.V3i{-32, -32, -32},
		SimplifyThreshold: 0,
		QEFErrorTolerance: qef.DefaultErrorTolerance,
		QEFSweeps:         qef.DefaultSweeps,
		QEFPinvTolerance:  qef.DefaultPinvTolerance,
		MaxCrossings:      octree.DefaultMaxCrossings,
		NormalStep:        octree.DefaultNormalStep,
	}
}

// Validate reports the first invalid parameter of c.
func (c Config) Validate() error {
	switch {
	case c.OctreeSize <= 0 || c.OctreeSize&(c.OctreeSize-1) != 0:
		return fmt.Errorf("octree size %d is not a positive power of two", c.OctreeSize)
	case math.IsNaN(c.SimplifyThreshold):
		return errors.New("simplify threshold is NaN")
	case c.QEFSweeps <= 0:
		return fmt.Errorf("qef sweeps %d must be positive", c.QEFSweeps)
	case !(c.QEFErrorTolerance >= 0) || !(c.QEFPinvTolerance >= 0):
		return errors.New("qef tolerances must be non-negative")
	case c.MaxCrossings <= 0 || c.MaxCrossings > 12:
		return fmt.Errorf("max crossings %d out of range [1, 12]", c.MaxCrossings)
	case !(c.NormalStep > 0):
		return fmt.Errorf("normal step %g must be positive", c.NormalStep)
	}
	return nil
}

// QEFParams returns the QEF tolerances of c.
func (c Config) QEFParams() qef.Params {
	return qef.Params{
		ErrorTolerance: c.QEFErrorTolerance,
		Sweeps:         c.QEFSweeps,
		PinvTolerance:  c.QEFPinvTolerance,
	}
}

// Bounds returns the world space box covered by the octree.
func (c Config) Bounds() r3.Box {
	size := float64(c.OctreeSize)
	lo := c.Origin.ToV3()
	return r3.Box{Min: lo, Max: r3.Add(lo, r3.Vec{X: size, Y: size, Z: size})}
}

func (c Config) builder(pool *octree.Pool) octree.Builder {
	return octree.Builder{
		Pool:         pool,
		QEF:          c.QEFParams(),
		MaxCrossings: c.MaxCrossings,
		NormalStep:   c.NormalStep,
	}
}

// DefaultBase returns the stock terrain: ground at height 12 joined with a
// sphere of radius 16 and hollowed by a box of half extent 5.
func DefaultBase() dcterrain.SDF3 {
	ground := must3.Plane(r3.Vec{Y: 1}, 12)
	hill := dcterrain.Translate3D(must3.Sphere(16), r3.Vec{X: 15, Y: 1.5, Z: 1})
	cave := dcterrain.Translate3D(must3.Box(r3.Vec{X: 10, Y: 10, Z: 10}, 0), r3.Vec{X: -4, Y: 10, Z: -4})
	return dcterrain.Difference3D(dcterrain.Union3D(ground, hill), cave)
}
