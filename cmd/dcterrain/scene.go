package main

import (
	stderrors "errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/nfnt/resize"
	"github.com/pelletier/go-toml/v2"
	"github.com/segmentio/encoding/json"
	"github.com/soypat/dcterrain"
	"github.com/soypat/dcterrain/density"
	"github.com/soypat/dcterrain/form3/must3"
	"github.com/soypat/dcterrain/render"
	"github.com/soypat/dcterrain/terrain"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

const (
	baseDefault   = "default"
	baseFlat      = "flat"
	baseMesh      = "mesh"
	baseHeightmap = "heightmap"
)

// scene describes a terrain and the edits sculpted into it.
type scene struct {
	Terrain terrain.Config `toml:"terrain" yaml:"terrain" json:"terrain"`
	// Base is "default" for the stock hill and cave, "flat" for a plane at
	// height Ground, "mesh" for the closed binary STL model at Model or
	// "heightmap" for ground shaped by Heightmap.
	Base      string          `toml:"base" yaml:"base" json:"base"`
	Ground    float64         `toml:"ground" yaml:"ground" json:"ground"`
	Model     string          `toml:"model" yaml:"model" json:"model"`
	Heightmap heightmapSource `toml:"heightmap" yaml:"heightmap" json:"heightmap"`
	Edits     []edit          `toml:"edits" yaml:"edits" json:"edits"`
}

// heightmapSource is a grayscale elevation image centered on the origin
// with its black level at the scene's ground height.
type heightmapSource struct {
	Image     string  `toml:"image" yaml:"image" json:"image"`
	CellSize  float64 `toml:"cell_size" yaml:"cell_size" json:"cell_size"`
	MaxHeight float64 `toml:"max_height" yaml:"max_height" json:"max_height"`
	// Resolution resamples the image to this many columns when positive.
	Resolution int `toml:"resolution" yaml:"resolution" json:"resolution"`
}

type edit struct {
	Tool     string     `toml:"tool" yaml:"tool" json:"tool"`
	Additive bool       `toml:"additive" yaml:"additive" json:"additive"`
	Position [3]float64 `toml:"position" yaml:"position" json:"position"`
	Size     float64    `toml:"size" yaml:"size" json:"size"`
}

func defaultScene() scene {
	return scene{
		Terrain: terrain.DefaultConfig(),
		Base:    baseDefault,
		Heightmap: heightmapSource{
			CellSize:  1,
			MaxHeight: 16,
		},
	}
}

// loadScene decodes the scene file at path by extension. Fields missing
// from the file keep their defaults.
func loadScene(path string) (scene, error) {
	sc := defaultScene()
	if path == "" {
		return sc, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return sc, errors.New("reading scene failed").
			WithTag("path", path).
			Wrap(err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml":
		err = toml.Unmarshal(b, &sc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &sc)
	case ".json":
		err = json.Unmarshal(b, &sc)
	default:
		return sc, errors.New("unsupported scene format").
			WithTag("path", path).
			WithTag("extension", ext)
	}
	if err != nil {
		return sc, errors.New("decoding scene failed").
			WithTag("path", path).
			Wrap(err)
	}
	return sc, nil
}

func (sc scene) base() (dcterrain.SDF3, error) {
	switch sc.Base {
	case "", baseDefault:
		return terrain.DefaultBase(), nil
	case baseFlat:
		return must3.Plane(r3.Vec{Y: 1}, sc.Ground), nil
	case baseMesh:
		return loadModel(sc.Model)
	case baseHeightmap:
		return sc.loadHeightmap()
	}
	return nil, errors.New("unknown base").WithTag("base", sc.Base)
}

func (sc scene) modifiers() ([]density.Modifier, error) {
	mods := make([]density.Modifier, 0, len(sc.Edits))
	for i, e := range sc.Edits {
		tool, err := density.ParseTool(e.Tool)
		if err != nil {
			return nil, errors.New("invalid edit").WithTag("edit", i).Wrap(err)
		}
		if !(e.Size > 0) {
			return nil, errors.New("edit size must be positive").
				WithTag("edit", i).
				WithTag("size", e.Size)
		}
		pos := r3.Vec{X: e.Position[0], Y: e.Position[1], Z: e.Position[2]}
		mods = append(mods, density.NewModifier(tool, e.Additive, pos, e.Size))
	}
	return mods, nil
}

func loadModel(path string) (dcterrain.SDF3, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New("opening model failed").WithTag("path", path).Wrap(err)
	}
	defer f.Close()
	triangles, err := render.ReadSTL(f)
	if err != nil && !stderrors.Is(err, render.ErrNormalMismatch) {
		return nil, errors.New("reading model failed").WithTag("path", path).Wrap(err)
	}
	m, err := density.NewMesh(triangles, 0)
	if err != nil {
		return nil, errors.New("indexing model failed").WithTag("path", path).Wrap(err)
	}
	return m, nil
}

func (sc scene) loadHeightmap() (dcterrain.SDF3, error) {
	src := sc.Heightmap
	f, err := os.Open(src.Image)
	if err != nil {
		return nil, errors.New("opening heightmap failed").WithTag("path", src.Image).Wrap(err)
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		return nil, errors.New("decoding heightmap failed").WithTag("path", src.Image).Wrap(err)
	}
	if src.Resolution > 0 {
		img = resize.Resize(uint(src.Resolution), 0, img, resize.Bilinear)
	}
	b := img.Bounds()
	origin := r3.Vec{
		X: -float64(b.Dx()-1) * src.CellSize / 2,
		Y: sc.Ground,
		Z: -float64(b.Dy()-1) * src.CellSize / 2,
	}
	hm, err := density.NewHeightmap(img, origin, src.CellSize, src.MaxHeight)
	if err != nil {
		return nil, errors.New("invalid heightmap").
			WithTag("path", src.Image).
			WithTag("format", format).
			Wrap(err)
	}
	return hm, nil
}
