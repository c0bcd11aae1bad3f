package render

import (
	"errors"
	"image"

	"github.com/fogleman/fauxgl"
	"github.com/nfnt/resize"
	"gonum.org/v1/gonum/spatial/r3"
)

// View configures the camera of a mesh preview. The mesh is fitted into a
// bi-unit cube centered at the origin before rendering.
type View struct {
	// Width and Height of the output image in pixels.
	Width, Height int
	// Supersample renders at a multiple of the output size and
	// downsamples for antialiasing.
	Supersample int
	// LookAt is the point looked at.
	LookAt r3.Vec
	// Up is which way is up.
	Up r3.Vec
	// Eye is the camera position.
	Eye r3.Vec
	// Fovy is the vertical field of view in degrees.
	Fovy      float64
	Near, Far float64
	// Color and Background are hex colors such as "#468966".
	Color      string
	Background string
}

// DefaultView looks at the origin from above and to the side.
func DefaultView() View {
	return View{
		Width:       800,
		Height:      600,
		Supersample: 2,
		Up:          r3.Vec{Y: 1},
		Eye:         r3.Vec{X: 2.5, Y: 2, Z: 2.5},
		Fovy:        30,
		Near:        1,
		Far:         10,
		Color:       "#468966",
		Background:  "#FFF8E3",
	}
}

// Preview rasterizes m with Phong shading.
func Preview(m *Mesh, view View) (image.Image, error) {
	if m.Empty() {
		return nil, errors.New("empty mesh")
	}
	if view.Width <= 0 || view.Height <= 0 {
		return nil, errors.New("preview size must be positive")
	}
	scale := max(view.Supersample, 1)
	triangles := make([]*fauxgl.Triangle, 0, m.TriangleCount())
	for i := 0; i+2 < len(m.Indices); i += 3 {
		a, b, c := m.Vertices[m.Indices[i]], m.Vertices[m.Indices[i+1]], m.Vertices[m.Indices[i+2]]
		triangles = append(triangles, fauxgl.NewTriangle(fauxglVertex(a), fauxglVertex(b), fauxglVertex(c)))
	}
	mesh := fauxgl.NewTriangleMesh(triangles)

	var (
		eye    = fauxglV(view.Eye)
		center = fauxglV(view.LookAt)
		up     = fauxglV(view.Up)
		light  = fauxgl.V(-0.75, 1, 0.25).Normalize()
	)
	mesh.BiUnitCube()
	context := fauxgl.NewContext(view.Width*scale, view.Height*scale)
	context.ClearColorBufferWith(fauxgl.HexColor(view.Background))
	aspect := float64(view.Width) / float64(view.Height)
	matrix := fauxgl.LookAt(eye, center, up).Perspective(view.Fovy, aspect, view.Near, view.Far)
	shader := fauxgl.NewPhongShader(matrix, light, eye)
	shader.ObjectColor = fauxgl.HexColor(view.Color)
	context.Shader = shader
	context.DrawMesh(mesh)
	img := context.Image()
	if scale > 1 {
		img = resize.Resize(uint(view.Width), uint(view.Height), img, resize.Bilinear)
	}
	return img, nil
}

// SavePreview writes the preview of m to a PNG file at path.
func SavePreview(path string, m *Mesh, view View) error {
	img, err := Preview(m, view)
	if err != nil {
		return err
	}
	return fauxgl.SavePNG(path, img)
}

func fauxglV(v r3.Vec) fauxgl.Vector {
	return fauxgl.V(v.X, v.Y, v.Z)
}

func fauxglVertex(v Vertex) fauxgl.Vertex {
	return fauxgl.Vertex{
		Position: fauxgl.V(float64(v.Position[0]), float64(v.Position[1]), float64(v.Position[2])),
		Normal:   fauxgl.V(float64(v.Normal[0]), float64(v.Normal[1]), float64(v.Normal[2])),
	}
}
