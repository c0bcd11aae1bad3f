package render

import "io"

// RenderAll reads the full contents of a Renderer and returns the slice read.
// It does not return error on io.EOF, like the io.ReadAll implementation.
func RenderAll(r Renderer) ([]Triangle3, error) {
	var err error
	var nt int
	result := make([]Triangle3, 0, 1<<12)
	buf := make([]Triangle3, 1024)
	for {
		nt, err = r.ReadTriangles(buf)
		result = append(result, buf[:nt]...)
		if err != nil {
			break
		}
	}
	if err == io.EOF {
		return result, nil
	}
	return result, err
}

// meshReader streams the triangles of a Mesh.
type meshReader struct {
	m    *Mesh
	next int // next triangle to read
}

func (r *meshReader) ReadTriangles(dst []Triangle3) (n int, err error) {
	total := r.m.TriangleCount()
	for n < len(dst) && r.next < total {
		dst[n] = r.m.Triangle(r.next)
		n++
		r.next++
	}
	if r.next == total {
		return n, io.EOF
	}
	return n, nil
}
