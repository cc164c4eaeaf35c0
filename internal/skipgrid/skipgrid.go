// Package skipgrid implements the empty-space-skipping grid: a coarse
// host-side min/max partition of the volume collapsed, on every
// transfer-function change, to a Boolean 3-D texture the kernel samples
// before walking into a cell.
package skipgrid

import (
	"unsafe"

	gl "github.com/go-gl/gl/v4.1-core/gl"

	"volray/internal/raycast"
	"volray/internal/transferfunction"
	"volray/internal/volume"
)

// DefaultDim is the default per-axis cell count.
const DefaultDim = 16

// Grid holds the two host-side dense min/max arrays and the boolean
// device texture derived from them. Only meaningful for bpc=1 volumes;
// callers must not construct one for bpc=2.
type Grid struct {
	nx, ny, nz    int    // cells per axis
	dnx, dny, dnz int    // voxels per axis
	cw, ch, cd    int    // voxels per cell per axis; the last cell absorbs any remainder
	min, max      []byte // length nx*ny*nz
	skip          []byte // length nx*ny*nz, 1 = skippable
	tex           uint32
}

// BuildMinMax partitions the volume into nx*ny*nz cells of fixed size
// (the last cell on each axis absorbs any remainder) and computes each
// cell's min/max scalar over its voxels. Built once per volume load.
// Skippable uses the same voxel-to-cell mapping, so a texture
// coordinate always reads the flag of the cell its voxel was counted
// into.
func BuildMinMax(desc volume.Descriptor, host []byte, nx, ny, nz int) *Grid {
	g := &Grid{
		nx: nx, ny: ny, nz: nz,
		dnx: desc.NX, dny: desc.NY, dnz: desc.NZ,
		cw: cellSize(desc.NX, nx),
		ch: cellSize(desc.NY, ny),
		cd: cellSize(desc.NZ, nz),
	}
	n := nx * ny * nz
	g.min = make([]byte, n)
	g.max = make([]byte, n)
	for i := range g.min {
		g.min[i] = 255
		g.max[i] = 0
	}

	for z := 0; z < desc.NZ; z++ {
		cz := min(z/g.cd, nz-1)
		for y := 0; y < desc.NY; y++ {
			cy := min(y/g.ch, ny-1)
			for x := 0; x < desc.NX; x++ {
				cx := min(x/g.cw, nx-1)
				v := host[z*desc.NX*desc.NY+y*desc.NX+x]
				ci := cz*nx*ny + cy*nx + cx
				if v < g.min[ci] {
					g.min[ci] = v
				}
				if v > g.max[ci] {
					g.max[ci] = v
				}
			}
		}
	}
	g.skip = make([]byte, n)
	return g
}

func cellSize(voxels, cells int) int {
	s := voxels / cells
	if s < 1 {
		s = 1
	}
	return s
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Recompute rebuilds the skippable flag for every cell against the
// current transfer function and reuploads the boolean device texture.
// Called whenever the transfer function changes.
func (g *Grid) Recompute(tf *transferfunction.Table) {
	g.computeSkip(tf.Size(), tf.AlphaAt)
	g.upload()
}

// computeSkip holds the pure cell-classification logic apart from the
// device upload, so it can be exercised against a plain alpha lookup
// function without a transfer function's device texture.
func (g *Grid) computeSkip(size int, alphaAt func(int) float32) {
	for i := range g.skip {
		skippable := byte(1)
		for s := int(g.min[i]) * size / 256; s <= int(g.max[i])*size/256 && s < size; s++ {
			if alphaAt(s) != 0 {
				skippable = 0
				break
			}
		}
		g.skip[i] = skippable
	}
}

func (g *Grid) upload() {
	if g.tex == 0 {
		gl.GenTextures(1, &g.tex)
	}
	gl.BindTexture(gl.TEXTURE_3D, g.tex)
	gl.TexImage3D(gl.TEXTURE_3D, 0, gl.R8, int32(g.nx), int32(g.ny), int32(g.nz), 0,
		gl.RED, gl.UNSIGNED_BYTE, unsafe.Pointer(&g.skip[0]))
	gl.TexParameteri(gl.TEXTURE_3D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_3D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_3D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_3D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_3D, gl.TEXTURE_WRAP_R, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_3D, 0)
}

// Skippable implements raycast.SkipGridSampler: the per-cell flag read
// the kernel performs before sampling the volume. The texture
// coordinate is converted to a voxel index first, then to a cell, the
// exact inverse of BuildMinMax's partition.
func (g *Grid) Skippable(tc raycast.Vec3) bool {
	if len(g.skip) == 0 {
		return false
	}
	x := min(clampIdx(int(tc.X*float32(g.dnx)), g.dnx)/g.cw, g.nx-1)
	y := min(clampIdx(int(tc.Y*float32(g.dny)), g.dny)/g.ch, g.ny-1)
	z := min(clampIdx(int(tc.Z*float32(g.dnz)), g.dnz)/g.cd, g.nz-1)
	return g.skip[z*g.nx*g.ny+y*g.nx+x] != 0
}

// CellSizes returns the per-axis voxel extent of one grid cell.
func (g *Grid) CellSizes() (int, int, int) { return g.cw, g.ch, g.cd }

// Dims returns the per-axis cell count.
func (g *Grid) Dims() (int, int, int) { return g.nx, g.ny, g.nz }

func clampIdx(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

// GLTexture returns the device boolean texture id.
func (g *Grid) GLTexture() uint32 { return g.tex }

// Destroy releases the device texture.
func (g *Grid) Destroy() {
	if g.tex != 0 {
		gl.DeleteTextures(1, &g.tex)
		g.tex = 0
	}
}
