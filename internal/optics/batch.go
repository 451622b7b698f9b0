package optics

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Batch is a bundle of rays for a single wavelength, sampled from a Grid×Grid
// array of field points with SPP rays per point. Rays are stored flat,
// index = cell*SPP + sample, with cell = row*Grid + col.
type Batch struct {
	Grid       int
	SPP        int
	Wavelength float64 // µm

	O     []r3.Vector // origins
	D     []r3.Vector // unit directions
	Valid []float64   // 1 while the ray is alive, 0 once vignetted or failed
}

// NewBatch allocates a batch with every ray marked valid.
func NewBatch(grid, spp int, wavelength float64) *Batch {
	n := grid * grid * spp
	b := &Batch{
		Grid:       grid,
		SPP:        spp,
		Wavelength: wavelength,
		O:          make([]r3.Vector, n),
		D:          make([]r3.Vector, n),
		Valid:      make([]float64, n),
	}
	for i := range b.Valid {
		b.Valid[i] = 1
	}
	return b
}

// Cells returns the number of field cells.
func (b *Batch) Cells() int {
	return b.Grid * b.Grid
}

// Len returns the number of rays.
func (b *Batch) Len() int {
	return len(b.O)
}

// Index returns the flat index of a sample inside a cell.
func (b *Batch) Index(cell, sample int) int {
	return cell*b.SPP + sample
}

// Clone returns a deep copy. Tracing mutates its input, so callers that reuse
// a batch across steps must trace a clone.
func (b *Batch) Clone() *Batch {
	c := &Batch{
		Grid:       b.Grid,
		SPP:        b.SPP,
		Wavelength: b.Wavelength,
		O:          append([]r3.Vector(nil), b.O...),
		D:          append([]r3.Vector(nil), b.D...),
		Valid:      append([]float64(nil), b.Valid...),
	}
	return c
}

// FirstSamples returns the origin of the first sample of every cell.
func (b *Batch) FirstSamples() []r3.Vector {
	points := make([]r3.Vector, b.Cells())
	for c := range points {
		points[c] = b.O[b.Index(c, 0)]
	}
	return points
}

// ProjectTo propagates every ray to the plane z and returns the (x, y)
// intersections. Invalid rays, and rays parallel to the plane, project to the
// origin.
func (b *Batch) ProjectTo(z float64) []r2.Point {
	xy := make([]r2.Point, b.Len())
	for i := range xy {
		if b.Valid[i] == 0 || b.D[i].Z == 0 {
			continue
		}
		t := (z - b.O[i].Z) / b.D[i].Z
		xy[i] = r2.Point{X: b.O[i].X + t*b.D[i].X, Y: b.O[i].Y + t*b.D[i].Y}
	}
	return xy
}

// ValidCount returns the number of valid rays in a cell.
func (b *Batch) ValidCount(cell int) float64 {
	var n float64
	for s := 0; s < b.SPP; s++ {
		n += b.Valid[b.Index(cell, s)]
	}
	return n
}
