/*
Copyright © 2019 the SEBAL authors.
This file is part of SEBAL.

SEBAL is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

SEBAL is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with SEBAL.  If not, see <http://www.gnu.org/licenses/>.
*/

package sebal

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
)

// Grid describes the georeferencing of a raster. Row 0 is the
// southernmost row and column 0 the westernmost column.
type Grid struct {
	X0, Y0 float64 // lower left corner
	Dx, Dy float64 // pixel size
	Nx, Ny int     // number of columns and rows

	// Proj is the spatial reference of the grid in Proj4 or WKT format.
	// If it is empty, the grid is assumed to be in degrees longitude
	// and latitude.
	Proj string
}

// Len returns the number of pixels in the grid.
func (g *Grid) Len() int { return g.Nx * g.Ny }

// Index returns the one-dimensional index of the pixel at row, col.
func (g *Grid) Index(row, col int) int { return row*g.Nx + col }

// RowCol returns the row and column of pixel i.
func (g *Grid) RowCol(i int) (row, col int) { return i / g.Nx, i % g.Nx }

// Center returns the center point of pixel i.
func (g *Grid) Center(i int) geom.Point {
	row, col := g.RowCol(i)
	return geom.Point{
		X: g.X0 + (float64(col)+0.5)*g.Dx,
		Y: g.Y0 + (float64(row)+0.5)*g.Dy,
	}
}

// Pixel returns the index of the pixel that contains p, or false if p is
// outside of the grid.
func (g *Grid) Pixel(p geom.Point) (int, bool) {
	col := int(math.Floor((p.X - g.X0) / g.Dx))
	row := int(math.Floor((p.Y - g.Y0) / g.Dy))
	if col < 0 || col >= g.Nx || row < 0 || row >= g.Ny {
		return 0, false
	}
	return g.Index(row, col), true
}

// Cell returns the outline of pixel i.
func (g *Grid) Cell(i int) geom.Polygon {
	row, col := g.RowCol(i)
	x := g.X0 + float64(col)*g.Dx
	y := g.Y0 + float64(row)*g.Dy
	return geom.Polygon{{
		{X: x, Y: y},
		{X: x + g.Dx, Y: y},
		{X: x + g.Dx, Y: y + g.Dy},
		{X: x, Y: y + g.Dy},
		{X: x, Y: y},
	}}
}

// Bounds returns the extent of the grid.
func (g *Grid) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: g.X0, Y: g.Y0},
		Max: geom.Point{X: g.X0 + float64(g.Nx)*g.Dx, Y: g.Y0 + float64(g.Ny)*g.Dy},
	}
}

// SameAs returns whether g and o describe the same pixels.
func (g *Grid) SameAs(o *Grid) bool {
	const tol = 1.e-9
	return g.Nx == o.Nx && g.Ny == o.Ny && g.Proj == o.Proj &&
		math.Abs(g.X0-o.X0) <= tol*math.Max(1, math.Abs(g.X0)) &&
		math.Abs(g.Y0-o.Y0) <= tol*math.Max(1, math.Abs(g.Y0)) &&
		math.Abs(g.Dx-o.Dx) <= tol*math.Abs(g.Dx) &&
		math.Abs(g.Dy-o.Dy) <= tol*math.Abs(g.Dy)
}

// Band is a single layer of a raster. NaN values are no-data.
type Band struct {
	Description string
	Units       string
	Data        *sparse.DenseArray // dimensions [y, x]
}

// Raster is a set of bands that share a grid.
type Raster struct {
	Grid
	Bands map[string]*Band
}

// NewRaster returns an empty raster on grid g.
func NewRaster(g Grid) *Raster {
	return &Raster{Grid: g, Bands: make(map[string]*Band)}
}

// AddBand adds a band to the raster, replacing any band of the same name.
func (r *Raster) AddBand(name, description, units string, data *sparse.DenseArray) error {
	if len(data.Shape) != 2 || data.Shape[0] != r.Ny || data.Shape[1] != r.Nx {
		return fmt.Errorf("sebal: band %s has shape %v but the raster is [%d %d]",
			name, data.Shape, r.Ny, r.Nx)
	}
	r.Bands[name] = &Band{Description: description, Units: units, Data: data}
	return nil
}

// NewBand adds a band filled with NaN to the raster and returns its data.
func (r *Raster) NewBand(name, description, units string) []float64 {
	data := sparse.ZerosDense(r.Ny, r.Nx)
	for i := range data.Elements {
		data.Elements[i] = math.NaN()
	}
	r.Bands[name] = &Band{Description: description, Units: units, Data: data}
	return data.Elements
}

// FillBand adds a band where every pixel has value v.
func (r *Raster) FillBand(name, description, units string, v float64) {
	e := r.NewBand(name, description, units)
	for i := range e {
		e[i] = v
	}
}

// Band returns the data of the named band.
func (r *Raster) Band(name string) ([]float64, error) {
	b, ok := r.Bands[name]
	if !ok {
		return nil, fmt.Errorf("sebal: missing band %s", name)
	}
	return b.Data.Elements, nil
}

// bands returns the data of the named bands.
func (r *Raster) bands(names ...string) ([][]float64, error) {
	o := make([][]float64, len(names))
	for i, n := range names {
		var err error
		if o[i], err = r.Band(n); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// HasBand returns whether the raster has the named band.
func (r *Raster) HasBand(name string) bool {
	_, ok := r.Bands[name]
	return ok
}

// BandNames returns the sorted band names.
func (r *Raster) BandNames() []string {
	names := make([]string, 0, len(r.Bands))
	for n := range r.Bands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Value returns the value of pixel i in the named band, or NaN if the
// band does not exist.
func (r *Raster) Value(name string, i int) float64 {
	b, ok := r.Bands[name]
	if !ok {
		return math.NaN()
	}
	return b.Data.Elements[i]
}

// Valid returns whether pixel i has data in all of the named bands.
func (r *Raster) Valid(i int, names ...string) bool {
	for _, n := range names {
		if math.IsNaN(r.Value(n, i)) {
			return false
		}
	}
	return true
}

// Copy returns a deep copy of r.
func (r *Raster) Copy() *Raster {
	o := NewRaster(r.Grid)
	for n, b := range r.Bands {
		o.Bands[n] = &Band{Description: b.Description, Units: b.Units, Data: b.Data.Copy()}
	}
	return o
}

// ReadRaster reads a raster from a NetCDF file.
func ReadRaster(rw cdf.ReaderWriterAt) (*Raster, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("sebal.ReadRaster: %v", err)
	}
	return readRaster(f)
}

func readRaster(f *cdf.File) (*Raster, error) {
	dataVersion, ok := f.Header.GetAttribute("", "data_version").(string)
	if !ok || dataVersion != DataVersion {
		return nil, fmt.Errorf("sebal.ReadRaster: data version %s is incompatible "+
			"with the required version %s", dataVersion, DataVersion)
	}
	var g Grid
	for _, a := range []struct {
		name string
		v    *float64
	}{{"dx", &g.Dx}, {"dy", &g.Dy}, {"x0", &g.X0}, {"y0", &g.Y0}} {
		v, ok := f.Header.GetAttribute("", a.name).([]float64)
		if !ok || len(v) != 1 {
			return nil, fmt.Errorf("sebal.ReadRaster: attribute %s must be a single float64 but is %#v",
				a.name, f.Header.GetAttribute("", a.name))
		}
		*a.v = v[0]
	}
	for _, a := range []struct {
		name string
		v    *int
	}{{"nx", &g.Nx}, {"ny", &g.Ny}} {
		v, ok := f.Header.GetAttribute("", a.name).([]int32)
		if !ok || len(v) != 1 || v[0] <= 0 {
			return nil, fmt.Errorf("sebal.ReadRaster: attribute %s must be a single positive int32 but is %#v",
				a.name, f.Header.GetAttribute("", a.name))
		}
		*a.v = int(v[0])
	}
	if p, ok := f.Header.GetAttribute("", "proj").(string); ok {
		g.Proj = p
	}

	r := NewRaster(g)
	for _, v := range f.Header.Variables() {
		dims := f.Header.Lengths(v)
		if len(dims) != 2 || dims[0] != g.Ny || dims[1] != g.Nx {
			return nil, fmt.Errorf("sebal.ReadRaster: variable %s has dims %v but grid is [%d %d]",
				v, dims, g.Ny, g.Nx)
		}
		data := sparse.ZerosDense(dims...)
		tmp := make([]float32, len(data.Elements))
		if _, err := f.Reader(v, nil, nil).Read(tmp); err != nil {
			return nil, fmt.Errorf("sebal.ReadRaster: reading %s: %v", v, err)
		}
		for i, val := range tmp {
			data.Elements[i] = float64(val)
		}
		description, _ := f.Header.GetAttribute(v, "description").(string)
		units, _ := f.Header.GetAttribute(v, "units").(string)
		r.Bands[v] = &Band{Description: description, Units: units, Data: data}
	}
	return r, nil
}

// Write writes r to NetCDF file w.
func (r *Raster) Write(w *os.File) error {
	return r.write(w, nil)
}

// write writes r to w with the additional global attributes in attrs.
func (r *Raster) write(w *os.File, attrs map[string]interface{}) error {
	h := cdf.NewHeader([]string{"y", "x"}, []int{r.Ny, r.Nx})
	h.AddAttribute("", "comment", "SEBAL raster data file")
	h.AddAttribute("", "x0", []float64{r.X0})
	h.AddAttribute("", "y0", []float64{r.Y0})
	h.AddAttribute("", "dx", []float64{r.Dx})
	h.AddAttribute("", "dy", []float64{r.Dy})
	h.AddAttribute("", "nx", []int32{int32(r.Nx)})
	h.AddAttribute("", "ny", []int32{int32(r.Ny)})
	if r.Proj != "" {
		h.AddAttribute("", "proj", r.Proj)
	}
	h.AddAttribute("", "data_version", DataVersion)

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.AddAttribute("", k, attrs[k])
	}

	// Sort the names so they write in the same order every time.
	names := r.BandNames()
	for _, name := range names {
		b := r.Bands[name]
		h.AddVariable(name, []string{"y", "x"}, []float32{0})
		if b.Description != "" {
			h.AddAttribute(name, "description", b.Description)
		}
		if b.Units != "" {
			h.AddAttribute(name, "units", b.Units)
		}
	}
	h.Define()

	f, err := cdf.Create(w, h) // writes the header to w
	if err != nil {
		return err
	}
	for _, name := range names {
		if err = writeNCF(f, name, r.Bands[name].Data); err != nil {
			return fmt.Errorf("sebal: writing variable %s to netcdf file: %v", name, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

func writeNCF(f *cdf.File, Var string, data *sparse.DenseArray) error {
	// Check that data matches dimensions.
	n := 1
	for _, v := range data.Shape {
		n *= v
	}
	if len(data.Elements) != n {
		return fmt.Errorf("dims are %d but array length is %d", n, len(data.Elements))
	}

	data32 := make([]float32, len(data.Elements))
	for i, e := range data.Elements {
		data32[i] = float32(e)
	}
	end := f.Header.Lengths(Var)
	start := make([]int, len(end))
	_, err := f.Writer(Var, start, end).Write(data32)
	return err
}
