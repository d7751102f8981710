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

// Package era5 samples ERA5 single-level reanalysis fields, read from
// NetCDF files, as the near-surface meteorology of SEBAL scenes.
package era5

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// TZ=UTC date --date="1900-01-01 00:00:00" +%s
const unixSecs1900 = -2208988800

// File is an ERA5 NetCDF file holding hourly fields on a regular
// latitude-longitude grid.
type File struct {
	nc api.Group

	// Times are the times of the records in the file, in ascending order.
	Times []time.Time

	lat, lon axis
	vars     map[string]api.VarGetter
}

// Open opens the ERA5 file at path.
func Open(path string) (*File, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("era5: opening %s: %v", path, err)
	}
	f := &File{nc: nc, vars: make(map[string]api.VarGetter)}
	if err := f.init(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("era5: %s: %v", path, err)
	}
	return f, nil
}

func (f *File) init() error {
	lat, err := f.coords("latitude")
	if err != nil {
		return err
	}
	if f.lat, err = newAxis("latitude", lat); err != nil {
		return err
	}
	lon, err := f.coords("longitude")
	if err != nil {
		return err
	}
	if f.lon, err = newAxis("longitude", lon); err != nil {
		return err
	}
	if f.Times, err = f.times(); err != nil {
		return err
	}
	if !sort.SliceIsSorted(f.Times, func(i, j int) bool { return f.Times[i].Before(f.Times[j]) }) {
		return fmt.Errorf("times are not in ascending order")
	}
	return nil
}

// Close closes the file.
func (f *File) Close() { f.nc.Close() }

func (f *File) variable(name string) (api.VarGetter, error) {
	if vg, ok := f.vars[name]; ok {
		return vg, nil
	}
	vg, err := f.nc.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %v", name, err)
	}
	f.vars[name] = vg
	return vg, nil
}

// Has returns whether the file contains the named variable.
func (f *File) Has(name string) bool {
	_, err := f.variable(name)
	return err == nil
}

// Units returns the units attribute of the named variable.
func (f *File) Units(name string) (string, error) {
	vg, err := f.variable(name)
	if err != nil {
		return "", err
	}
	u, ok := vg.Attributes().Get("units")
	if !ok {
		return "", fmt.Errorf("variable %s has no units", name)
	}
	s, ok := u.(string)
	if !ok {
		return "", fmt.Errorf("variable %s: units attribute is %T", name, u)
	}
	return strings.TrimSpace(s), nil
}

func (f *File) coords(name string) ([]float64, error) {
	vg, err := f.variable(name)
	if err != nil {
		return nil, err
	}
	v, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %v", name, err)
	}
	o, ok := float64s(v)
	if !ok {
		return nil, fmt.Errorf("%s has unsupported type %T", name, v)
	}
	return o, nil
}

// times reads the record times. Older files have a "time" variable in
// hours since 1900, newer ones a "valid_time" variable in seconds since
// 1970; both are handled by parsing the units attribute.
func (f *File) times() ([]time.Time, error) {
	name := "time"
	if !f.Has(name) {
		name = "valid_time"
	}
	v, err := f.coords(name)
	if err != nil {
		return nil, err
	}
	step, ref := time.Hour, time.Unix(unixSecs1900, 0).UTC()
	if units, err := f.Units(name); err == nil {
		if step, ref, err = parseTimeUnits(units); err != nil {
			return nil, fmt.Errorf("%s: %v", name, err)
		}
	}
	o := make([]time.Time, len(v))
	for i, x := range v {
		o[i] = ref.Add(time.Duration(math.Round(x * float64(step))))
	}
	return o, nil
}

// parseTimeUnits parses CF time units such as
// "hours since 1900-01-01 00:00:00.0".
func parseTimeUnits(units string) (step time.Duration, ref time.Time, err error) {
	parts := strings.SplitN(units, " since ", 2)
	if len(parts) != 2 {
		return 0, ref, fmt.Errorf("invalid time units '%s'", units)
	}
	switch strings.TrimSpace(parts[0]) {
	case "days":
		step = 24 * time.Hour
	case "hours":
		step = time.Hour
	case "minutes":
		step = time.Minute
	case "seconds":
		step = time.Second
	default:
		return 0, ref, fmt.Errorf("invalid time step in units '%s'", units)
	}
	s := strings.TrimSpace(parts[1])
	for _, layout := range []string{
		"2006-01-02 15:04:05.0", "2006-01-02 15:04:05", "2006-01-02T15:04:05",
		"2006-01-02T15:04:05Z07:00", "2006-01-02",
	} {
		if ref, err = time.ParseInLocation(layout, s, time.UTC); err == nil {
			return step, ref, nil
		}
	}
	return 0, ref, fmt.Errorf("invalid reference time in units '%s'", units)
}

// Field returns the unpacked values [lat][lon] of the named variable at
// record ti. Packed values are scaled by the scale_factor and add_offset
// attributes; fill and missing values are NaN.
func (f *File) Field(name string, ti int) ([][]float64, error) {
	vg, err := f.variable(name)
	if err != nil {
		return nil, err
	}
	if ti < 0 || ti >= len(f.Times) {
		return nil, fmt.Errorf("era5: record %d out of range [0, %d)", ti, len(f.Times))
	}
	v, err := vg.GetSlice(int64(ti), int64(ti)+1)
	if err != nil {
		return nil, fmt.Errorf("era5: reading %s record %d: %v", name, ti, err)
	}
	raw, ok := slice2D(v)
	if !ok {
		return nil, fmt.Errorf("era5: %s has unsupported type %T", name, v)
	}
	p := newPacking(vg.Attributes())
	for _, row := range raw {
		for j, x := range row {
			row[j] = p.unpack(x)
		}
	}
	if len(raw) != f.lat.n || (len(raw) > 0 && len(raw[0]) != f.lon.n) {
		return nil, fmt.Errorf("era5: %s is not on the file's latitude-longitude grid", name)
	}
	return raw, nil
}

// packing holds the attributes that define how values are stored.
type packing struct {
	scale, offset float64
	fill          []float64
}

func newPacking(attrs api.AttributeMap) packing {
	p := packing{scale: 1}
	if v, ok := attrFloat(attrs, "scale_factor"); ok {
		p.scale = v
	}
	if v, ok := attrFloat(attrs, "add_offset"); ok {
		p.offset = v
	}
	for _, k := range []string{"_FillValue", "missing_value"} {
		if v, ok := attrFloat(attrs, k); ok {
			p.fill = append(p.fill, v)
		}
	}
	return p
}

func (p packing) unpack(x float64) float64 {
	for _, f := range p.fill {
		if x == f {
			return math.NaN()
		}
	}
	return x*p.scale + p.offset
}

func attrFloat(attrs api.AttributeMap, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	if s, ok := float64s(v); ok && len(s) > 0 {
		return s[0], true
	}
	return 0, false
}

// float64s converts a one-dimensional numeric slice to float64.
func float64s(v interface{}) ([]float64, bool) {
	var o []float64
	switch t := v.(type) {
	case []float64:
		o = make([]float64, len(t))
		copy(o, t)
	case []float32:
		o = make([]float64, len(t))
		for i, x := range t {
			o[i] = float64(x)
		}
	case []int64:
		o = make([]float64, len(t))
		for i, x := range t {
			o[i] = float64(x)
		}
	case []int32:
		o = make([]float64, len(t))
		for i, x := range t {
			o[i] = float64(x)
		}
	case []int16:
		o = make([]float64, len(t))
		for i, x := range t {
			o[i] = float64(x)
		}
	case []int8:
		o = make([]float64, len(t))
		for i, x := range t {
			o[i] = float64(x)
		}
	default:
		return nil, false
	}
	return o, true
}

// slice2D converts the first record of a [time][lat][lon] slice to
// float64.
func slice2D(v interface{}) ([][]float64, bool) {
	var rows []interface{}
	switch t := v.(type) {
	case [][][]int16:
		if len(t) == 0 {
			return nil, false
		}
		for _, r := range t[0] {
			rows = append(rows, r)
		}
	case [][][]float32:
		if len(t) == 0 {
			return nil, false
		}
		for _, r := range t[0] {
			rows = append(rows, r)
		}
	case [][][]float64:
		if len(t) == 0 {
			return nil, false
		}
		for _, r := range t[0] {
			rows = append(rows, r)
		}
	default:
		return nil, false
	}
	o := make([][]float64, len(rows))
	for i, r := range rows {
		var ok bool
		if o[i], ok = float64s(r); !ok {
			return nil, false
		}
	}
	return o, true
}

// bracket returns the records before and after t and the fraction of the
// interval between them that has passed at t.
func (f *File) bracket(t time.Time) (i0, i1 int, frac float64, err error) {
	n := len(f.Times)
	if n == 0 || t.Before(f.Times[0]) || t.After(f.Times[n-1]) {
		return 0, 0, 0, fmt.Errorf("era5: time %s is outside of the file's time range", t.Format(time.RFC3339))
	}
	i1 = sort.Search(n, func(i int) bool { return !f.Times[i].Before(t) })
	if f.Times[i1].Equal(t) {
		return i1, i1, 0, nil
	}
	i0 = i1 - 1
	frac = float64(t.Sub(f.Times[i0])) / float64(f.Times[i1].Sub(f.Times[i0]))
	return i0, i1, frac, nil
}

// axis is a regularly spaced coordinate.
type axis struct {
	start, step float64
	n           int
}

func newAxis(name string, v []float64) (axis, error) {
	switch len(v) {
	case 0:
		return axis{}, fmt.Errorf("%s is empty", name)
	case 1:
		return axis{start: v[0], n: 1}, nil
	}
	a := axis{start: v[0], step: (v[len(v)-1] - v[0]) / float64(len(v)-1), n: len(v)}
	if a.step == 0 {
		return axis{}, fmt.Errorf("%s is not regularly spaced", name)
	}
	for i, x := range v {
		if math.Abs(x-a.at(i)) > 1.e-3*math.Abs(a.step) {
			return axis{}, fmt.Errorf("%s is not regularly spaced", name)
		}
	}
	return a, nil
}

func (a axis) at(i int) float64 { return a.start + float64(i)*a.step }

// nearest returns the index of the coordinate nearest to x, or false if x
// is more than half a step outside of the axis.
func (a axis) nearest(x float64) (int, bool) {
	if a.n == 1 {
		return 0, true
	}
	i := int(math.Round((x - a.start) / a.step))
	if i < 0 || i >= a.n {
		return 0, false
	}
	return i, true
}

// index returns the indices of the grid node nearest to lon, lat.
// Longitudes are wrapped to the range of the file.
func (f *File) index(lon, lat float64) (row, col int, ok bool) {
	if row, ok = f.lat.nearest(lat); !ok {
		return 0, 0, false
	}
	lo, hi := math.Min(f.lon.start, f.lon.at(f.lon.n-1)), math.Max(f.lon.start, f.lon.at(f.lon.n-1))
	half := math.Abs(f.lon.step) / 2
	for lon < lo-half {
		lon += 360
	}
	for lon > hi+half {
		lon -= 360
	}
	col, ok = f.lon.nearest(lon)
	return row, col, ok
}
