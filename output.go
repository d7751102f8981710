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
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
)

// wgs84WKT is written as the .prj file of shapefiles whose grid is in
// longitude and latitude.
const wgs84WKT = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["Degree",0.017453292519943295]]`

// Outputter calculates output variables from the bands of a raster and
// writes them to a file.
//
// outputVariables maps the names of the variables to expressions that
// define how they are calculated. Expressions can refer to band names,
// other output variables, and functions. Each expression is evaluated
// separately for each pixel, and masked (NaN) band values propagate to
// the results.
type Outputter struct {
	fileName        string
	outputVariables map[string]string
	outputFunctions map[string]govaluate.ExpressionFunction

	order []string // output variables in dependency order
	exprs map[string]*govaluate.EvaluableExpression
	bands []string // bands required by the expressions
}

// NewOutputter initializes a new Outputter and adds a set of default
// output functions:
//
// 'exp(x)' which applies the exponential function e^x.
//
// 'max(x, y)' and 'min(x, y)' which return the larger and smaller argument.
//
// 'inches(x)' which converts millimeters to inches.
func NewOutputter(fileName string, outputVariables map[string]string, outputFunctions map[string]govaluate.ExpressionFunction) (*Outputter, error) {
	floatArgs := func(name string, n int, arg []interface{}) ([]float64, error) {
		if len(arg) != n {
			return nil, fmt.Errorf("sebal: got %d arguments for function '%s', but needs %d", len(arg), name, n)
		}
		o := make([]float64, n)
		for i, a := range arg {
			v, ok := a.(float64)
			if !ok {
				return nil, fmt.Errorf("sebal: argument %d of function '%s' is %T, not a number", i, name, a)
			}
			o[i] = v
		}
		return o, nil
	}
	funcs := map[string]govaluate.ExpressionFunction{
		"exp": func(arg ...interface{}) (interface{}, error) {
			x, err := floatArgs("exp", 1, arg)
			if err != nil {
				return nil, err
			}
			return math.Exp(x[0]), nil
		},
		"max": func(arg ...interface{}) (interface{}, error) {
			x, err := floatArgs("max", 2, arg)
			if err != nil {
				return nil, err
			}
			return math.Max(x[0], x[1]), nil
		},
		"min": func(arg ...interface{}) (interface{}, error) {
			x, err := floatArgs("min", 2, arg)
			if err != nil {
				return nil, err
			}
			return math.Min(x[0], x[1]), nil
		},
		"inches": func(arg ...interface{}) (interface{}, error) {
			x, err := floatArgs("inches", 1, arg)
			if err != nil {
				return nil, err
			}
			return x[0] / 25.4, nil
		},
	}
	for k, v := range outputFunctions {
		funcs[k] = v
	}

	o := &Outputter{
		fileName:        fileName,
		outputVariables: make(map[string]string, len(outputVariables)),
		outputFunctions: funcs,
		exprs:           make(map[string]*govaluate.EvaluableExpression),
	}
	for k, v := range outputVariables {
		o.outputVariables[k] = v
	}
	if len(o.outputVariables) == 0 {
		return nil, fmt.Errorf("sebal: no output variables")
	}
	if err := checkOutputNames(o.outputVariables); err != nil {
		return nil, err
	}
	if err := o.resolve(); err != nil {
		return nil, err
	}
	return o, nil
}

// resolve parses the expressions and orders the output variables so that
// each is calculated after the output variables it refers to.
func (o *Outputter) resolve() error {
	deps := make(map[string][]string)
	bands := make(map[string]bool)
	for name, val := range o.outputVariables {
		e, err := govaluate.NewEvaluableExpressionWithFunctions(val, o.outputFunctions)
		if err != nil {
			return fmt.Errorf("sebal: output variable %s: %v", name, err)
		}
		o.exprs[name] = e
		for _, v := range removeDuplicates(e.Vars()) {
			if _, ok := o.outputVariables[v]; ok && v != name {
				deps[name] = append(deps[name], v)
			} else {
				bands[v] = true
			}
		}
	}

	names := make([]string, 0, len(o.outputVariables))
	for n := range o.outputVariables {
		names = append(names, n)
	}
	sort.Strings(names)
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)
	var visit func(n string) error
	visit = func(n string) error {
		switch state[n] {
		case visiting:
			return fmt.Errorf("sebal: output variable %s refers to itself", n)
		case done:
			return nil
		}
		state[n] = visiting
		for _, d := range deps[n] {
			if err := visit(d); err != nil {
				return err
			}
		}
		state[n] = done
		o.order = append(o.order, n)
		return nil
	}
	for _, n := range names {
		if err := visit(n); err != nil {
			return err
		}
	}
	for b := range bands {
		o.bands = append(o.bands, b)
	}
	sort.Strings(o.bands)
	return nil
}

// removeDuplicates removes all duplicated strings from a slice, returning a
// slice that contains only unique strings.
func removeDuplicates(s []string) []string {
	result := make([]string, 0, len(s))
	seen := make(map[string]bool)
	for _, val := range s {
		if !seen[val] {
			result = append(result, val)
			seen[val] = true
		}
	}
	return result
}

var outputNameRegexp = regexp.MustCompile(`^[A-Za-z]\w*$`)

// checkOutputNames checks (1) if any output variable names exceed 10 characters
// and (2) if any output variable names include characters that are unsupported
// in shapefile field names.
func checkOutputNames(o map[string]string) error {
	for key := range o {
		long := len(key) > 10
		charOK := outputNameRegexp.MatchString(key)
		switch {
		case long && !charOK:
			return fmt.Errorf("sebal: output variable name '%s' exceeds 10 characters and includes unsupported character(s)", key)
		case long:
			return fmt.Errorf("sebal: output variable name '%s' exceeds 10 characters", key)
		case !charOK:
			return fmt.Errorf("sebal: output variable name '%s' includes unsupported characters", key)
		}
	}
	return nil
}

// Bands returns the names of the raster bands the output variables need.
func (o *Outputter) Bands() []string { return o.bands }

// CheckOutputVars ensures the output variables can be calculated from r.
func (o *Outputter) CheckOutputVars(r *Raster) error {
	for _, b := range o.bands {
		if !r.HasBand(b) {
			return fmt.Errorf("sebal: undefined variable name '%s'", b)
		}
	}
	return nil
}

// Results calculates the output variables for every pixel of r.
func (o *Outputter) Results(r *Raster) (map[string][]float64, error) {
	if err := o.CheckOutputVars(r); err != nil {
		return nil, err
	}
	in, err := r.bands(o.bands...)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]float64, len(o.order))
	for _, n := range o.order {
		out[n] = make([]float64, r.Len())
	}
	params := make(map[string]interface{}, len(o.bands)+len(o.order))
	for i := 0; i < r.Len(); i++ {
		for j, b := range o.bands {
			params[b] = in[j][i]
		}
		for _, n := range o.order {
			v, err := o.exprs[n].Evaluate(params)
			if err != nil {
				return nil, fmt.Errorf("sebal: evaluating %s at pixel %d: %v", n, i, err)
			}
			f, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("sebal: output variable %s is %T, not a number", n, v)
			}
			out[n][i] = f
			params[n] = f
		}
	}
	return out, nil
}

// Output calculates the output variables from r and writes them to the
// output file. Files ending in ".nc" are written as NetCDF rasters; all
// other files are written as shapefiles with one polygon per pixel that
// has at least one unmasked output value.
func (o *Outputter) Output(r *Raster) error {
	results, err := o.Results(r)
	if err != nil {
		return err
	}
	if strings.ToLower(filepath.Ext(o.fileName)) == ".nc" {
		return o.outputNetCDF(r, results)
	}
	return o.outputShapefile(r, results)
}

func (o *Outputter) outputNetCDF(r *Raster, results map[string][]float64) error {
	out := NewRaster(r.Grid)
	for _, n := range o.order {
		b := out.NewBand(n, o.outputVariables[n], "")
		copy(b, results[n])
	}
	f, err := os.Create(o.fileName)
	if err != nil {
		return fmt.Errorf("sebal: creating output file: %v", err)
	}
	if err := out.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (o *Outputter) outputShapefile(r *Raster, results map[string][]float64) error {
	vars := make([]string, len(o.order))
	copy(vars, o.order)
	sort.Strings(vars)
	fields := make([]goshp.Field, len(vars))
	for i, v := range vars {
		fields[i] = goshp.FloatField(v, 14, 8)
	}

	// remove extension and replace it with .shp
	fileBase := strings.TrimSuffix(o.fileName, filepath.Ext(o.fileName))
	shape, err := shp.NewEncoderFromFields(fileBase+".shp", goshp.POLYGON, fields...)
	if err != nil {
		return fmt.Errorf("sebal: creating output shapefile: %v", err)
	}
	for i := 0; i < r.Len(); i++ {
		vals := make([]interface{}, len(vars))
		keep := false
		for j, v := range vars {
			x := results[v][i]
			if !math.IsNaN(x) {
				keep = true
			}
			vals[j] = x
		}
		if !keep {
			continue
		}
		if err := shape.EncodeFields(r.Cell(i), vals...); err != nil {
			shape.Close()
			return fmt.Errorf("sebal: writing output shapefile: %v", err)
		}
	}
	shape.Close()

	prj := r.Proj
	if prj == "" {
		prj = wgs84WKT
	} else if !strings.HasPrefix(prj, "PROJCS") && !strings.HasPrefix(prj, "GEOGCS") {
		return nil // not WKT; no .prj file
	}
	f, err := os.Create(fileBase + ".prj")
	if err != nil {
		return fmt.Errorf("sebal: creating output prj file: %v", err)
	}
	fmt.Fprint(f, prj)
	return f.Close()
}
