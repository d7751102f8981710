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

package sebalutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/sebal"
	"github.com/spatialmodel/sebal/cloud"
	"github.com/spf13/cast"
)

// ParamsFromConfig reads the algorithm parameters from a viper
// configuration.
func ParamsFromConfig(cfg *viper.Viper) (sebal.Params, error) {
	p := sebal.Params{
		ColdNDVIPercentile: cfg.GetFloat64("Endmember.ColdNDVIPercentile"),
		ColdLSTPercentile:  cfg.GetFloat64("Endmember.ColdLSTPercentile"),
		HotNDVIPercentile:  cfg.GetFloat64("Endmember.HotNDVIPercentile"),
		HotLSTPercentile:   cfg.GetFloat64("Endmember.HotLSTPercentile"),
		MinLST:             cfg.GetFloat64("Endmember.MinLST"),
		Convergence:        cfg.GetFloat64("Solver.Convergence"),
		MaxIterations:      cfg.GetInt("Solver.MaxIterations"),
		StationVegHeight:   cfg.GetFloat64("Solver.StationVegHeight"),
		BlendingHeight:     cfg.GetFloat64("Solver.BlendingHeight"),
		WindHeight:         cfg.GetFloat64("Solver.WindHeight"),
		SAVIL:              cfg.GetFloat64("SAVIL"),
		LapseRate:          cfg.GetFloat64("LapseRate"),
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("sebalutil: invalid configuration: %v", err)
	}
	return p, nil
}

// checkOutputVars removes end lines and expands environment
// variables in the output variables.
func checkOutputVars(vars map[string]string) (map[string]string, error) {
	if len(vars) == 0 {
		return nil, fmt.Errorf("there are no variables specified for output. Please fill in " +
			"the OutputVariables configuration and try again")
	}
	o := make(map[string]string, len(vars))
	for k, v := range vars {
		v = strings.Replace(v, "\r\n", " ", -1)
		v = strings.Replace(v, "\n", " ", -1)
		o[os.ExpandEnv(k)] = os.ExpandEnv(v)
	}
	return o, nil
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expand any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`you need to specify an output file configuration variable (for example: OutputFile="output.nc")`)
	}
	f = os.ExpandEnv(f)
	if cloud.IsBlob(f) {
		loc, err := cloud.ParseLocation(f)
		if err != nil {
			return f, err
		}
		b, err := loc.Open(context.TODO())
		if err != nil {
			return f, fmt.Errorf("sebal: error when checking OutputFile location: %v", err)
		}
		b.Close()
		return f, nil
	}
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("sebal: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// checkLogFile fills in a default value for the log file path if one isn't
// specified.
func checkLogFile(logFile, outputFile string) string {
	if logFile == "" {
		logFile = strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + ".log"
	}
	return os.ExpandEnv(logFile)
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		if v == "" {
			return make(map[string]string), nil
		}
		d := json.NewDecoder(bytes.NewBufferString(v))
		o := make(map[string]string)
		if err := d.Decode(&o); err != nil {
			return nil, fmt.Errorf("sebalutil: parsing %s: %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("sebalutil: invalid type for %s: %#v", varName, i)
	}
}

func isURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// parseAOI returns the area of interest polygon in the given GeoJSON
// file, which is in longitude and latitude, projected to spatial
// reference proj. An empty proj means the scene grids are also in
// longitude and latitude. It returns nil if file is empty.
func parseAOI(ctx context.Context, file, proj string) (geom.Polygonal, error) {
	if file == "" {
		return nil, nil
	}
	fname, err := cloud.Download(ctx, os.ExpandEnv(file))
	if err != nil {
		return nil, err
	}
	b, err := ioutil.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("reading AOI file: %w", err)
	}
	aoi, err := decodeAOI(b)
	if err != nil {
		return nil, fmt.Errorf("decoding AOI file: %w", err)
	}
	if proj == "" || proj == wgs84 {
		return aoi, nil
	}
	t, err := transform(wgs84, proj)
	if err != nil {
		return nil, err
	}
	g, err := aoi.Transform(t)
	if err != nil {
		return nil, fmt.Errorf("projecting AOI: %w", err)
	}
	return g.(geom.Polygonal), nil
}

// parsePoints returns the points in m, a map of names to
// "longitude,latitude", in spatial reference proj and sorted by name. An
// empty proj means the scene grids are in longitude and latitude.
func parsePoints(m map[string]string, proj string) ([]sebal.Point, error) {
	if len(m) == 0 {
		return nil, nil
	}
	var t func(x, y float64) (float64, float64, error)
	if proj != "" && proj != wgs84 {
		tr, err := transform(wgs84, proj)
		if err != nil {
			return nil, err
		}
		t = tr
	}
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	points := make([]sebal.Point, len(names))
	for i, n := range names {
		ll := strings.Split(m[n], ",")
		if len(ll) != 2 {
			return nil, fmt.Errorf("sebalutil: point %s: %q is not in the format \"longitude,latitude\"", n, m[n])
		}
		lon, err := cast.ToFloat64E(strings.TrimSpace(ll[0]))
		if err != nil {
			return nil, fmt.Errorf("sebalutil: point %s longitude: %v", n, err)
		}
		lat, err := cast.ToFloat64E(strings.TrimSpace(ll[1]))
		if err != nil {
			return nil, fmt.Errorf("sebalutil: point %s latitude: %v", n, err)
		}
		points[i] = sebal.Point{Name: n, X: lon, Y: lat}
		if t != nil {
			if points[i].X, points[i].Y, err = t(lon, lat); err != nil {
				return nil, fmt.Errorf("sebalutil: projecting point %s: %v", n, err)
			}
		}
	}
	return points, nil
}

// decodeAOI decodes a GeoJSON Polygon or MultiPolygon geometry.
// The geojson package only handles single polygons, so each member of a
// MultiPolygon is decoded as its own Polygon.
func decodeAOI(b []byte) (geom.Polygonal, error) {
	var g geojson.Geometry
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, err
	}
	switch g.Type {
	case "Polygon":
		p, err := geojson.FromGeoJSON(&g)
		if err != nil {
			return nil, err
		}
		return p.(geom.Polygon), nil
	case "MultiPolygon":
		members, ok := g.Coordinates.([]interface{})
		if !ok || len(members) == 0 {
			return nil, geojson.InvalidGeometryError{}
		}
		mp := make(geom.MultiPolygon, len(members))
		for i, c := range members {
			p, err := geojson.FromGeoJSON(&geojson.Geometry{Type: "Polygon", Coordinates: c})
			if err != nil {
				return nil, fmt.Errorf("polygon %d: %w", i, err)
			}
			mp[i] = p.(geom.Polygon)
		}
		return mp, nil
	default:
		return nil, fmt.Errorf("invalid AOI geometry type %s", g.Type)
	}
}

// demSource returns a cached DEM source for the DEM raster at path.
func demSource(ctx context.Context, path string, cacheSize int) (sebal.DEMSource, error) {
	if path == "" {
		return nil, fmt.Errorf("sebal: you need to specify a DEMFile")
	}
	r, err := readRasterFile(ctx, os.ExpandEnv(path))
	if err != nil {
		return nil, err
	}
	if !r.HasBand(sebal.BandElevation) {
		return nil, fmt.Errorf("sebal: DEM file %s has no %s variable", path, sebal.BandElevation)
	}
	if cacheSize < 1 {
		cacheSize = 1
	}
	return NewCachedDEM(ResampledDEM{Raster: r}, cacheSize), nil
}

// meteorologySource returns the meteorology raster at metFile or, if
// that is empty, the ERA5 file at era5File. It returns nil if both are
// empty.
func meteorologySource(ctx context.Context, metFile, era5Path string, log logrus.FieldLogger) (sebal.MeteorologySource, error) {
	metFile, era5Path = os.ExpandEnv(metFile), os.ExpandEnv(era5Path)
	switch {
	case metFile != "" && era5Path != "":
		return nil, fmt.Errorf("sebal: only one of MeteorologyFile and ERA5File may be specified")
	case metFile != "":
		r, err := readRasterFile(ctx, metFile)
		if err != nil {
			return nil, err
		}
		return sebal.RasterMeteorology{Raster: r}, nil
	case era5Path != "":
		return era5File{path: era5Path, log: log}, nil
	}
	return nil, nil
}
