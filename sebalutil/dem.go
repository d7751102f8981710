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
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/ctessum/geom/proj"
	"github.com/ctessum/requestcache"
	"github.com/spatialmodel/sebal"
	"github.com/spatialmodel/sebal/internal/hash"
)

// wgs84 is the spatial reference of grids without a projection.
const wgs84 = "+proj=longlat +datum=WGS84 +no_defs"

// ResampledDEM is a sebal.DEMSource that samples an elevation raster
// onto any requested grid, taking the DEM pixel that contains each
// requested pixel center. Pixels outside of the DEM are masked.
type ResampledDEM struct {
	*sebal.Raster
}

// Elevation implements sebal.DEMSource.
func (d ResampledDEM) Elevation(ctx context.Context, g *sebal.Grid) (*sebal.Raster, error) {
	if d.Grid.SameAs(g) {
		return sebal.RasterDEM{Raster: d.Raster}.Elevation(ctx, g)
	}
	elev, err := d.Band(sebal.BandElevation)
	if err != nil {
		return nil, err
	}
	x, y, err := centers(g, d.Proj)
	if err != nil {
		return nil, err
	}
	r := sebal.NewRaster(*g)
	out := r.NewBand(sebal.BandElevation, "Elevation", "m")
	for i := range out {
		col := int(math.Floor((x[i] - d.X0) / d.Dx))
		row := int(math.Floor((y[i] - d.Y0) / d.Dy))
		if col < 0 || col >= d.Nx || row < 0 || row >= d.Ny {
			continue
		}
		out[i] = elev[d.Index(row, col)]
	}
	return r, nil
}

// centers returns the pixel centers of g in spatial reference dst.
func centers(g *sebal.Grid, dst string) (x, y []float64, err error) {
	switch {
	case g.Proj == dst:
		x, y = make([]float64, g.Len()), make([]float64, g.Len())
		for i := range x {
			c := g.Center(i)
			x[i], y[i] = c.X, c.Y
		}
		return x, y, nil
	case dst == "":
		return sebal.LonLat(g)
	}
	src := g.Proj
	if src == "" {
		src = wgs84
	}
	t, err := transform(src, dst)
	if err != nil {
		return nil, nil, err
	}
	x, y = make([]float64, g.Len()), make([]float64, g.Len())
	for i := range x {
		c := g.Center(i)
		if x[i], y[i], err = t(c.X, c.Y); err != nil {
			return nil, nil, fmt.Errorf("sebalutil: transforming pixel %d: %v", i, err)
		}
	}
	return x, y, nil
}

// transform returns a transform between two spatial references in Proj4
// or WKT format.
func transform(src, dst string) (proj.Transformer, error) {
	s, err := proj.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("sebalutil: parsing projection %q: %v", src, err)
	}
	d, err := proj.Parse(dst)
	if err != nil {
		return nil, fmt.Errorf("sebalutil: parsing projection %q: %v", dst, err)
	}
	t, err := s.NewTransform(d)
	if err != nil {
		return nil, fmt.Errorf("sebalutil: creating transform: %v", err)
	}
	return t, nil
}

// CachedDEM is a sebal.DEMSource that remembers the elevation rasters of
// recently requested grids, so scenes that share a grid share a DEM.
// Concurrent requests for the same grid are only processed once.
// The returned rasters are shared and must not be modified.
type CachedDEM struct {
	cache *requestcache.Cache
}

// NewCachedDEM returns a DEM source that caches up to entries results
// from src.
func NewCachedDEM(src sebal.DEMSource, entries int) *CachedDEM {
	return &CachedDEM{
		cache: requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
			g := request.(sebal.Grid)
			return src.Elevation(ctx, &g)
		}, runtime.GOMAXPROCS(-1),
			requestcache.Deduplicate(), requestcache.Memory(entries)),
	}
}

// Elevation implements sebal.DEMSource.
func (d *CachedDEM) Elevation(ctx context.Context, g *sebal.Grid) (*sebal.Raster, error) {
	req := d.cache.NewRequest(ctx, *g, hash.Key("dem", *g))
	result, err := req.Result()
	if err != nil {
		return nil, err
	}
	return result.(*sebal.Raster), nil
}
