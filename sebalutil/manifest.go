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
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/sebal"
	"github.com/spatialmodel/sebal/cloud"
	"github.com/spatialmodel/sebal/era5"
)

// Manifest lists the scenes of a collection. An example manifest is:
//
//	Proj = "+proj=longlat +datum=WGS84 +no_defs"
//
//	[[Scene]]
//	File = "LC08_20190701.nc"
//
//	[[Scene]]
//	File = "LC08_20190717.nc"
//	ERA5 = "gs://bucket/era5_20190717.nc"
//
// Relative local paths are relative to the directory of the manifest.
type Manifest struct {
	// Proj is the spatial reference of the scene grids, which the area
	// of interest is projected to. If it is empty, the grids are in
	// longitude and latitude.
	Proj string

	Scene []ManifestEntry
}

// ManifestEntry is a scene file with optional meteorology that overrides
// the default meteorology source for that scene.
type ManifestEntry struct {
	File string

	// Meteorology is a raster on the scene grid.
	Meteorology string

	// ERA5 is an ERA5 single-level reanalysis file.
	ERA5 string
}

// ReadManifest reads a TOML manifest from r. Paths are expanded for
// environment variables and made relative to dir.
func ReadManifest(r io.Reader, dir string) (*Manifest, error) {
	m := new(Manifest)
	if _, err := toml.DecodeReader(r, m); err != nil {
		return nil, fmt.Errorf("sebalutil: decoding manifest: %v", err)
	}
	if len(m.Scene) == 0 {
		return nil, fmt.Errorf("sebalutil: manifest has no scenes")
	}
	for i, e := range m.Scene {
		if e.File == "" {
			return nil, fmt.Errorf("sebalutil: manifest scene %d has no File", i)
		}
		if e.Meteorology != "" && e.ERA5 != "" {
			return nil, fmt.Errorf("sebalutil: manifest scene %d (%s) has both Meteorology and ERA5", i, e.File)
		}
		m.Scene[i].File = resolvePath(e.File, dir)
		m.Scene[i].Meteorology = resolvePath(e.Meteorology, dir)
		m.Scene[i].ERA5 = resolvePath(e.ERA5, dir)
	}
	return m, nil
}

// resolvePath expands environment variables in path and joins relative
// local paths to dir.
func resolvePath(path, dir string) string {
	if path == "" {
		return ""
	}
	path = os.ExpandEnv(path)
	if cloud.IsBlob(path) || isURL(path) || filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

// FileCollection is a sebal.Collection of scene files listed in a
// manifest. It is also a sebal.MeteorologySource that uses the
// meteorology given in the manifest for each scene, or Default for scenes
// that have none. Scene IDs must be unique within the manifest.
type FileCollection struct {
	Manifest *Manifest
	Default  sebal.MeteorologySource
	Log      logrus.FieldLogger

	mu     sync.Mutex
	loaded map[string]int // scene ID to manifest index
}

// Len implements sebal.Collection.
func (c *FileCollection) Len() int { return len(c.Manifest.Scene) }

// Scene implements sebal.Collection.
func (c *FileCollection) Scene(ctx context.Context, i int) (*sebal.Scene, error) {
	if i < 0 || i >= len(c.Manifest.Scene) {
		return nil, fmt.Errorf("sebalutil: scene index %d out of range [0, %d)", i, len(c.Manifest.Scene))
	}
	fname, err := cloud.Download(ctx, c.Manifest.Scene[i].File)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("sebalutil: opening scene file: %v", err)
	}
	defer f.Close()
	s, err := sebal.ReadScene(f)
	if err != nil {
		return nil, fmt.Errorf("sebalutil: reading scene file %s: %v", c.Manifest.Scene[i].File, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded == nil {
		c.loaded = make(map[string]int)
	}
	if j, ok := c.loaded[s.ID]; ok && j != i {
		return nil, fmt.Errorf("sebalutil: scene %s is listed in the manifest as both %s and %s",
			s.ID, c.Manifest.Scene[j].File, c.Manifest.Scene[i].File)
	}
	c.loaded[s.ID] = i
	return s, nil
}

// Sample implements sebal.MeteorologySource.
func (c *FileCollection) Sample(ctx context.Context, s *sebal.Scene) (*sebal.Raster, error) {
	c.mu.Lock()
	i, ok := c.loaded[s.ID]
	c.mu.Unlock()

	var e ManifestEntry
	if ok {
		e = c.Manifest.Scene[i]
	}
	switch {
	case e.Meteorology != "":
		r, err := readRasterFile(ctx, e.Meteorology)
		if err != nil {
			return nil, err
		}
		return sebal.RasterMeteorology{Raster: r}.Sample(ctx, s)
	case e.ERA5 != "":
		return sampleERA5(ctx, e.ERA5, s, c.Log)
	case c.Default != nil:
		return c.Default.Sample(ctx, s)
	}
	return nil, fmt.Errorf("sebalutil: no meteorology for scene %s", s.ID)
}

// sampleERA5 samples the ERA5 file at path for scene s.
func sampleERA5(ctx context.Context, path string, s *sebal.Scene, log logrus.FieldLogger) (*sebal.Raster, error) {
	fname, err := cloud.Download(ctx, path)
	if err != nil {
		return nil, err
	}
	f, err := era5.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	src := &era5.Source{File: f, Log: log}
	return src.Sample(ctx, s)
}

// era5File is a sebal.MeteorologySource that samples an ERA5 file.
type era5File struct {
	path string
	log  logrus.FieldLogger
}

// Sample implements sebal.MeteorologySource.
func (e era5File) Sample(ctx context.Context, s *sebal.Scene) (*sebal.Raster, error) {
	return sampleERA5(ctx, e.path, s, e.log)
}

// readRasterFile downloads the raster at path if necessary and reads it.
func readRasterFile(ctx context.Context, path string) (*sebal.Raster, error) {
	fname, err := cloud.Download(ctx, path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("sebalutil: opening raster file: %v", err)
	}
	defer f.Close()
	r, err := sebal.ReadRaster(f)
	if err != nil {
		return nil, fmt.Errorf("sebalutil: reading raster file %s: %v", path, err)
	}
	return r, nil
}
