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
	"runtime"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// EndmemberKind tags an endmember as cold or hot.
type EndmemberKind int

const (
	// Cold is a well-watered, fully transpiring pixel.
	Cold EndmemberKind = iota
	// Hot is a dry, bare pixel with negligible latent heat flux.
	Hot
)

func (k EndmemberKind) String() string {
	if k == Hot {
		return "hot"
	}
	return "cold"
}

// Endmember is an anchor pixel of the sensible heat flux calibration.
type Endmember struct {
	Kind     EndmemberKind
	Index    int // pixel index
	Row, Col int
	X, Y     float64 // pixel center in grid coordinates
	NDVI     float64
	LST      float64 // elevation-adjusted land surface temperature [K]

	// These are only set for the hot endmember, after the radiation
	// balance and soil heat flux have been calculated.
	Rn, G     float64 // [W m-2]
	SAVI      float64
	WindSpeed float64 // [m s-1]
	AirTemp   float64 // [°C]
}

// Thresholds are the percentile values used to select endmembers.
type Thresholds struct {
	ColdNDVI float64 // pixels at or above are cold candidates
	ColdLST  float64 // cold candidates at or below this LST are kept
	HotNDVI  float64 // pixels at or below are hot candidates
	HotLST   float64 // hot candidates at or above this LST are kept
}

// Endmembers holds the result of endmember selection for a scene.
type Endmembers struct {
	Cold, Hot  Endmember
	Thresholds Thresholds

	// Number of pixels that satisfied both the NDVI and LST
	// criteria for each endmember.
	ColdCandidates, HotCandidates int
}

// collect returns, in ascending order, the indices of the pixels of s for
// which keep returns true. The scan is split across all processors.
func collect(n int, keep func(i int) bool) []int {
	nprocs := runtime.GOMAXPROCS(0)
	parts := make([][]int, nprocs)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			for i := pp; i < n; i += nprocs {
				if keep(i) {
					parts[pp] = append(parts[pp], i)
				}
			}
			wg.Done()
		}(pp)
	}
	wg.Wait()
	var o []int
	for _, p := range parts {
		o = append(o, p...)
	}
	sort.Ints(o)
	return o
}

// percentile returns the pth percentile (0-100) of band values at
// the given pixel indices.
func percentile(band []float64, idx []int, p float64) float64 {
	x := make([]float64, len(idx))
	for j, i := range idx {
		x[j] = band[i]
	}
	sort.Float64s(x)
	return stat.Quantile(p/100, stat.Empirical, x, nil)
}

// representative deterministically chooses one pixel from candidates:
// the one with the median LST, ties broken by the lowest index.
func representative(lst []float64, candidates []int) int {
	c := make([]int, len(candidates))
	copy(c, candidates)
	sort.SliceStable(c, func(a, b int) bool {
		if lst[c[a]] != lst[c[b]] {
			return lst[c[a]] < lst[c[b]]
		}
		return c[a] < c[b]
	})
	return c[(len(c)-1)/2]
}

// energyBands must hold a value at an endmember pixel for the radiation
// balance, soil heat flux and sensible heat flux to be defined there.
var (
	energyBands = []string{BandAlbedo, BandEmis0, BandCosZenith, BandTransm, BandSAVI}
	metBands    = []string{BandWindSpeed, BandAirTemp}
)

// complete returns a function reporting whether pixel i has a value in
// every energy band of s and every meteorology band of met that is
// present. met may be nil.
func complete(s *Scene, met *Raster) func(i int) bool {
	var bands [][]float64
	for _, name := range energyBands {
		if b, err := s.Band(name); err == nil {
			bands = append(bands, b)
		}
	}
	if met != nil {
		for _, name := range metBands {
			if b, err := met.Band(name); err == nil {
				bands = append(bands, b)
			}
		}
	}
	return func(i int) bool {
		for _, b := range bands {
			if math.IsNaN(b[i]) {
				return false
			}
		}
		return true
	}
}

// FindEndmembers selects the cold and hot endmembers of a scene that
// already has NDVI and LST_DEM bands. The percentile thresholds are
// computed once and returned with the endmembers. Only pixels with values
// in all of the energy balance inputs, including the meteorology in met,
// can become candidates; met may be nil.
func (p Params) FindEndmembers(s *Scene, met *Raster) (Endmembers, error) {
	var e Endmembers
	in, err := s.bands(BandNDVI, BandLSTDEM)
	if err != nil {
		return e, err
	}
	ndvi, lst := in[0], in[1]

	valid := collect(s.Len(), func(i int) bool {
		return !math.IsNaN(ndvi[i]) && lst[i] >= p.MinLST
	})
	if len(valid) == 0 {
		return e, fmt.Errorf("sebal: scene %s has no valid pixels: %w", s.ID, ErrInsufficientEndmemberData)
	}

	e.Thresholds.ColdNDVI = percentile(ndvi, valid, p.ColdNDVIPercentile)
	e.Thresholds.HotNDVI = percentile(ndvi, valid, p.HotNDVIPercentile)
	if e.Thresholds.ColdNDVI <= e.Thresholds.HotNDVI {
		return e, fmt.Errorf("sebal: scene %s: NDVI range is degenerate (cold threshold %g, hot threshold %g): %w",
			s.ID, e.Thresholds.ColdNDVI, e.Thresholds.HotNDVI, ErrInsufficientEndmemberData)
	}

	var coldSet, hotSet []int
	for _, i := range valid {
		if ndvi[i] >= e.Thresholds.ColdNDVI {
			coldSet = append(coldSet, i)
		}
		if ndvi[i] <= e.Thresholds.HotNDVI {
			hotSet = append(hotSet, i)
		}
	}
	if len(coldSet) == 0 || len(hotSet) == 0 {
		return e, fmt.Errorf("sebal: scene %s: %d cold and %d hot NDVI candidates: %w",
			s.ID, len(coldSet), len(hotSet), ErrInsufficientEndmemberData)
	}
	e.Thresholds.ColdLST = percentile(lst, coldSet, p.ColdLSTPercentile)
	e.Thresholds.HotLST = percentile(lst, hotSet, p.HotLSTPercentile)

	ok := complete(s, met)
	var coldCand, hotCand []int
	for _, i := range coldSet {
		if lst[i] <= e.Thresholds.ColdLST && ok(i) {
			coldCand = append(coldCand, i)
		}
	}
	for _, i := range hotSet {
		if lst[i] >= e.Thresholds.HotLST && ok(i) {
			hotCand = append(hotCand, i)
		}
	}
	e.ColdCandidates, e.HotCandidates = len(coldCand), len(hotCand)
	if len(coldCand) == 0 || len(hotCand) == 0 {
		return e, fmt.Errorf("sebal: scene %s: %d cold and %d hot LST candidates: %w",
			s.ID, len(coldCand), len(hotCand), ErrInsufficientEndmemberData)
	}

	e.Cold = s.endmember(Cold, representative(lst, coldCand), ndvi, lst)
	e.Hot = s.endmember(Hot, representative(lst, hotCand), ndvi, lst)
	if e.Cold.LST >= e.Hot.LST {
		return e, fmt.Errorf("sebal: scene %s: cold endmember (%g K) is not colder than hot endmember (%g K): %w",
			s.ID, e.Cold.LST, e.Hot.LST, ErrInsufficientEndmemberData)
	}
	return e, nil
}

func (s *Scene) endmember(k EndmemberKind, i int, ndvi, lst []float64) Endmember {
	row, col := s.RowCol(i)
	c := s.Center(i)
	return Endmember{
		Kind:  k,
		Index: i,
		Row:   row,
		Col:   col,
		X:     c.X,
		Y:     c.Y,
		NDVI:  ndvi[i],
		LST:   lst[i],
	}
}

// SelectEndmembers returns a function that selects the endmembers of a
// scene and stores them in out.
func (p Params) SelectEndmembers(out *Endmembers, met *Raster) SceneManipulator {
	return func(s *Scene) error {
		e, err := p.FindEndmembers(s, met)
		if err != nil {
			return err
		}
		*out = e
		return nil
	}
}

// AttachHotEnergy returns a function that records the net radiation, soil
// heat flux, SAVI, wind speed and air temperature at the hot endmember of e. It must run
// after the radiation balance and soil heat flux.
func AttachHotEnergy(e *Endmembers, met *Raster) SceneManipulator {
	return func(s *Scene) error {
		i := e.Hot.Index
		hot := e.Hot
		hot.Rn = s.Value(BandRn, i)
		hot.G = s.Value(BandG, i)
		hot.SAVI = s.Value(BandSAVI, i)
		hot.WindSpeed = met.Value(BandWindSpeed, i)
		hot.AirTemp = met.Value(BandAirTemp, i)
		for _, v := range []struct {
			name string
			val  float64
		}{{BandRn, hot.Rn}, {BandG, hot.G}, {BandSAVI, hot.SAVI},
			{BandWindSpeed, hot.WindSpeed}, {BandAirTemp, hot.AirTemp}} {
			if math.IsNaN(v.val) {
				return fmt.Errorf("sebal: scene %s: hot endmember has no %s: %w",
					s.ID, v.name, ErrInsufficientEndmemberData)
			}
		}
		if hot.Rn-hot.G <= 0 {
			return fmt.Errorf("sebal: scene %s: hot endmember available energy %g W m-2 is not positive: %w",
				s.ID, hot.Rn-hot.G, ErrInsufficientEndmemberData)
		}
		e.Hot = hot
		return nil
	}
}
