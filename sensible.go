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

	"gonum.org/v1/gonum/mat"
)

// Heights [m] between which the aerodynamic resistance to heat
// transport is calculated.
const (
	z1 = 0.1
	z2 = 2.
)

// AirDensity returns the density of air [kg m-3] at temperature t [K].
func AirDensity(t float64) float64 { return -0.0046*t + 2.5538 }

// MomentumRoughness returns the momentum roughness length [m] of a
// surface with the given SAVI.
func MomentumRoughness(savi float64) float64 {
	return math.Max(math.Exp(5.62*savi-5.809), 1.e-4)
}

// BlendingWind returns the wind speed at the blending height given the
// wind speed ux measured at the weather station.
func (p Params) BlendingWind(ux float64) float64 {
	zomWS := 0.12 * p.StationVegHeight
	return ux * math.Log(p.BlendingHeight/zomWS) / math.Log(p.WindHeight/zomWS)
}

// stability returns the Monin-Obukhov stability corrections for momentum
// at the blending height and for heat at z2 and z1, for Monin-Obukhov
// length l [m].
func (p Params) stability(l float64) (psiM, psiH2, psiH1 float64) {
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		return 0, 0, 0 // neutral
	}
	if l > 0 { // stable
		return -5 * p.BlendingHeight / l, -5 * z2 / l, -5 * z1 / l
	}
	x := func(z float64) float64 { return math.Pow(1-16*z/l, 0.25) }
	xm, x2, x1 := x(p.BlendingHeight), x(z2), x(z1)
	psiM = 2*math.Log((1+xm)/2) + math.Log((1+xm*xm)/2) - 2*math.Atan(xm) + math.Pi/2
	psiH2 = 2 * math.Log((1+x2*x2)/2)
	psiH1 = 2 * math.Log((1+x1*x1)/2)
	return psiM, psiH2, psiH1
}

// aero is the state of the aerodynamic resistance iteration for a pixel.
type aero struct {
	u200, zom float64 // blending height wind [m s-1], roughness [m]
	rho, lst  float64 // air density [kg m-3], surface temperature [K]

	uStar float64 // friction velocity [m s-1]
	rah   float64 // aerodynamic resistance to heat transport [s m-1]
}

// newAero returns the iteration state under neutral stability.
func (p Params) newAero(u200, zom, lst float64) aero {
	a := aero{u200: u200, zom: zom, rho: AirDensity(lst), lst: lst}
	a.uStar = karman * u200 / math.Log(p.BlendingHeight/zom)
	a.rah = math.Log(z2/z1) / (a.uStar * karman)
	return a
}

// step updates the friction velocity and resistance for sensible heat
// flux h [W m-2] and returns the fractional change in resistance.
func (p Params) step(a *aero, h float64) float64 {
	var l float64
	if h != 0 {
		l = -a.rho * cpAir * math.Pow(a.uStar, 3) * a.lst / (karman * gravity * h)
	}
	psiM, psiH2, psiH1 := p.stability(l)
	a.uStar = karman * a.u200 / (math.Log(p.BlendingHeight/a.zom) - psiM)
	rah := (math.Log(z2/z1) - psiH2 + psiH1) / (a.uStar * karman)
	change := math.Abs(rah-a.rah) / a.rah
	a.rah = rah
	return change
}

// solve iterates until the resistance converges or the iteration cap is
// reached. heat returns the sensible heat flux for a resistance. It
// returns the number of iterations and whether the iteration converged.
func (p Params) solve(a *aero, heat func(rah float64) float64) (int, bool) {
	for it := 1; it <= p.MaxIterations; it++ {
		change := p.step(a, heat(a.rah))
		if math.IsNaN(change) || math.IsInf(change, 0) {
			return it, false
		}
		if change < p.Convergence {
			return it, true
		}
	}
	return p.MaxIterations, false
}

// Calibration is the linear relation dT = A + B·LST between the
// near-surface air temperature difference and the land surface
// temperature of a scene.
type Calibration struct {
	A, B float64

	HotRah   float64 // converged resistance at the hot endmember [s m-1]
	HotRho   float64 // air density at the hot endmember [kg m-3]
	HotDT    float64 // temperature difference at the hot endmember [K]
	HotIters int
}

// DT returns the near-surface temperature difference [K] at surface
// temperature lst [K].
func (c Calibration) DT(lst float64) float64 { return c.A + c.B*lst }

// Calibrate calculates the calibration coefficients from the endmembers.
// At the cold endmember dT is zero and at the hot endmember all of the
// available energy goes to sensible heat.
func (p Params) Calibrate(cold, hot Endmember) (Calibration, error) {
	var c Calibration
	avail := hot.Rn - hot.G
	if !(avail > 0) {
		return c, fmt.Errorf("sebal: hot endmember available energy is %g W m-2: %w",
			avail, ErrDegenerateCalibration)
	}
	a := p.newAero(p.BlendingWind(hot.WindSpeed), MomentumRoughness(hot.SAVI), hot.LST)
	iters, _ := p.solve(&a, func(float64) float64 { return avail })
	if !(a.rah > 0) || math.IsInf(a.rah, 0) {
		return c, fmt.Errorf("sebal: hot endmember resistance is %g s m-1: %w", a.rah, ErrDegenerateCalibration)
	}
	c.HotRah, c.HotRho, c.HotIters = a.rah, a.rho, iters
	c.HotDT = avail * a.rah / (a.rho * cpAir)

	m := mat.NewDense(2, 2, []float64{
		1, cold.LST,
		1, hot.LST,
	})
	if math.Abs(mat.Det(m)) < 1.e-9 {
		return c, fmt.Errorf("sebal: cold and hot endmember temperatures are both %g K: %w",
			cold.LST, ErrDegenerateCalibration)
	}
	var x mat.VecDense
	if err := x.SolveVec(m, mat.NewVecDense(2, []float64{0, c.HotDT})); err != nil {
		return c, fmt.Errorf("sebal: solving calibration: %v: %w", err, ErrDegenerateCalibration)
	}
	c.A, c.B = x.AtVec(0), x.AtVec(1)
	return c, nil
}

// SolverDiagnostics summarizes the sensible heat flux iteration.
type SolverDiagnostics struct {
	Pixels       int // number of pixels solved
	NonConverged int // pixels that reached the iteration cap
	Masked       int // pixels with non-physical results
}

// SensibleHeatFlux returns a function that calibrates the scene with the
// endmembers in e, stores the calibration in cal, and adds the sensible
// heat flux and related bands to the scene. Pixels that do not converge
// keep their last value and are flagged in the H_nonconv band.
func (p Params) SensibleHeatFlux(e *Endmembers, met *Raster, cal *Calibration, diag *SolverDiagnostics) SceneManipulator {
	return func(s *Scene) error {
		if err := checkGrid(s, met, "meteorology"); err != nil {
			return err
		}
		c, err := p.Calibrate(e.Cold, e.Hot)
		if err != nil {
			return err
		}
		*cal = c

		in, err := s.bands(BandLSTDEM, BandSAVI)
		if err != nil {
			return err
		}
		lst, savi := in[0], in[1]
		ux, err := met.Band(BandWindSpeed)
		if err != nil {
			return err
		}
		dT := s.NewBand(BandDT, "Near-surface air temperature difference", "K")
		rah := s.NewBand(BandRah, "Aerodynamic resistance to heat transport", "s m-1")
		uStar := s.NewBand(BandUStar, "Friction velocity", "m s-1")
		h := s.NewBand(BandH, "Sensible heat flux", "W m-2")
		flag := s.NewBand(BandNonConv, "Sensible heat flux did not converge (1) or did (0)", "-")

		err = Pixels(func(_ *Scene, i int) {
			if math.IsNaN(lst[i]) || math.IsNaN(savi[i]) || math.IsNaN(ux[i]) {
				return
			}
			d := c.DT(lst[i])
			a := p.newAero(p.BlendingWind(ux[i]), MomentumRoughness(savi[i]), lst[i])
			heat := func(r float64) float64 { return a.rho * cpAir * d / r }
			_, converged := p.solve(&a, heat)
			hv := heat(a.rah)
			if !(a.rah > 0) || math.IsInf(a.rah, 0) || math.IsNaN(hv) || math.IsInf(hv, 0) {
				return // non-physical
			}
			dT[i], rah[i], uStar[i], h[i] = d, a.rah, a.uStar, hv
			if converged {
				flag[i] = 0
			} else {
				flag[i] = 1
			}
		})(s)
		if err != nil {
			return err
		}

		*diag = SolverDiagnostics{}
		for i, f := range flag {
			switch {
			case f == 1:
				diag.NonConverged++
				diag.Pixels++
			case f == 0:
				diag.Pixels++
			case !math.IsNaN(lst[i]) && !math.IsNaN(savi[i]) && !math.IsNaN(ux[i]):
				diag.Masked++
			}
		}
		return nil
	}
}
