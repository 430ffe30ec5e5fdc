package semivar

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ModelType selects a variogram model shape.
type ModelType string

const (
	Gaussian    ModelType = "gaussian"
	Exponential ModelType = "exponential"
	Spherical   ModelType = "spherical"
)

// Fit is a variogram model fitted to an empirical semivariance profile.
// Semivariance units are cm^2.
type Fit struct {
	Model    ModelType
	Nugget   float64
	Sill     float64
	Range    float64 // km
	Residual float64 // L2 norm of the fit residual
	Points   int
}

// modelShape evaluates the unit-sill model at distance h for a given range,
// with the nugget and sill factored out (kriging convention, A = 1/3).
func modelShape(model ModelType, h, rng float64) float64 {
	x := h / rng
	switch model {
	case Spherical:
		if x >= 1 {
			return 1
		}
		return 1.5*x - 0.5*x*x*x
	case Exponential:
		return 1 - math.Exp(-3*x)
	case Gaussian:
		return 1 - math.Exp(-3*x*x)
	}
	return 0
}

// Profile extracts the empirical semivariance profile of one latitude band
// at one time-lag bucket: mean distance versus half the mean squared
// difference, in cm^2, for each non-empty distance bucket.
func (a *Accumulator) Profile(latBand, lag int) (h, gamma []float64, counts []int64) {
	for dist := 0; dist < DistBuckets; dist++ {
		b := a.buckets[bucketIndex(latBand, lag, dist)]
		if b.count == 0 {
			continue
		}
		n := float64(b.count)
		meanDist := (float64(dist)+0.5)*DistBucketKm + b.sumDistResid/n
		meanSqCm2 := float64(b.sumSqMm) / n / 100
		h = append(h, meanDist)
		gamma = append(gamma, meanSqCm2/2)
		counts = append(counts, b.count)
	}
	return h, gamma, counts
}

// FitModel fits nugget, sill and range to an empirical profile by linear
// least squares over a grid of candidate ranges: for each candidate the two
// linear coefficients solve the 2x2 normal equations, and the candidate with
// the smallest residual wins.
func FitModel(model ModelType, h, gamma []float64) (Fit, error) {
	if len(h) != len(gamma) {
		return Fit{}, errors.New("semivar: profile length mismatch")
	}
	if len(h) < 3 {
		return Fit{}, errors.New("semivar: too few profile points to fit")
	}
	hMax := 0.0
	for _, v := range h {
		if v > hMax {
			hMax = v
		}
	}
	if hMax <= 0 {
		return Fit{}, errors.New("semivar: degenerate profile")
	}

	best := Fit{Model: model, Residual: math.Inf(1), Points: len(h)}
	const rangeSteps = 24
	for k := 1; k <= rangeSteps; k++ {
		rng := hMax * float64(k) / rangeSteps * 1.5
		nugget, partial, resid, ok := solveLinear(model, h, gamma, rng)
		if !ok {
			continue
		}
		if nugget < 0 {
			nugget = 0
		}
		if partial < 0 {
			continue
		}
		if resid < best.Residual {
			best.Nugget = nugget
			best.Sill = nugget + partial
			best.Range = rng
			best.Residual = resid
		}
	}
	if math.IsInf(best.Residual, 1) {
		return Fit{}, errors.New("semivar: no admissible model fit")
	}
	return best, nil
}

// solveLinear solves gamma ~= nugget + partial*shape(h) for a fixed range by
// inverting the 2x2 normal equations.
func solveLinear(model ModelType, h, gamma []float64, rng float64) (nugget, partial, resid float64, ok bool) {
	n := len(h)
	a := mat.NewDense(n, 2, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		a.Set(i, 0, 1)
		a.Set(i, 1, modelShape(model, h[i], rng))
		y.SetVec(i, gamma[i])
	}

	var ata mat.Dense
	ata.Mul(a.T(), a)
	var inv mat.Dense
	if err := inv.Inverse(&ata); err != nil {
		return 0, 0, 0, false
	}
	var aty mat.VecDense
	aty.MulVec(a.T(), y)
	var theta mat.VecDense
	theta.MulVec(&inv, &aty)

	nugget = theta.AtVec(0)
	partial = theta.AtVec(1)

	var fitted mat.VecDense
	fitted.MulVec(a, &theta)
	var diff mat.VecDense
	diff.SubVec(y, &fitted)
	return nugget, partial, mat.Norm(&diff, 2), true
}
