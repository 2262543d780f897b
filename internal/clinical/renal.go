package clinical

import (
	"errors"
	"math"
)

// ErrMissingCreatinine means renal function cannot be estimated. It is never
// reported as an eGFR of 0.
var ErrMissingCreatinine = errors.New("creatinine missing or not positive")

type ckdEpiCoefficients struct {
	kappa, alpha, sexFactor float64
}

var ckdEpi2021 = map[Sex]ckdEpiCoefficients{
	Female: {kappa: 0.7, alpha: -0.241, sexFactor: 1.012},
	Male:   {kappa: 0.9, alpha: -0.302, sexFactor: 1.0},
}

// EGFR estimates glomerular filtration (mL/min/1.73m²) with the race-free
// CKD-EPI 2021 equation. Creatinine is in mg/L.
func EGFR(age int, sex Sex, creatinineMgL float64) (float64, error) {
	if !(creatinineMgL > 0) || math.IsInf(creatinineMgL, 0) {
		return 0, ErrMissingCreatinine
	}
	c, ok := ckdEpi2021[sex]
	if !ok {
		c = ckdEpi2021[Male]
	}
	ratio := (creatinineMgL / 10.0) / c.kappa
	return 142 *
		math.Pow(math.Min(ratio, 1), c.alpha) *
		math.Pow(math.Max(ratio, 1), -1.200) *
		math.Pow(0.9938, float64(age)) *
		c.sexFactor, nil
}

// ClearanceSource tells how a Cockcroft-Gault value was obtained.
type ClearanceSource string

const (
	ClearanceComputed ClearanceSource = "computed"
	// Creatinine at or below 0.1 mg/dL is implausible; normal function is assumed.
	ClearanceLowCreatinine ClearanceSource = "low-creatinine-sentinel"
	// The formula produced no usable number; a population average stands in.
	ClearanceFallback ClearanceSource = "fallback"
)

const (
	lowCreatinineClearance = 120.0
	fallbackClearance      = 70.0
)

// Clearance is a Cockcroft-Gault estimate in mL/min together with how it was
// obtained.
type Clearance struct {
	MLPerMin float64
	Source   ClearanceSource
}

// Degraded reports whether the value is a population default rather than a
// patient-specific estimate.
func (c Clearance) Degraded() bool {
	return c.Source == ClearanceFallback
}

// CockcroftGault estimates creatinine clearance from age, weight (kg),
// creatinine (mg/L) and sex.
func CockcroftGault(age int, weightKg, creatinineMgL float64, sex Sex) Clearance {
	creatMgDL := creatinineMgL / 10.0
	if creatMgDL <= 0.1 {
		return Clearance{MLPerMin: lowCreatinineClearance, Source: ClearanceLowCreatinine}
	}
	clearance := (float64(140-age) * weightKg) / (72 * creatMgDL)
	if sex == Female {
		clearance *= 0.85
	}
	if math.IsNaN(clearance) || math.IsInf(clearance, 0) {
		return Clearance{MLPerMin: fallbackClearance, Source: ClearanceFallback}
	}
	return Clearance{MLPerMin: clearance, Source: ClearanceComputed}
}

// BMI returns weight / height². Heights above 3 are read as centimetres.
func BMI(weightKg, height float64) float64 {
	if height > 3 {
		height /= 100
	}
	if height <= 0 {
		return 0
	}
	return weightKg / (height * height)
}
