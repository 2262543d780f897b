package clinical

import (
	"errors"
	"fmt"
	"strings"
)

type Sex string

const (
	Male   Sex = "M"
	Female Sex = "F"
)

var ErrInvalidSex = errors.New("sex must be M or F")

// ParseSex accepts M/F and the common spelled-out forms.
func ParseSex(raw string) (Sex, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "m", "male", "masculin", "homme", "h":
		return Male, nil
	case "f", "female", "féminin", "feminin", "femme":
		return Female, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSex, raw)
}

func (s *Sex) UnmarshalText(text []byte) error {
	parsed, err := ParseSex(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Ultrasound holds the renal imaging findings used by the echo score.
type Ultrasound struct {
	Atrophy             bool `json:"atrophy"`
	PoorDifferentiation bool `json:"poorDifferentiation"`
	CystOrStone         bool `json:"cystOrStone"`
}

// Score counts positive findings, 0 to 3.
func (u Ultrasound) Score() float64 {
	score := 0.0
	for _, finding := range []bool{u.Atrophy, u.PoorDifferentiation, u.CystOrStone} {
		if finding {
			score++
		}
	}
	return score
}

// FluidOverload lists the clinical signs counted in the biological overload score.
type FluidOverload struct {
	LowerLimbEdema  bool `json:"lowerLimbEdema"`
	FacialPuffiness bool `json:"facialPuffiness"`
	Crackles        bool `json:"crackles"`
}

func (f FluidOverload) Count() float64 {
	n := 0.0
	for _, sign := range []bool{f.LowerLimbEdema, f.FacialPuffiness, f.Crackles} {
		if sign {
			n++
		}
	}
	return n
}

// ClinicalRecord is one patient's measurements in canonical units. A zero
// measurement means "not measured".
type ClinicalRecord struct {
	Age           int
	Sex           Sex
	WeightKg      float64
	HeightM       float64
	CreatinineMgL float64
	UreaGL        float64
	HemoglobinGdL float64
	PotassiumMeqL float64

	Proteinuria24h float64
	Diabetes       bool
	Hypertension   bool

	SystolicMmHg  float64
	DiastolicMmHg float64
	Anemia        bool
	Ultrasound    *Ultrasound
	FluidOverload FluidOverload
}

// CreatinineMgDL converts the stored mg/L reading.
func (r ClinicalRecord) CreatinineMgDL() float64 {
	return r.CreatinineMgL / 10.0
}

// FieldError is one out-of-range input.
type FieldError struct {
	Field   string  `json:"field"`
	Message string  `json:"message"`
	Value   float64 `json:"value"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every FieldError found in a record.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type bound struct {
	field    string
	label    string
	min, max float64
	value    func(ClinicalRecord) float64
}

var recordBounds = []bound{
	{"age", "age", 1, 120, func(r ClinicalRecord) float64 { return float64(r.Age) }},
	{"weight", "weight (kg)", 10, 250, func(r ClinicalRecord) float64 { return r.WeightKg }},
	{"height", "height (m)", 0.5, 2.5, func(r ClinicalRecord) float64 { return r.HeightM }},
	{"creatinine", "creatinine (mg/L)", 1, 250, func(r ClinicalRecord) float64 { return r.CreatinineMgL }},
	{"urea", "urea (g/L)", 0.05, 5.0, func(r ClinicalRecord) float64 { return r.UreaGL }},
	{"hb", "hemoglobin (g/dL)", 3, 22, func(r ClinicalRecord) float64 { return r.HemoglobinGdL }},
	{"k", "potassium (meq/L)", 1, 10, func(r ClinicalRecord) float64 { return r.PotassiumMeqL }},
}

// Validate checks the ranges accepted at the API boundary.
func (r ClinicalRecord) Validate() error {
	var errs ValidationErrors
	if r.Sex != Male && r.Sex != Female {
		errs = append(errs, FieldError{Field: "sexe", Message: "sex must be M or F"})
	}
	for _, b := range recordBounds {
		v := b.value(r)
		if v < b.min || v > b.max {
			errs = append(errs, FieldError{
				Field:   b.field,
				Message: fmt.Sprintf("%s must be between %g and %g", b.label, b.min, b.max),
				Value:   v,
			})
		}
	}
	if r.SystolicMmHg != 0 && r.DiastolicMmHg != 0 && r.DiastolicMmHg > r.SystolicMmHg {
		errs = append(errs, FieldError{Field: "bpDiastolic", Message: "blood pressure diastolic exceeds systolic", Value: r.DiastolicMmHg})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateFields runs Validate and keeps only errors on the named fields.
func (r ClinicalRecord) ValidateFields(fields ...string) error {
	err := r.Validate()
	all, ok := err.(ValidationErrors)
	if !ok {
		return err
	}
	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}
	var errs ValidationErrors
	for _, e := range all {
		if keep[e.Field] {
			errs = append(errs, e)
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

type ProteinuriaCategory string

const (
	ProteinuriaLow      ProteinuriaCategory = "≤1"
	ProteinuriaModerate ProteinuriaCategory = "]1;2]"
	ProteinuriaHeavy    ProteinuriaCategory = ">3"
)

// CategorizeProteinuria buckets a 24h proteinuria (g/24h) into SR-IRC bands.
// Values in ]2;3] fall into "]1;2]": the bands are the scorer's, not a partition
// of the real line.
func CategorizeProteinuria(g24h float64) ProteinuriaCategory {
	switch {
	case g24h > 3.0:
		return ProteinuriaHeavy
	case g24h > 1.0:
		return ProteinuriaModerate
	default:
		return ProteinuriaLow
	}
}

// ResolveProteinuria prefers the quantified 24h value and falls back to the
// dipstick reading when the former is missing.
func ResolveProteinuria(g24h float64, dipstick string) float64 {
	if g24h != 0 || strings.TrimSpace(dipstick) == "" {
		return g24h
	}
	switch {
	case strings.Contains(dipstick, "> 3"), strings.Contains(dipstick, ">3"):
		return 4.0
	case strings.Contains(dipstick, "1"):
		return 1.5
	}
	return g24h
}
