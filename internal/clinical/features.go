package clinical

import "fmt"

// FeatureNames is the column order the stage classifier was trained on.
var FeatureNames = [FeatureCount]string{
	"eDFG_CKD_EPI",
	"Clairance_Cockcroft",
	"Gap_Formules",
	"Score_Echo_Total",
	"Ratio_K_Hb",
	"Ratio_Uree_Creat",
	"Score_Surcharge_Bio",
	"Syndrome_Anemique",
	"Pression_Pulsee",
	"IMC",
	"Age",
	"Interaction_eDFG_Hb",
	"eDFG_Norm_Age",
	"Creat_Norm_Age",
	"Score_Anemie_Renale",
	"Interaction_IMC_eDFG",
}

const FeatureCount = 16

const (
	// NeutralEchoScore stands in when no ultrasound was performed. Training rows
	// carried real findings, so this is a known gap between the two distributions.
	NeutralEchoScore = 2.0
	// NeutralPulsePressure stands in when blood pressure was not recorded.
	NeutralPulsePressure = 45.0
)

// FeatureConfig carries the cut-offs used by the derived syndromes.
type FeatureConfig struct {
	PotassiumOverloadMeqL float64
	UreaOverloadGL        float64
	AnemiaHbGdL           float64
}

// DefaultFeatureConfig returns the thresholds the classifier was trained with.
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		PotassiumOverloadMeqL: 5.0,
		UreaOverloadGL:        1.5,
		AnemiaHbGdL:           10.0,
	}
}

// FeatureVector is the fixed-arity classifier input, ordered as FeatureNames.
type FeatureVector [FeatureCount]float64

// Get returns a feature by name.
func (v FeatureVector) Get(name string) (float64, bool) {
	for i, n := range FeatureNames {
		if n == name {
			return v[i], true
		}
	}
	return 0, false
}

// Map returns the vector keyed by feature name.
func (v FeatureVector) Map() map[string]float64 {
	out := make(map[string]float64, FeatureCount)
	for i, n := range FeatureNames {
		out[n] = v[i]
	}
	return out
}

// Slice returns the values in classifier order.
func (v FeatureVector) Slice() []float64 {
	out := make([]float64, FeatureCount)
	copy(out, v[:])
	return out
}

// FeatureVectorFromSlice rejects anything that is not exactly FeatureCount wide.
func FeatureVectorFromSlice(values []float64) (FeatureVector, error) {
	var v FeatureVector
	if len(values) != FeatureCount {
		return v, fmt.Errorf("feature vector has %d values, want %d", len(values), FeatureCount)
	}
	copy(v[:], values)
	return v, nil
}

// Derivation is a feature vector plus the intermediate estimates it was built
// from.
type Derivation struct {
	Features  FeatureVector
	EGFR      float64
	EGFRKnown bool
	Clearance Clearance
	BMI       float64
}

// Deriver builds feature vectors. It holds only its thresholds and is safe for
// concurrent use.
type Deriver struct {
	cfg FeatureConfig
}

// NewDeriver returns a Deriver using cfg thresholds.
func NewDeriver(cfg FeatureConfig) *Deriver {
	return &Deriver{cfg: cfg}
}

func (d *Deriver) Config() FeatureConfig {
	return d.cfg
}

// Derive computes every feature. Missing inputs are read as 0; an unknown eGFR
// contributes 0 to every term that uses it.
func (d *Deriver) Derive(rec ClinicalRecord) Derivation {
	egfr, err := EGFR(rec.Age, rec.Sex, rec.CreatinineMgL)
	known := err == nil
	if !known {
		egfr = 0
	}
	clearance := CockcroftGault(rec.Age, rec.WeightKg, rec.CreatinineMgL, rec.Sex)
	bmi := BMI(rec.WeightKg, rec.HeightM)

	age := float64(rec.Age)
	hb := rec.HemoglobinGdL
	creatMgDL := rec.CreatinineMgDL()

	echo := NeutralEchoScore
	if rec.Ultrasound != nil {
		echo = rec.Ultrasound.Score()
	}

	pulse := NeutralPulsePressure
	if rec.SystolicMmHg > 0 && rec.DiastolicMmHg > 0 {
		pulse = rec.SystolicMmHg - rec.DiastolicMmHg
	}

	overload := rec.FluidOverload.Count()
	if rec.PotassiumMeqL > d.cfg.PotassiumOverloadMeqL {
		overload++
	}
	if rec.UreaGL > d.cfg.UreaOverloadGL {
		overload++
	}

	anemic := 0.0
	if (hb > 0 && hb < d.cfg.AnemiaHbGdL) || rec.Anemia {
		anemic = 1
	}

	var v FeatureVector
	v[0] = egfr
	v[1] = clearance.MLPerMin
	v[2] = egfr - clearance.MLPerMin
	v[3] = echo
	v[4] = rec.PotassiumMeqL / (hb + 0.1)
	v[5] = rec.UreaGL / (creatMgDL + 0.1)
	v[6] = overload
	v[7] = anemic
	v[8] = pulse
	v[9] = bmi
	v[10] = age
	v[11] = egfr * (hb + 0.1)
	v[12] = egfr / (age + 1)
	v[13] = creatMgDL * (age + 1) / 100.0
	v[14] = (hb + 0.1) * egfr / 100.0
	v[15] = bmi * egfr / 100.0

	return Derivation{
		Features:  v,
		EGFR:      egfr,
		EGFRKnown: known,
		Clearance: clearance,
		BMI:       bmi,
	}
}
