package clinical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() ClinicalRecord {
	return ClinicalRecord{
		Age:           50,
		Sex:           Male,
		WeightKg:      70,
		HeightM:       1.75,
		CreatinineMgL: 10,
		UreaGL:        0.4,
		HemoglobinGdL: 14,
		PotassiumMeqL: 4.2,
	}
}

func TestDeriveProducesAllFeatures(t *testing.T) {
	d := NewDeriver(DefaultFeatureConfig())

	records := []ClinicalRecord{
		sampleRecord(),
		{},
		{Age: 70, Sex: Female},
		{CreatinineMgL: 30},
	}
	for _, rec := range records {
		out := d.Derive(rec)
		m := out.Features.Map()
		require.Len(t, m, FeatureCount)
		for _, name := range FeatureNames {
			_, ok := m[name]
			assert.True(t, ok, "missing feature %s", name)
		}
		assert.Len(t, out.Features.Slice(), FeatureCount)
	}
}

func TestDeriveValues(t *testing.T) {
	d := NewDeriver(DefaultFeatureConfig())
	out := d.Derive(sampleRecord())
	f := out.Features.Map()

	egfr := 91.69147860983
	cg := 87.5
	bmi := 70 / (1.75 * 1.75)

	assert.True(t, out.EGFRKnown)
	assert.InDelta(t, egfr, f["eDFG_CKD_EPI"], 1e-6)
	assert.InDelta(t, cg, f["Clairance_Cockcroft"], 1e-9)
	assert.InDelta(t, egfr-cg, f["Gap_Formules"], 1e-6)
	assert.Equal(t, NeutralEchoScore, f["Score_Echo_Total"])
	assert.InDelta(t, 4.2/14.1, f["Ratio_K_Hb"], 1e-9)
	assert.InDelta(t, 0.4/1.1, f["Ratio_Uree_Creat"], 1e-9)
	assert.Equal(t, 0.0, f["Score_Surcharge_Bio"])
	assert.Equal(t, 0.0, f["Syndrome_Anemique"])
	assert.Equal(t, NeutralPulsePressure, f["Pression_Pulsee"])
	assert.InDelta(t, bmi, f["IMC"], 1e-9)
	assert.Equal(t, 50.0, f["Age"])
	assert.InDelta(t, egfr*14.1, f["Interaction_eDFG_Hb"], 1e-5)
	assert.InDelta(t, egfr/51, f["eDFG_Norm_Age"], 1e-6)
	assert.InDelta(t, 1.0*51/100, f["Creat_Norm_Age"], 1e-9)
	assert.InDelta(t, 14.1*egfr/100, f["Score_Anemie_Renale"], 1e-6)
	assert.InDelta(t, bmi*egfr/100, f["Interaction_IMC_eDFG"], 1e-6)
}

func TestDeriveGapIsSigned(t *testing.T) {
	rec := sampleRecord()
	rec.WeightKg = 140
	out := NewDeriver(DefaultFeatureConfig()).Derive(rec)
	gap, _ := out.Features.Get("Gap_Formules")
	if gap >= 0 {
		t.Fatalf("expected negative gap for heavy patient, got %v", gap)
	}
}

func TestDeriveMissingCreatinineZeroesEGFRTerms(t *testing.T) {
	rec := sampleRecord()
	rec.CreatinineMgL = 0
	out := NewDeriver(DefaultFeatureConfig()).Derive(rec)

	assert.False(t, out.EGFRKnown)
	for _, name := range []string{"eDFG_CKD_EPI", "Interaction_eDFG_Hb", "eDFG_Norm_Age", "Score_Anemie_Renale", "Interaction_IMC_eDFG"} {
		v, _ := out.Features.Get(name)
		assert.Equal(t, 0.0, v, name)
	}
	assert.Equal(t, 120.0, out.Clearance.MLPerMin)
}

func TestDeriveOverloadAndAnemiaThresholds(t *testing.T) {
	d := NewDeriver(DefaultFeatureConfig())

	rec := sampleRecord()
	rec.PotassiumMeqL = 5.5
	rec.UreaGL = 1.0
	rec.HemoglobinGdL = 11
	f := d.Derive(rec).Features.Map()
	assert.Equal(t, 1.0, f["Score_Surcharge_Bio"], "urea 1.0 is below the 1.5 g/L cut-off")
	assert.Equal(t, 0.0, f["Syndrome_Anemique"], "Hb 11 is above the 10 g/dL cut-off")

	rec.UreaGL = 1.6
	rec.HemoglobinGdL = 9.5
	rec.FluidOverload = FluidOverload{LowerLimbEdema: true, Crackles: true}
	f = d.Derive(rec).Features.Map()
	assert.Equal(t, 4.0, f["Score_Surcharge_Bio"])
	assert.Equal(t, 1.0, f["Syndrome_Anemique"])

	rec.HemoglobinGdL = 13
	rec.Anemia = true
	f = d.Derive(rec).Features.Map()
	assert.Equal(t, 1.0, f["Syndrome_Anemique"], "reported anemia counts regardless of Hb")
}

func TestDeriveUsesConfiguredThresholds(t *testing.T) {
	cfg := DefaultFeatureConfig()
	cfg.UreaOverloadGL = 0.5
	cfg.AnemiaHbGdL = 12
	rec := sampleRecord()
	rec.UreaGL = 0.6
	rec.HemoglobinGdL = 11.5
	f := NewDeriver(cfg).Derive(rec).Features.Map()
	assert.Equal(t, 1.0, f["Score_Surcharge_Bio"])
	assert.Equal(t, 1.0, f["Syndrome_Anemique"])
}

func TestDeriveOptionalClinicalInputs(t *testing.T) {
	rec := sampleRecord()
	rec.Ultrasound = &Ultrasound{Atrophy: true, CystOrStone: true}
	rec.SystolicMmHg = 150
	rec.DiastolicMmHg = 90
	f := NewDeriver(DefaultFeatureConfig()).Derive(rec).Features.Map()
	assert.Equal(t, 2.0, f["Score_Echo_Total"])
	assert.Equal(t, 60.0, f["Pression_Pulsee"])

	rec.Ultrasound = &Ultrasound{}
	f = NewDeriver(DefaultFeatureConfig()).Derive(rec).Features.Map()
	assert.Equal(t, 0.0, f["Score_Echo_Total"], "a normal ultrasound is not the neutral default")
}

func TestDeriveCentimetreHeight(t *testing.T) {
	rec := sampleRecord()
	rec.HeightM = 175
	out := NewDeriver(DefaultFeatureConfig()).Derive(rec)
	assert.InDelta(t, 22.857, out.BMI, 1e-3)
}

func TestFeatureVectorFromSlice(t *testing.T) {
	_, err := FeatureVectorFromSlice(make([]float64, 15))
	require.Error(t, err)

	in := make([]float64, FeatureCount)
	in[3] = 7
	v, err := FeatureVectorFromSlice(in)
	require.NoError(t, err)
	got, ok := v.Get("Score_Echo_Total")
	assert.True(t, ok)
	assert.Equal(t, 7.0, got)

	_, ok = v.Get("Unknown")
	assert.False(t, ok)
}
