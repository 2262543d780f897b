package api

import (
	"math"
	"strings"

	"github.com/Skufu/RenalRisk/internal/assessment"
	"github.com/Skufu/RenalRisk/internal/clinical"
)

// RecordRequest is the wire form of a clinical record. Lab values accept
// numbers or free text.
type RecordRequest struct {
	Age        clinical.Measurement `json:"age"`
	Sex        string               `json:"sexe"`
	Weight     clinical.Measurement `json:"poids"`
	Height     clinical.Measurement `json:"taille"`
	Creatinine clinical.Measurement `json:"creatinine"`
	Urea       clinical.Measurement `json:"uree"`
	Hemoglobin clinical.Measurement `json:"hb"`
	Potassium  clinical.Measurement `json:"k"`

	Proteinuria         clinical.Measurement `json:"proteinurie"`
	ProteinuriaDipstick string               `json:"proteinurieBandelette"`
	Diabetes            *clinical.Flag       `json:"diabete"`
	Hypertension        *clinical.Flag       `json:"hta"`

	BPSystolic    clinical.Measurement    `json:"bpSystolic"`
	BPDiastolic   clinical.Measurement    `json:"bpDiastolic"`
	Anemia        clinical.Flag           `json:"anemie"`
	Ultrasound    *clinical.Ultrasound    `json:"echographie"`
	FluidOverload *clinical.FluidOverload `json:"surcharge"`
}

func (r RecordRequest) Record() clinical.ClinicalRecord {
	sex, _ := clinical.ParseSex(r.Sex)
	height := r.Height.Float()
	if height > 3 {
		// centimetres
		height /= 100
	}
	rec := clinical.ClinicalRecord{
		Age:            int(math.Round(r.Age.Float())),
		Sex:            sex,
		WeightKg:       r.Weight.Float(),
		HeightM:        height,
		CreatinineMgL:  r.Creatinine.Float(),
		UreaGL:         r.Urea.Float(),
		HemoglobinGdL:  r.Hemoglobin.Float(),
		PotassiumMeqL:  r.Potassium.Float(),
		Proteinuria24h: r.Proteinuria.Float(),
		SystolicMmHg:   r.BPSystolic.Float(),
		DiastolicMmHg:  r.BPDiastolic.Float(),
		Anemia:         bool(r.Anemia),
		Ultrasound:     r.Ultrasound,
	}
	if r.Diabetes != nil {
		rec.Diabetes = bool(*r.Diabetes)
	}
	if r.Hypertension != nil {
		rec.Hypertension = bool(*r.Hypertension)
	}
	if r.FluidOverload != nil {
		rec.FluidOverload = *r.FluidOverload
	}
	return rec
}

func (r RecordRequest) Comorbidities() assessment.Comorbidities {
	rec := r.Record()
	return assessment.Comorbidities{
		Proteinuria24h:      rec.Proteinuria24h,
		ProteinuriaDipstick: r.ProteinuriaDipstick,
		Diabetes:            rec.Diabetes,
		Hypertension:        rec.Hypertension,
	}
}

// HasComorbidities reports whether any SR-IRC-only field was supplied.
func (r RecordRequest) HasComorbidities() bool {
	return r.Proteinuria.Set ||
		strings.TrimSpace(r.ProteinuriaDipstick) != "" ||
		r.Diabetes != nil ||
		r.Hypertension != nil
}

func (r RecordRequest) MissingCreatinine() bool {
	return !r.Creatinine.Set || !(r.Creatinine.Float() > 0)
}
