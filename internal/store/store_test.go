package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/Skufu/RenalRisk/internal/assessment"
	"github.com/Skufu/RenalRisk/internal/clinical"
)

func sampleReport(created time.Time, withSRIRC bool) *assessment.Report {
	r := &assessment.Report{
		ID:           uuid.New(),
		CreatedAt:    created.UTC(),
		Predictor:    "egfr-kdigo",
		Stage:        "3b",
		StageCode:    clinical.StageG3B,
		RiskScore:    65,
		RiskCategory: clinical.RiskMedium,
		Indicators: assessment.Indicators{
			EGFR:            38.41,
			Cockcroft:       41.2,
			CockcroftSource: clinical.ClearanceComputed,
			BMI:             27.3,
		},
		Age: 68,
		Sex: clinical.Female,
	}
	if withSRIRC {
		r.SRIRC = &assessment.SRIRCResult{
			Score:       22,
			Proteinuria: clinical.ProteinuriaModerate,
			Tier:        clinical.InterpretSRIRC(22),
		}
	}
	return r
}
