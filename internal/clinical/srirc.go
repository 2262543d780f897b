package clinical

// DefaultHemoglobinGdL replaces a missing hemoglobin in SR-IRC scoring so an
// unmeasured value does not count as anemia.
const DefaultHemoglobinGdL = 12.0

// SRIRCInput holds the seven factors of the SR-IRC score.
type SRIRCInput struct {
	Age           int
	Sex           Sex
	EGFR          float64
	Proteinuria   ProteinuriaCategory
	Diabetes      bool
	Hypertension  bool
	HemoglobinGdL float64
}

// SRIRCPoints breaks a score down by factor.
type SRIRCPoints struct {
	EGFR         int `json:"egfr"`
	Age          int `json:"age"`
	Sex          int `json:"sex"`
	Proteinuria  int `json:"proteinuria"`
	Diabetes     int `json:"diabetes"`
	Hypertension int `json:"hypertension"`
	Anemia       int `json:"anemia"`
}

func (p SRIRCPoints) Total() int {
	return p.EGFR + p.Age + p.Sex + p.Proteinuria + p.Diabetes + p.Hypertension + p.Anemia
}

// ScoreSRIRC computes each factor's contribution independently.
func ScoreSRIRC(in SRIRCInput) SRIRCPoints {
	var p SRIRCPoints

	switch {
	case in.EGFR < 15:
		p.EGFR = 20
	case in.EGFR < 30:
		p.EGFR = 15
	case in.EGFR < 45:
		p.EGFR = 10
	case in.EGFR < 60:
		p.EGFR = 5
	}

	switch {
	case in.Age > 75:
		p.Age = 6
	case in.Age >= 65:
		p.Age = 4
	case in.Age >= 50:
		p.Age = 2
	}

	if in.Sex == Male {
		p.Sex = 1
	}

	switch in.Proteinuria {
	case ProteinuriaHeavy:
		p.Proteinuria = 8
	case ProteinuriaModerate:
		p.Proteinuria = 4
	}

	if in.Diabetes {
		p.Diabetes = 3
	}
	if in.Hypertension {
		p.Hypertension = 2
	}
	if in.HemoglobinGdL < 11.0 {
		p.Anemia = 3
	}
	return p
}

// SRIRCScore is the additive total.
func SRIRCScore(in SRIRCInput) int {
	return ScoreSRIRC(in).Total()
}

type RiskTierLevel string

const (
	TierLow      RiskTierLevel = "Low"
	TierModerate RiskTierLevel = "Moderate"
	TierHigh     RiskTierLevel = "High"
	TierVeryHigh RiskTierLevel = "Very High"
	TierImminent RiskTierLevel = "Imminent"
)

// RiskTier is the interpretation of an SR-IRC score.
type RiskTier struct {
	Level          RiskTierLevel `json:"level"`
	Marker         string        `json:"marker"`
	FollowUp       string        `json:"followUp"`
	Recommendation string        `json:"recommendation"`
}

var (
	tierImminent = RiskTier{TierImminent, "black", "Dialysis imminent", "Hospitalisation / emergency nephrology"}
	tierVeryHigh = RiskTier{TierVeryHigh, "red", "Dialysis preparation", "Monthly follow-up / vascular access planning"}
	tierHigh     = RiskTier{TierHigh, "orange", "Quarterly follow-up", "Specialist nephrology consultation"}
	tierModerate = RiskTier{TierModerate, "yellow", "Semestrial review", "Regular biological monitoring"}
	tierLow      = RiskTier{TierLow, "green", "Annual review", "Standard nephroprotection measures"}
)

// InterpretSRIRC maps a score onto its tier. Lower bounds are inclusive.
func InterpretSRIRC(score int) RiskTier {
	switch {
	case score > 40:
		return tierImminent
	case score >= 31:
		return tierVeryHigh
	case score >= 21:
		return tierHigh
	case score >= 11:
		return tierModerate
	default:
		return tierLow
	}
}
