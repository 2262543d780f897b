package clinical

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
)

// Stage is a KDIGO GFR category code.
type Stage string

const (
	StageG1  Stage = "G1"
	StageG2  Stage = "G2"
	StageG3A Stage = "G3A"
	StageG3B Stage = "G3B"
	StageG4  Stage = "G4"
	StageG5  Stage = "G5"
)

var stageLabels = map[Stage]string{
	StageG1:  "1",
	StageG2:  "2",
	StageG3A: "3a",
	StageG3B: "3b",
	StageG4:  "4",
	StageG5:  "5",
}

// Label returns the clinical label ("1".."5", "3a", "3b").
func (s Stage) Label() string {
	return stageLabels[s]
}

// ParseStage accepts canonical codes ("G3A"), clinical labels ("3a") and the
// free-text forms found in registries ("Stade 3B", "IRC stade 4 (15-29)").
// The first stage token wins, so eGFR ranges after the label are ignored. A
// bare stage 3 without its a/b split is rejected.
func ParseStage(raw string) (Stage, error) {
	tokens := strings.FieldsFunc(strings.ToUpper(raw), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		m := stageToken.FindStringSubmatch(tok)
		if m == nil {
			continue
		}
		return stageCodes[m[1]], nil
	}
	return "", fmt.Errorf("unrecognised CKD stage %q", raw)
}

var stageToken = regexp.MustCompile(`^(?:G|STADE|STAGE)?(3A|3B|1|2|4|5)$`)

var stageCodes = map[string]Stage{
	"1":  StageG1,
	"2":  StageG2,
	"3A": StageG3A,
	"3B": StageG3B,
	"4":  StageG4,
	"5":  StageG5,
}

// StageFromEGFR applies the KDIGO G-category cut-offs.
func StageFromEGFR(egfr float64) Stage {
	switch {
	case egfr >= 90:
		return StageG1
	case egfr >= 60:
		return StageG2
	case egfr >= 45:
		return StageG3A
	case egfr >= 30:
		return StageG3B
	case egfr >= 15:
		return StageG4
	default:
		return StageG5
	}
}

// RiskCategory is the LOW/MEDIUM/HIGH band of a stage risk score.
type RiskCategory string

const (
	RiskLow    RiskCategory = "LOW"
	RiskMedium RiskCategory = "MEDIUM"
	RiskHigh   RiskCategory = "HIGH"
)

var stageBase = map[Stage]float64{
	StageG1:  10,
	StageG2:  25,
	StageG3A: 45,
	StageG3B: 60,
	StageG4:  80,
	StageG5:  95,
}

const unknownStageBase = 50

// StageRiskScore anchors a 0-100 severity proxy on the predicted stage. It is
// not the SR-IRC score.
func StageRiskScore(stage Stage, age int, egfr, creatinineMgL float64) float64 {
	score, ok := stageBase[stage]
	if !ok {
		score = unknownStageBase
	}
	if age > 65 && egfr < 45 {
		score += 5
	}
	if creatinineMgL > 50 {
		score += 5
	}
	return math.Min(math.Max(score, 0), 100)
}

// BandRisk maps a 0-100 score onto LOW/MEDIUM/HIGH.
func BandRisk(score float64) RiskCategory {
	switch {
	case score < 40:
		return RiskLow
	case score < 70:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// Round2 rounds for display.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
