// Package assessment runs a clinical record through feature derivation, stage
// prediction and risk scoring.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Skufu/RenalRisk/internal/clinical"
	"github.com/Skufu/RenalRisk/internal/metrics"
	"github.com/Skufu/RenalRisk/internal/predictor"
)

// Recorder persists finished reports. Implemented by the store package.
type Recorder interface {
	Save(ctx context.Context, report *Report) error
}

// Indicators is the renal snapshot shown alongside a prediction.
type Indicators struct {
	EGFR            float64                  `json:"eDFG"`
	Cockcroft       float64                  `json:"cockcroft"`
	CockcroftSource clinical.ClearanceSource `json:"cockcroftSource"`
	BMI             float64                  `json:"imc"`
}

// SRIRCResult is a scored and interpreted SR-IRC evaluation.
type SRIRCResult struct {
	Score       int                          `json:"score"`
	Points      clinical.SRIRCPoints         `json:"points"`
	Proteinuria clinical.ProteinuriaCategory `json:"proteinuriaCategory"`
	Tier        clinical.RiskTier            `json:"tier"`
}

// Report is the outcome of one stage assessment.
type Report struct {
	ID           uuid.UUID             `json:"id"`
	CreatedAt    time.Time             `json:"createdAt"`
	Predictor    string                `json:"predictor"`
	Stage        string                `json:"stage"`
	StageCode    clinical.Stage        `json:"stageCode"`
	RiskScore    float64               `json:"riskScore"`
	RiskCategory clinical.RiskCategory `json:"riskCategory"`
	Indicators   Indicators            `json:"indicators"`
	SRIRC        *SRIRCResult          `json:"srirc,omitempty"`
	Age          int                   `json:"age"`
	Sex          clinical.Sex          `json:"sexe"`
}

// Comorbidities carries the SR-IRC-only inputs. A nil *Comorbidities on an
// assessment skips SR-IRC scoring.
type Comorbidities struct {
	Proteinuria24h      float64
	ProteinuriaDipstick string
	Diabetes            bool
	Hypertension        bool
}

// Service runs stage assessments and SR-IRC scoring.
type Service struct {
	deriver   *clinical.Deriver
	predictor predictor.StagePredictor
	recorder  Recorder
	logger    *logrus.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder stores every successful report.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires a Service. The logger is required.
func NewService(deriver *clinical.Deriver, p predictor.StagePredictor, logger *logrus.Logger, opts ...Option) *Service {
	s := &Service{
		deriver:   deriver,
		predictor: p,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) PredictorName() string {
	return s.predictor.Name()
}

func (s *Service) FeatureConfig() clinical.FeatureConfig {
	return s.deriver.Config()
}

// Ping checks the classifier when it is a remote one.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.predictor.(predictor.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Features derives the vector alone. Missing creatinine is an error here too;
// a zero eGFR is never handed back as if it were measured.
func (s *Service) Features(rec clinical.ClinicalRecord) (clinical.Derivation, error) {
	d := s.deriver.Derive(rec)
	if !d.EGFRKnown {
		return d, clinical.ErrMissingCreatinine
	}
	s.logClearance(rec, d.Clearance)
	return d, nil
}

// Assess predicts the stage, bands the risk and, when comorbidities are given,
// scores SR-IRC on the same eGFR.
func (s *Service) Assess(ctx context.Context, rec clinical.ClinicalRecord, comorbid *Comorbidities) (*Report, error) {
	d, err := s.Features(rec)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	label, err := s.predictor.PredictStage(ctx, d.Features)
	metrics.RecordClassifierCall(s.predictor.Name(), err, time.Since(start))
	if err != nil {
		s.logger.WithError(err).WithField("predictor", s.predictor.Name()).Error("Stage prediction failed")
		return nil, fmt.Errorf("predict stage: %w", err)
	}

	stage, err := clinical.ParseStage(label)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", predictor.ErrInvalidResponse, err)
	}

	score := clinical.StageRiskScore(stage, rec.Age, d.EGFR, rec.CreatinineMgL)
	report := &Report{
		ID:           uuid.New(),
		CreatedAt:    s.now().UTC(),
		Predictor:    s.predictor.Name(),
		Stage:        stage.Label(),
		StageCode:    stage,
		RiskScore:    clinical.Round2(score),
		RiskCategory: clinical.BandRisk(score),
		Indicators: Indicators{
			EGFR:            clinical.Round2(d.EGFR),
			Cockcroft:       clinical.Round2(d.Clearance.MLPerMin),
			CockcroftSource: d.Clearance.Source,
			BMI:             clinical.Round2(d.BMI),
		},
		Age: rec.Age,
		Sex: rec.Sex,
	}

	if comorbid != nil {
		result := scoreSRIRC(rec, d.EGFR, *comorbid)
		report.SRIRC = &result
	}

	metrics.RecordAssessment(report.Stage, string(report.RiskCategory))
	s.logger.WithFields(logrus.Fields{
		"assessment_id": report.ID,
		"stage":         report.Stage,
		"risk_category": report.RiskCategory,
		"predictor":     report.Predictor,
	}).Info("Assessment completed")

	if s.recorder != nil {
		if err := s.recorder.Save(ctx, report); err != nil {
			s.logger.WithError(err).WithField("assessment_id", report.ID).Warn("Failed to record assessment")
		}
	}
	return report, nil
}

// SRIRC scores a record without stage prediction.
func (s *Service) SRIRC(rec clinical.ClinicalRecord, comorbid Comorbidities) (SRIRCResult, error) {
	egfr, err := clinical.EGFR(rec.Age, rec.Sex, rec.CreatinineMgL)
	if err != nil {
		return SRIRCResult{}, err
	}
	return scoreSRIRC(rec, egfr, comorbid), nil
}

func scoreSRIRC(rec clinical.ClinicalRecord, egfr float64, c Comorbidities) SRIRCResult {
	hb := rec.HemoglobinGdL
	if hb <= 0 {
		hb = clinical.DefaultHemoglobinGdL
	}
	proteinuria := clinical.CategorizeProteinuria(clinical.ResolveProteinuria(c.Proteinuria24h, c.ProteinuriaDipstick))

	points := clinical.ScoreSRIRC(clinical.SRIRCInput{
		Age:           rec.Age,
		Sex:           rec.Sex,
		EGFR:          egfr,
		Proteinuria:   proteinuria,
		Diabetes:      c.Diabetes,
		Hypertension:  c.Hypertension,
		HemoglobinGdL: hb,
	})
	score := points.Total()
	metrics.RecordSRIRC(score)

	return SRIRCResult{
		Score:       score,
		Points:      points,
		Proteinuria: proteinuria,
		Tier:        clinical.InterpretSRIRC(score),
	}
}

func (s *Service) logClearance(rec clinical.ClinicalRecord, c clinical.Clearance) {
	if !c.Degraded() {
		return
	}
	metrics.RecordDegradedClearance()
	s.logger.WithFields(logrus.Fields{
		"age":        rec.Age,
		"weight":     rec.WeightKg,
		"creatinine": rec.CreatinineMgL,
		"source":     c.Source,
	}).Warn("Cockcroft-Gault clearance could not be computed, using population fallback")
}

// IsInputError reports whether err stems from the record rather than the
// classifier.
func IsInputError(err error) bool {
	var verrs clinical.ValidationErrors
	return errors.Is(err, clinical.ErrMissingCreatinine) || errors.As(err, &verrs)
}
