// Package predictor adapts stage classifiers to the fixed feature vector
// produced by the clinical package.
package predictor

import (
	"context"
	"errors"

	"github.com/Skufu/RenalRisk/internal/clinical"
)

var (
	// ErrUnavailable is returned when the classifier cannot be reached or its
	// circuit breaker is open.
	ErrUnavailable = errors.New("stage classifier unavailable")
	// ErrInvalidResponse covers malformed or unexpected classifier output.
	ErrInvalidResponse = errors.New("stage classifier returned an invalid response")
	// ErrInsufficientFeatures means the vector lacks what the predictor needs.
	ErrInsufficientFeatures = errors.New("feature vector lacks a usable eGFR")
)

// StagePredictor maps a feature vector to a stage label.
type StagePredictor interface {
	PredictStage(ctx context.Context, features clinical.FeatureVector) (string, error)
	Name() string
}

// Pinger is implemented by predictors backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EGFRBandPredictor assigns the KDIGO G-category of the vector's eGFR. It is
// the offline stand-in when no trained model is deployed.
type EGFRBandPredictor struct{}

func (EGFRBandPredictor) Name() string { return "egfr-kdigo" }

func (EGFRBandPredictor) PredictStage(ctx context.Context, features clinical.FeatureVector) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	egfr, _ := features.Get("eDFG_CKD_EPI")
	if egfr <= 0 {
		return "", ErrInsufficientFeatures
	}
	return clinical.StageFromEGFR(egfr).Label(), nil
}
