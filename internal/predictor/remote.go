package predictor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/Skufu/RenalRisk/internal/clinical"
)

// RemoteConfig configures the HTTP model-serving client.
type RemoteConfig struct {
	BaseURL          string
	Timeout          time.Duration
	RetryCount       int
	RateLimit        float64
	MaxRequests      uint32
	Interval         time.Duration
	OpenTimeout      time.Duration
	FailureThreshold uint32
}

type predictRequest struct {
	FeatureNames []string           `json:"feature_names"`
	Features     map[string]float64 `json:"features"`
	Vector       []float64          `json:"vector"`
}

type predictResponse struct {
	Stage string `json:"stage"`
	Error string `json:"error,omitempty"`
}

// rejectedCall marks failures caused by the caller rather than the classifier:
// an abandoned context or a 4xx answer.
type rejectedCall struct {
	err error
}

func (e *rejectedCall) Error() string { return e.err.Error() }
func (e *rejectedCall) Unwrap() error { return e.err }

// RemoteClient calls a model-serving endpoint that hosts the trained stacking
// classifier. Calls go through a rate limiter and a circuit breaker.
type RemoteClient struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *logrus.Logger
}

func NewRemoteClient(cfg RemoteConfig, logger *logrus.Logger) *RemoteClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 50
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 3
	}
	if cfg.Interval == 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "stage-classifier",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Only transport errors and 5xx answers count against the classifier.
		IsSuccessful: func(err error) bool {
			var rejected *rejectedCall
			return err == nil || errors.As(err, &rejected)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &RemoteClient{
		http:    client,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1),
		logger:  logger,
	}
}

func (c *RemoteClient) Name() string { return "remote" }

// PredictStage posts the vector both by name and in column order.
func (c *RemoteClient) PredictStage(ctx context.Context, features clinical.FeatureVector) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("rate limit wait failed: %w", ctxErr)
		}
		return "", fmt.Errorf("rate limit wait failed: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.predict(ctx, features)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return "", err
	}
	return result.(string), nil
}

func (c *RemoteClient) predict(ctx context.Context, features clinical.FeatureVector) (string, error) {
	body := predictRequest{
		FeatureNames: clinical.FeatureNames[:],
		Features:     features.Map(),
		Vector:       features.Slice(),
	}

	var out predictResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/predict")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.logger.WithError(err).Warn("Stage classifier call abandoned by caller")
			return "", &rejectedCall{err: fmt.Errorf("stage classifier call: %w", ctxErr)}
		}
		c.logger.WithError(err).Error("Stage classifier call failed")
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if resp.IsError() {
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode(),
			"error":       out.Error,
		}).Error("Stage classifier returned error status")
		err := fmt.Errorf("%w: status %d %s", ErrInvalidResponse, resp.StatusCode(), out.Error)
		if resp.StatusCode() < 500 {
			return "", &rejectedCall{err: err}
		}
		return "", err
	}
	if strings.TrimSpace(out.Stage) == "" {
		return "", fmt.Errorf("%w: empty stage", ErrInvalidResponse)
	}
	return out.Stage, nil
}

// Ping checks the model server's health endpoint.
func (c *RemoteClient) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	}
	return nil
}

// BreakerState exposes the circuit state for readiness reporting.
func (c *RemoteClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}
