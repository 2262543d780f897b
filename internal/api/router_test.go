package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Skufu/RenalRisk/internal/assessment"
	"github.com/Skufu/RenalRisk/internal/clinical"
	"github.com/Skufu/RenalRisk/internal/predictor"
	"github.com/Skufu/RenalRisk/internal/store"
)

type memStore struct {
	mu      sync.Mutex
	reports []*assessment.Report
	pingErr error
}

func (m *memStore) Save(ctx context.Context, r *assessment.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

func (m *memStore) Get(ctx context.Context, id uuid.UUID) (*assessment.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reports {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) List(ctx context.Context, limit int) ([]*assessment.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*assessment.Report, 0, len(m.reports))
	for i := len(m.reports) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.reports[i])
	}
	return out, nil
}

func (m *memStore) Ping(ctx context.Context) error { return m.pingErr }
func (m *memStore) Close() error                   { return nil }

type failingPredictor struct {
	err error
}

func (f failingPredictor) Name() string { return "failing" }

func (f failingPredictor) PredictStage(ctx context.Context, features clinical.FeatureVector) (string, error) {
	return "", f.err
}

func (f failingPredictor) Ping(ctx context.Context) error { return f.err }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestRouter(p predictor.StagePredictor, s store.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := quietLogger()

	var opts []assessment.Option
	if s != nil {
		opts = append(opts, assessment.WithRecorder(s))
	}
	svc := assessment.NewService(clinical.NewDeriver(clinical.DefaultFeatureConfig()), p, logger, opts...)
	return NewRouter(Config{Service: svc, Store: s, Logger: logger})
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

const healthyPayload = `{
	"age": 50,
	"sexe": "Homme",
	"poids": "70",
	"taille": 1.75,
	"creatinine": "10,0",
	"uree": 0.4,
	"hb": 13,
	"k": 4.2
}`

func TestRouterHealthz(t *testing.T) {
	router := newTestRouter(predictor.EGFRBandPredictor{}, nil)

	w := doJSON(router, "GET", "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected a request id header")
	}
}

func TestRouterReadyz(t *testing.T) {
	t.Run("no store", func(t *testing.T) {
		router := newTestRouter(predictor.EGFRBandPredictor{}, nil)
		w := doJSON(router, "GET", "/readyz", "")
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"store":"disabled"`) {
			t.Fatalf("unexpected readiness: %d %s", w.Code, w.Body.String())
		}
	})

	t.Run("store down", func(t *testing.T) {
		router := newTestRouter(predictor.EGFRBandPredictor{}, &memStore{pingErr: errors.New("connection refused")})
		w := doJSON(router, "GET", "/readyz", "")
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "degraded") {
			t.Fatalf("unexpected body: %s", w.Body.String())
		}
	})

	t.Run("classifier down", func(t *testing.T) {
		router := newTestRouter(failingPredictor{err: predictor.ErrUnavailable}, nil)
		w := doJSON(router, "GET", "/readyz", "")
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", w.Code)
		}
	})
}

func TestPredictStage(t *testing.T) {
	router := newTestRouter(predictor.EGFRBandPredictor{}, nil)

	w := doJSON(router, "POST", "/api/v1/predict/stage", healthyPayload)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var report assessment.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Stage != "1" || report.RiskCategory != clinical.RiskLow {
		t.Fatalf("expected stage 1 LOW, got %+v", report)
	}
	if report.Indicators.EGFR != 91.69 {
		t.Fatalf("expected eGFR 91.69, got %v", report.Indicators.EGFR)
	}
	if report.SRIRC != nil {
		t.Fatal("expected no SR-IRC block without comorbidity data")
	}
}

func TestPredictStageWithComorbidities(t *testing.T) {
	router := newTestRouter(predictor.EGFRBandPredictor{}, nil)

	payload := `{
		"age": 70, "sexe": "M", "poids": 80, "taille": 170, "creatinine": 45,
		"uree": 1.8, "hb": 9, "k": 5.6,
		"proteinurieBandelette": "> 3", "diabete": "oui", "hta": true
	}`
	w := doJSON(router, "POST", "/api/v1/predict/stage", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var report assessment.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Stage != "5" || report.RiskCategory != clinical.RiskHigh {
		t.Fatalf("expected stage 5 HIGH, got %+v", report)
	}
	if report.SRIRC == nil || report.SRIRC.Score != 41 {
		t.Fatalf("expected SR-IRC 41, got %+v", report.SRIRC)
	}
}

func TestPredictStageValidation(t *testing.T) {
	router := newTestRouter(predictor.EGFRBandPredictor{}, nil)

	w := doJSON(router, "POST", "/api/v1/predict/stage", `{
		"age": 50, "sexe": "M", "poids": 70, "taille": 1.75, "creatinine": 10,
		"uree": 0.4, "hb": 13, "k": 4.2,
		"bpSystolic": 80, "bpDiastolic": 120
	}`)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for validation failure, got %d", w.Code)
	}
	body := strings.ToLower(w.Body.String())
	if !strings.Contains(body, "validation_failed") || !strings.Contains(body, "blood pressure") {
		t.Fatalf("expected validation error response, got %s", w.Body.String())
	}
}

func TestPredictStageOutOfRange(t *testing.T) {
	router := newTestRouter(predictor.EGFRBandPredictor{}, nil)

	w := doJSON(router, "POST", "/api/v1/predict/stage", `{
		"age": 130, "sexe": "x", "poids": 70, "taille": 1.75, "creatinine": 10,
		"uree": 0.4, "hb": 13, "k": 4.2
	}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Details) != 2 {
		t.Fatalf("expected age and sex errors, got %+v", resp.Details)
	}
}

func TestPredictStageMissingCreatinine(t *testing.T) {
	router := newTestRouter(predictor.EGFRBandPredictor{}, nil)

	w := doJSON(router, "POST", "/api/v1/predict/stage", `{
		"age": 50, "sexe": "M", "poids": 70, "taille": 1.75, "creatinine": "nan",
		"uree": 0.4, "hb": 13, "k": 4.2
	}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "missing_creatinine") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestPredictStageClassifierErrors(t *testing.T) {
	timedOut := errors.Join(predictor.ErrUnavailable, context.DeadlineExceeded)
	cases := map[error]int{
		predictor.ErrUnavailable:     http.StatusServiceUnavailable,
		predictor.ErrInvalidResponse: http.StatusBadGateway,
		context.DeadlineExceeded:     http.StatusGatewayTimeout,
		timedOut:                     http.StatusGatewayTimeout,
		errors.New("boom"):           http.StatusInternalServerError,
	}
	for err, want := range cases {
		router := newTestRouter(failingPredictor{err: err}, nil)
		w := doJSON(router, "POST", "/api/v1/predict/stage", healthyPayload)
		if w.Code != want {
			t.Fatalf("%v: expected %d, got %d", err, want, w.Code)
		}
	}
}

func TestPredictStageInvalidJSON(t *testing.T) {
	router := newTestRouter(predictor.EGFRBandPredictor{}, nil)

	w := doJSON(router, "POST", "/api/v1/predict/stage", `{"age":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestScoreSRIRC(t *testing.T) {
	router := newTestRouter(predictor.EGFRBandPredictor{}, nil)

	w := doJSON(router, "POST", "/api/v1/score/sr-irc", `{
		"age": 80, "sexe": "M", "creatinine": 60, "hb": 9,
		"proteinurie": 4, "diabete": "oui", "hta": 1
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp srircResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Score != 43 || resp.Tier.Level != clinical.TierImminent {
		t.Fatalf("expected 43 Imminent, got %+v", resp)
	}
	if resp.EGFR <= 0 || resp.EGFR >= 15 {
		t.Fatalf("expected eGFR below 15, got %v", resp.EGFR)
	}
}

func TestScoreSRIRCMissingCreatinine(t *testing.T) {
	router := newTestRouter(predictor.EGFRBandPredictor{}, nil)

	w := doJSON(router, "POST", "/api/v1/score/sr-irc", `{"age": 60, "sexe": "F"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestFeaturesEndpoint(t *testing.T) {
	router := newTestRouter(predictor.EGFRBandPredictor{}, nil)

	w := doJSON(router, "POST", "/api/v1/features", healthyPayload)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp featuresResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Vector) != clinical.FeatureCount || len(resp.Features) != clinical.FeatureCount {
		t.Fatalf("expected %d features, got %d/%d", clinical.FeatureCount, len(resp.Vector), len(resp.Features))
	}
	if resp.FeatureNames[0] != "eDFG_CKD_EPI" || resp.FeatureNames[15] != "Interaction_IMC_eDFG" {
		t.Fatalf("unexpected feature order: %v", resp.FeatureNames)
	}
	if resp.Features["Score_Echo_Total"] != clinical.NeutralEchoScore {
		t.Fatalf("expected neutral echo score, got %v", resp.Features["Score_Echo_Total"])
	}
}

func TestModelEndpoint(t *testing.T) {
	router := newTestRouter(predictor.EGFRBandPredictor{}, nil)

	w := doJSON(router, "GET", "/api/v1/model", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"predictor":"egfr-kdigo"`) || !strings.Contains(body, `"featureCount":16`) {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestAssessmentHistory(t *testing.T) {
	s := &memStore{}
	router := newTestRouter(predictor.EGFRBandPredictor{}, s)

	w := doJSON(router, "POST", "/api/v1/predict/stage", healthyPayload)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var created assessment.Report
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = doJSON(router, "GET", "/api/v1/assessments", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"count":1`) {
		t.Fatalf("unexpected list: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(router, "GET", "/api/v1/assessments/"+created.ID.String(), "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), created.ID.String()) {
		t.Fatalf("unexpected get: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(router, "GET", "/api/v1/assessments/"+uuid.NewString(), "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w = doJSON(router, "GET", "/api/v1/assessments/not-a-uuid", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	w = doJSON(router, "GET", "/api/v1/assessments?limit=zero", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	w = doJSON(router, "GET", "/api/v1/exports/assessments.xlsx", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("unexpected content type %q", w.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Fatal("expected a zip container")
	}
}

func TestAssessmentHistoryDisabled(t *testing.T) {
	router := newTestRouter(predictor.EGFRBandPredictor{}, nil)

	for _, path := range []string{"/api/v1/assessments", "/api/v1/exports/assessments.xlsx"} {
		w := doJSON(router, "GET", path, "")
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, w.Code)
		}
	}
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := quietLogger()
	svc := assessment.NewService(clinical.NewDeriver(clinical.DefaultFeatureConfig()), predictor.EGFRBandPredictor{}, logger)
	router := NewRouter(Config{Service: svc, Logger: logger, RateLimit: rate.Limit(0.001), RateBurst: 1})

	if w := doJSON(router, "GET", "/api/v1/model", ""); w.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", w.Code)
	}
	if w := doJSON(router, "GET", "/api/v1/model", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w := doJSON(router, "GET", "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("health checks must bypass the limiter, got %d", w.Code)
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	router := newTestRouter(predictor.EGFRBandPredictor{}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	router.ServeHTTP(w, req)

	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("expected propagated id, got %q", got)
	}
}

// Ensure limitBodySize middleware allows small payloads and blocks large ones.
func TestLimitBodySize(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(limitBodySize(10))
	router.POST("/echo", func(c *gin.Context) {
		_, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too large"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	t.Run("within limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/echo", strings.NewReader("12345"))
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	})

	t.Run("over limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/echo", strings.NewReader("01234567890"))
		router.ServeHTTP(w, req)
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected 413, got %d", w.Code)
		}
	})
}

func TestOversizedRecordIsRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := quietLogger()
	svc := assessment.NewService(clinical.NewDeriver(clinical.DefaultFeatureConfig()), predictor.EGFRBandPredictor{}, logger)
	router := NewRouter(Config{Service: svc, Logger: logger, MaxBodyBytes: 32})

	w := doJSON(router, "POST", "/api/v1/predict/stage", healthyPayload)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}
