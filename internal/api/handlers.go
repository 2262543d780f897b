package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Skufu/RenalRisk/internal/assessment"
	"github.com/Skufu/RenalRisk/internal/clinical"
	"github.com/Skufu/RenalRisk/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type handler struct {
	svc    *assessment.Service
	store  store.Store
	logger *logrus.Logger
}

type featuresResponse struct {
	FeatureNames []string              `json:"featureNames"`
	Features     map[string]float64    `json:"features"`
	Vector       []float64             `json:"vector"`
	Indicators   assessment.Indicators `json:"indicators"`
}

type srircResponse struct {
	EGFR float64 `json:"eDFG"`
	assessment.SRIRCResult
}

func (h *handler) bind(c *gin.Context) (RecordRequest, bool) {
	var req RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			abortWithError(c, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
			return req, false
		}
		abortWithError(c, http.StatusBadRequest, "invalid_payload", err.Error())
		return req, false
	}
	return req, true
}

// bindRecord decodes and validates a full record.
func (h *handler) bindRecord(c *gin.Context) (RecordRequest, clinical.ClinicalRecord, bool) {
	req, ok := h.bind(c)
	if !ok {
		return req, clinical.ClinicalRecord{}, false
	}
	if req.MissingCreatinine() {
		writeError(c, clinical.ErrMissingCreatinine)
		return req, clinical.ClinicalRecord{}, false
	}
	rec := req.Record()
	if err := rec.Validate(); err != nil {
		writeError(c, err)
		return req, rec, false
	}
	return req, rec, true
}

func (h *handler) predictStage(c *gin.Context) {
	req, rec, ok := h.bindRecord(c)
	if !ok {
		return
	}

	var comorbid *assessment.Comorbidities
	if req.HasComorbidities() {
		cm := req.Comorbidities()
		comorbid = &cm
	}

	report, err := h.svc.Assess(c.Request.Context(), rec, comorbid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) scoreSRIRC(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	if req.MissingCreatinine() {
		writeError(c, clinical.ErrMissingCreatinine)
		return
	}

	rec := req.Record()
	fields := []string{"age", "sexe", "creatinine"}
	if req.Hemoglobin.Set {
		fields = append(fields, "hb")
	}
	if err := rec.ValidateFields(fields...); err != nil {
		writeError(c, err)
		return
	}

	result, err := h.svc.SRIRC(rec, req.Comorbidities())
	if err != nil {
		writeError(c, err)
		return
	}
	egfr, _ := clinical.EGFR(rec.Age, rec.Sex, rec.CreatinineMgL)
	c.JSON(http.StatusOK, srircResponse{EGFR: clinical.Round2(egfr), SRIRCResult: result})
}

func (h *handler) features(c *gin.Context) {
	_, rec, ok := h.bindRecord(c)
	if !ok {
		return
	}

	d, err := h.svc.Features(rec)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, featuresResponse{
		FeatureNames: clinical.FeatureNames[:],
		Features:     d.Features.Map(),
		Vector:       d.Features.Slice(),
		Indicators: assessment.Indicators{
			EGFR:            clinical.Round2(d.EGFR),
			Cockcroft:       clinical.Round2(d.Clearance.MLPerMin),
			CockcroftSource: d.Clearance.Source,
			BMI:             clinical.Round2(d.BMI),
		},
	})
}

func (h *handler) model(c *gin.Context) {
	cfg := h.svc.FeatureConfig()
	c.JSON(http.StatusOK, gin.H{
		"predictor":    h.svc.PredictorName(),
		"featureCount": clinical.FeatureCount,
		"featureNames": clinical.FeatureNames,
		"thresholds": gin.H{
			"potassiumOverloadMeqL": cfg.PotassiumOverloadMeqL,
			"ureaOverloadGL":        cfg.UreaOverloadGL,
			"anemiaHbGdL":           cfg.AnemiaHbGdL,
		},
	})
}

func (h *handler) requireStore(c *gin.Context) bool {
	if h.store == nil {
		abortWithError(c, http.StatusServiceUnavailable, "store_disabled", "assessment history is not configured")
		return false
	}
	return true
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return store.DefaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		abortWithError(c, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
		return 0, false
	}
	return limit, true
}

func (h *handler) listAssessments(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	reports, err := h.store.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list assessments")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assessments": reports, "count": len(reports)})
}

func (h *handler) getAssessment(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_id", "id must be a UUID")
		return
	}

	report, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.logger.WithError(err).WithField("assessment_id", id).Error("Failed to load assessment")
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) exportAssessments(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	reports, err := h.store.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list assessments for export")
		writeError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := store.WriteXLSX(&buf, reports); err != nil {
		h.logger.WithError(err).Error("Failed to build assessment export")
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="assessments.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
