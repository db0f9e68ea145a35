package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medicare/internal/services"
)

type ReportHandler struct {
	Service *services.ReportService
	log     *zap.Logger
}

func NewReportHandler(service *services.ReportService, log *zap.Logger) *ReportHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReportHandler{Service: service, log: log}
}

// @Summary      Download a patient report
// @Description  Renders the record as PDF. visits narrows the treatment history to the listed visit ids.
// @Tags         Reports
// @Produce      application/pdf
// @Security     BearerAuth
// @Param        id      path      int     true   "Patient ID"
// @Param        visits  query     string  false  "Comma separated visit ids"
// @Success      200     {file}    file
// @Failure      404     {object}  Envelope
// @Router       /patients/{id}/report [get]
func (h *ReportHandler) Download(c *gin.Context) {
	owner, ok := accountID(c)
	if !ok {
		return
	}
	id, ok := patientIDParam(c)
	if !ok {
		return
	}

	var visitIDs []string
	for _, v := range strings.Split(c.Query("visits"), ",") {
		if v = strings.TrimSpace(v); v != "" {
			visitIDs = append(visitIDs, v)
		}
	}

	rep, err := h.Service.PatientReport(c.Request.Context(), owner, id, visitIDs)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPatientNotFound):
			fail(c, http.StatusNotFound, "Patient not found")
		case errors.Is(err, services.ErrVisitNotFound):
			fail(c, http.StatusNotFound, "Treatment entry not found")
		default:
			h.log.Error("[reports][download] failed", zap.Int64("patient_id", id), zap.Error(err))
			fail(c, http.StatusInternalServerError, "Failed to generate report")
		}
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, rep.Filename))
	c.Data(http.StatusOK, "application/pdf", rep.Content)
}

// @Summary  Liveness probe
// @Tags     Health
// @Produce  json
// @Success  200  {object}  map[string]string
// @Router   /health [get]
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}
