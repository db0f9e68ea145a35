package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medicare/internal/models"
	"medicare/internal/services"
)

type PatientHandler struct {
	Service *services.PatientService
	log     *zap.Logger
}

func NewPatientHandler(service *services.PatientService, log *zap.Logger) *PatientHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PatientHandler{Service: service, log: log}
}

// writeError maps record service errors; anything unknown is logged and reported with fallback.
func (h *PatientHandler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		fail(c, http.StatusBadRequest, "Missing or invalid required fields")
	case errors.Is(err, services.ErrDuplicateReference):
		fail(c, http.StatusBadRequest, "Reference number already in use")
	case errors.Is(err, services.ErrPatientNotFound):
		fail(c, http.StatusNotFound, "Patient not found")
	case errors.Is(err, services.ErrVisitNotFound):
		fail(c, http.StatusNotFound, "Treatment entry not found")
	default:
		h.log.Error("[patients] "+fallback, zap.String("path", c.FullPath()), zap.Error(err))
		fail(c, http.StatusInternalServerError, fallback)
	}
}

// @Summary      List patients
// @Description  Patients owned by the caller, optionally filtered by a case-insensitive search term
// @Tags         Patients
// @Produce      json
// @Security     BearerAuth
// @Param        search  query     string  false  "Search term"
// @Success      200     {object}  Envelope{data=[]models.Patient}
// @Failure      401     {object}  Envelope
// @Failure      403     {object}  Envelope
// @Router       /patients [get]
func (h *PatientHandler) List(c *gin.Context) {
	owner, ok := accountID(c)
	if !ok {
		return
	}
	patients, err := h.Service.List(c.Request.Context(), owner, models.PatientQuery{Search: c.Query("search")})
	if err != nil {
		h.writeError(c, err, "Failed to fetch patients")
		return
	}
	if patients == nil {
		patients = []*models.Patient{}
	}
	respond(c, http.StatusOK, "Patients fetched successfully", patients)
}

// @Summary      Create a patient
// @Tags         Patients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      models.CreatePatientInput  true  "Patient"
// @Success      201   {object}  Envelope{data=models.Patient}
// @Failure      400   {object}  Envelope
// @Router       /patients [post]
func (h *PatientHandler) Create(c *gin.Context) {
	owner, ok := accountID(c)
	if !ok {
		return
	}
	var req models.CreatePatientInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	p, err := h.Service.Create(c.Request.Context(), owner, req)
	if err != nil {
		h.writeError(c, err, "Failed to create patient")
		return
	}
	h.log.Info("[patients][create] ok", zap.Int64("patient_id", p.ID), zap.Int("doctor_id", owner))
	respond(c, http.StatusCreated, "Patient created successfully", p)
}

// @Summary      Get a patient
// @Tags         Patients
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Patient ID"
// @Success      200  {object}  Envelope{data=models.Patient}
// @Failure      404  {object}  Envelope
// @Router       /patients/{id} [get]
func (h *PatientHandler) Get(c *gin.Context) {
	owner, ok := accountID(c)
	if !ok {
		return
	}
	id, ok := patientIDParam(c)
	if !ok {
		return
	}
	p, err := h.Service.Get(c.Request.Context(), owner, id)
	if err != nil {
		h.writeError(c, err, "Failed to fetch patient")
		return
	}
	respond(c, http.StatusOK, "Patient fetched successfully", p)
}

// @Summary      Update a patient
// @Description  Only fields present in the body change. A treatment_entries array replaces the visit list.
// @Tags         Patients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int                  true  "Patient ID"
// @Param        body  body      models.PatientPatch  true  "Fields to change"
// @Success      200   {object}  Envelope{data=models.Patient}
// @Failure      400   {object}  Envelope
// @Failure      404   {object}  Envelope
// @Router       /patients/{id} [put]
func (h *PatientHandler) Update(c *gin.Context) {
	owner, ok := accountID(c)
	if !ok {
		return
	}
	id, ok := patientIDParam(c)
	if !ok {
		return
	}
	var req models.PatientPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	p, err := h.Service.Update(c.Request.Context(), owner, id, req)
	if err != nil {
		h.writeError(c, err, "Failed to update patient")
		return
	}
	respond(c, http.StatusOK, "Patient updated successfully", p)
}

// @Summary      Delete a patient
// @Tags         Patients
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Patient ID"
// @Success      200  {object}  Envelope
// @Failure      404  {object}  Envelope
// @Router       /patients/{id} [delete]
func (h *PatientHandler) Delete(c *gin.Context) {
	owner, ok := accountID(c)
	if !ok {
		return
	}
	id, ok := patientIDParam(c)
	if !ok {
		return
	}
	if err := h.Service.Delete(c.Request.Context(), owner, id); err != nil {
		h.writeError(c, err, "Failed to delete patient")
		return
	}
	h.log.Info("[patients][delete] ok", zap.Int64("patient_id", id), zap.Int("doctor_id", owner))
	respond(c, http.StatusOK, "Patient deleted successfully", nil)
}

// @Summary      Add a visit
// @Tags         Visits
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int                true  "Patient ID"
// @Param        body  body      models.VisitInput  true  "Visit"
// @Success      201   {object}  Envelope{data=models.Patient}
// @Failure      400   {object}  Envelope
// @Failure      404   {object}  Envelope
// @Router       /patients/{id}/visits [post]
func (h *PatientHandler) AddVisit(c *gin.Context) {
	owner, ok := accountID(c)
	if !ok {
		return
	}
	id, ok := patientIDParam(c)
	if !ok {
		return
	}
	var req models.VisitInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	p, err := h.Service.AddVisit(c.Request.Context(), owner, id, req)
	if err != nil {
		h.writeError(c, err, "Failed to add treatment entry")
		return
	}
	respond(c, http.StatusCreated, "Treatment entry added successfully", p)
}

// @Summary      Update a visit
// @Tags         Visits
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      int                true  "Patient ID"
// @Param        visitId  path      string             true  "Visit ID"
// @Param        body     body      models.VisitPatch  true  "Fields to change"
// @Success      200      {object}  Envelope{data=models.Patient}
// @Failure      404      {object}  Envelope
// @Router       /patients/{id}/visits/{visitId} [put]
func (h *PatientHandler) UpdateVisit(c *gin.Context) {
	owner, ok := accountID(c)
	if !ok {
		return
	}
	id, ok := patientIDParam(c)
	if !ok {
		return
	}
	var req models.VisitPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	p, err := h.Service.UpdateVisit(c.Request.Context(), owner, id, c.Param("visitId"), req)
	if err != nil {
		h.writeError(c, err, "Failed to update treatment entry")
		return
	}
	respond(c, http.StatusOK, "Treatment entry updated successfully", p)
}

// @Summary      Remove a visit
// @Tags         Visits
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      int     true  "Patient ID"
// @Param        visitId  path      string  true  "Visit ID"
// @Success      200      {object}  Envelope{data=models.Patient}
// @Failure      404      {object}  Envelope
// @Router       /patients/{id}/visits/{visitId} [delete]
func (h *PatientHandler) RemoveVisit(c *gin.Context) {
	owner, ok := accountID(c)
	if !ok {
		return
	}
	id, ok := patientIDParam(c)
	if !ok {
		return
	}
	p, err := h.Service.RemoveVisit(c.Request.Context(), owner, id, c.Param("visitId"))
	if err != nil {
		h.writeError(c, err, "Failed to delete treatment entry")
		return
	}
	respond(c, http.StatusOK, "Treatment entry deleted successfully", p)
}
