package clinic

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	patients *PatientService
	records  *MedicalRecordService
}

func NewHandler(patients *PatientService, records *MedicalRecordService) *Handler {
	return &Handler{patients: patients, records: records}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients", h.CreatePatient)
	api.GET("/patients", h.ListPatients)
	api.GET("/patients/by-national-id/:nid", h.GetPatientByNationalID)
	api.GET("/patients/:id", h.GetPatient)
	api.PUT("/patients/:id", h.UpdatePatient)
	api.DELETE("/patients/:id", h.DeletePatient)
	api.GET("/patients/:id/record", h.GetPatientRecord)

	api.POST("/records", h.CreateRecord)
	api.GET("/records", h.ListRecords)
	api.GET("/records/:id", h.GetRecord)
	api.PUT("/records/:id", h.UpdateRecord)
	api.DELETE("/records/:id", h.DeleteRecord)
}

// httpError maps the service error kinds onto status codes.
func httpError(err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
	}
	var perr *PersistenceError
	if errors.As(err, &perr) {
		switch {
		case perr.Conflict():
			return echo.NewHTTPError(http.StatusConflict, perr.Error())
		case perr.NotFound():
			return echo.NewHTTPError(http.StatusNotFound, perr.Error())
		case perr.MissingReference():
			return echo.NewHTTPError(http.StatusBadRequest, perr.Error())
		}
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Patient Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.patients.InsertWithRecord(c.Request().Context(), &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

// ListPatients attaches records when with_records=true.
func (h *Handler) ListPatients(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		patients []*Patient
		err      error
	)
	if c.QueryParam("with_records") == "true" {
		patients, err = h.patients.ListAllWithRecords(ctx)
	} else {
		patients, err = h.patients.ListAll(ctx)
	}
	if err != nil {
		return httpError(err)
	}
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Slice(patients, pg), len(patients), pg.Limit, pg.Offset))
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.patients.GetByIDWithRecord(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if p == nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetPatientByNationalID(c echo.Context) error {
	p, err := h.patients.FindByNationalID(c.Request().Context(), c.Param("nid"))
	if err != nil {
		return httpError(err)
	}
	if p == nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = id
	if err := h.patients.Update(c.Request().Context(), &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.patients.SoftDelete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetPatientRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.patients.GetByID(ctx, id)
	if err != nil {
		return httpError(err)
	}
	if p == nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	rec, err := h.records.FindByPatientID(ctx, id)
	if err != nil {
		return httpError(err)
	}
	if rec == nil {
		return echo.NewHTTPError(http.StatusNotFound, "medical record not found")
	}
	return c.JSON(http.StatusOK, rec)
}

// -- Medical Record Handlers --

// CreateRecord adds a record to an existing patient that has none.
func (h *Handler) CreateRecord(c echo.Context) error {
	var rec MedicalRecord
	if err := c.Bind(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if rec.PatientID > 0 {
		existing, err := h.records.FindByPatientID(ctx, rec.PatientID)
		if err != nil {
			return httpError(err)
		}
		if existing != nil {
			return echo.NewHTTPError(http.StatusConflict, "patient already has a medical record")
		}
	}
	if err := h.records.Insert(ctx, &rec); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) ListRecords(c echo.Context) error {
	recs, err := h.records.ListAll(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Slice(recs, pg), len(recs), pg.Limit, pg.Offset))
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rec, err := h.records.GetByID(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if rec == nil {
		return echo.NewHTTPError(http.StatusNotFound, "medical record not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) UpdateRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var rec MedicalRecord
	if err := c.Bind(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec.ID = id
	if err := h.records.Update(c.Request().Context(), &rec); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DeleteRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.records.SoftDelete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
