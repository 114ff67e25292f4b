package visit

import (
	"net/http"
	"strings"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dentalclinic/records/internal/domain/diagnosis"
	"github.com/dentalclinic/records/internal/platform/apperr"
	"github.com/dentalclinic/records/internal/platform/auth"
	"github.com/dentalclinic/records/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/visits", h.ListVisits)
	api.POST("/visits", h.CreateVisit)
	api.GET("/visits/:id", h.GetVisit)
	api.PUT("/visits/:id", h.UpdateVisit)
	api.DELETE("/visits/:id", h.DeleteVisit)
	api.POST("/visits/:id/diagnoses", h.AppendDiagnosis)

	api.GET("/patients/history", h.PatientHistory)
}

// visitRequest is the body shared by intake and edit. Diagnoses may come as
// a list of pairs, as two parallel lists (intake form), or as the two
// comma-joined blobs (edit form); pairs win when several are sent.
type visitRequest struct {
	Name         string           `json:"name"`
	Surname      string           `json:"surname"`
	DentalNumber string           `json:"dental_number"`
	TypeOfVisit  string           `json:"type_of_visit"`
	Date         string           `json:"date"`
	Diagnoses    []diagnosis.Pair `json:"diagnoses"`
}

type intakeRequest struct {
	visitRequest
	DiagnosisList []string `json:"diagnosis_list"`
	ICD10List     []string `json:"icd10_list"`
}

type editRequest struct {
	visitRequest
	Diagnosis *string `json:"diagnosis"`
	ICD10     *string `json:"icd10"`
}

func (r *visitRequest) toVisit() (*Visit, error) {
	v := &Visit{
		PatientName:    r.Name,
		PatientSurname: r.Surname,
		DentalNumber:   r.DentalNumber,
		VisitType:      r.TypeOfVisit,
	}
	if date := strings.TrimSpace(r.Date); date != "" {
		d, err := civil.ParseDate(date)
		if err != nil {
			return nil, apperr.Validation("invalid visit date", map[string]string{
				"date": "must be a valid YYYY-MM-DD date",
			})
		}
		v.VisitDate = d
	}
	return v, nil
}

func (r *intakeRequest) pairs() []diagnosis.Pair {
	if len(r.Diagnoses) > 0 {
		return r.Diagnoses
	}
	n := len(r.DiagnosisList)
	if len(r.ICD10List) < n {
		n = len(r.ICD10List)
	}
	pairs := make([]diagnosis.Pair, 0, n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, diagnosis.Pair{Text: r.DiagnosisList[i], Code: r.ICD10List[i]})
	}
	return pairs
}

func (r *editRequest) pairs() diagnosis.Set {
	if len(r.Diagnoses) > 0 || (r.Diagnosis == nil && r.ICD10 == nil) {
		return r.Diagnoses
	}
	var text, codes string
	if r.Diagnosis != nil {
		text = *r.Diagnosis
	}
	if r.ICD10 != nil {
		codes = *r.ICD10
	}
	return diagnosis.Parse(text, codes)
}

// visitResponse adds the encoded blobs the edit form reads back.
type visitResponse struct {
	*Visit
	Diagnosis string `json:"diagnosis"`
	ICD10     string `json:"icd10"`
}

func newVisitResponse(v *Visit) visitResponse {
	text, codes := v.EncodedDiagnoses()
	return visitResponse{Visit: v, Diagnosis: text, ICD10: codes}
}

type appendRequest struct {
	Diagnosis string `json:"diagnosis"`
	ICD10     string `json:"icd10"`
}

type deleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *Handler) CreateVisit(c echo.Context) error {
	var req intakeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := req.toVisit()
	if err != nil {
		return apperr.HTTPError(err)
	}
	ctx := c.Request().Context()
	created, err := h.svc.Intake(ctx, v, req.pairs(), auth.UserNameFromContext(ctx))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, newVisitResponse(created))
}

func (h *Handler) GetVisit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	v, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, newVisitResponse(v))
}

func (h *Handler) ListVisits(c echo.Context) error {
	pg := pagination.FromContext(c)
	visits, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	out := make([]visitResponse, len(visits))
	for i, v := range visits {
		out[i] = newVisitResponse(v)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) UpdateVisit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req editRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := req.toVisit()
	if err != nil {
		return apperr.HTTPError(err)
	}
	v.Diagnoses = req.pairs()
	updated, err := h.svc.Edit(c.Request().Context(), id, v)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, newVisitResponse(updated))
}

func (h *Handler) DeleteVisit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	deleted, err := h.svc.Delete(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if !deleted {
		return c.JSON(http.StatusOK, deleteResponse{Success: false, Message: "visit not found"})
	}
	return c.JSON(http.StatusOK, deleteResponse{Success: true, Message: "visit deleted"})
}

func (h *Handler) AppendDiagnosis(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req appendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.AppendDiagnosis(c.Request().Context(), id, req.Diagnosis, req.ICD10)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, newVisitResponse(v))
}

func (h *Handler) PatientHistory(c echo.Context) error {
	entries, err := h.svc.History(c.Request().Context(), c.QueryParam("name"), c.QueryParam("surname"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	if entries == nil {
		entries = []*HistoryEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}
