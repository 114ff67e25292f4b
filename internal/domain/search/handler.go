package search

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dentalclinic/records/internal/platform/apperr"
	"github.com/dentalclinic/records/internal/platform/export"
)

// ExportFilename is the attachment name of the spreadsheet download.
const ExportFilename = "visits.xlsx"

type Handler struct {
	resolver *Resolver
}

func NewHandler(resolver *Resolver) *Handler {
	return &Handler{resolver: resolver}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/search", h.SearchQuery)
	api.POST("/search", h.Search)
	api.POST("/export", h.Export)
}

// searchRequest is the body of the search form.
type searchRequest struct {
	FilterType  string          `json:"filterType"`
	FilterValue string          `json:"filterValue"`
	Mode        string          `json:"mode"`
	Columns     []export.Column `json:"columns,omitempty"`
}

func (h *Handler) Search(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.respond(c, req.FilterType, req.FilterValue, req.Mode)
}

func (h *Handler) SearchQuery(c echo.Context) error {
	return h.respond(c, c.QueryParam("field"), c.QueryParam("value"), c.QueryParam("mode"))
}

func (h *Handler) respond(c echo.Context, field, value, modeName string) error {
	sel, err := ParseSelector(field)
	if err != nil {
		return apperr.HTTPError(err)
	}
	mode, err := ParseMode(modeName)
	if err != nil {
		return apperr.HTTPError(err)
	}
	rows, err := h.resolver.Search(c.Request().Context(), sel, value, mode)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, rows)
}

// Export streams the collapsed search result as an .xlsx attachment.
func (h *Handler) Export(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sel, err := ParseSelector(req.FilterType)
	if err != nil {
		return apperr.HTTPError(err)
	}
	table, err := h.resolver.Export(c.Request().Context(), sel, req.FilterValue, ModeCollapsed, req.Columns)
	if err != nil {
		return apperr.HTTPError(err)
	}
	blob, err := table.XLSX()
	if err != nil {
		return apperr.HTTPError(apperr.Internal(err))
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+ExportFilename+`"`)
	return c.Blob(http.StatusOK, export.ContentType, blob)
}
