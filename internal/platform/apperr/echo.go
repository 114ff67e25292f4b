package apperr

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HTTPError converts err into the echo error the handlers return. An
// AppError is rendered as its JSON body; anything else becomes an opaque 500
// with the cause kept in Internal for the logs.
func HTTPError(err error) *echo.HTTPError {
	if appErr, ok := As(err); ok {
		he := echo.NewHTTPError(appErr.HTTPStatus, appErr)
		if appErr.Err != nil && !isSentinel(appErr.Err) {
			he.Internal = appErr.Err
		}
		return he
	}
	he := echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	he.Internal = err
	return he
}
