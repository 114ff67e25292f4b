package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dentalclinic/records/internal/platform/apperr"
)

// RequestTimeout puts a deadline on each request context. When the handler
// has not returned by then the client gets 504 and the handler's context is
// cancelled. Requests matched by skip keep the server's own limits.
func RequestTimeout(timeout time.Duration, skip func(c echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip != nil && skip(c) {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					if c.Response().Committed {
						return nil
					}
					return c.JSON(http.StatusGatewayTimeout, &apperr.AppError{
						Message: "request processing exceeded the allowed time",
						Code:    "TIMEOUT",
					})
				}
				return ctx.Err()
			}
		}
	}
}
