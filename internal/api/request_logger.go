package api

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const requestIDHeader = "X-Request-Id"

// requestLogger tags each request with an id and stores a sub-logger
// carrying it on the request context.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(requestIDHeader, id)

			logger := log.With().
				Str("request_id", id).
				Str("path", req.URL.Path).
				Logger()
			c.SetRequest(req.WithContext(logger.WithContext(req.Context())))
			return next(c)
		}
	}
}
