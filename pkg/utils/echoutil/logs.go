// Package echoutil connects echo with the logging of knitfleet.
package echoutil

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"go.uber.org/zap"
)

// LogHandler logs each request and its response with logger.
//
// Responses with status 5xx are logged as Error, 4xx as Warn, and others as Info.
func LogHandler(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			begin := time.Now()
			logger.Debug(
				"< request",
				zap.String("method", req.Method), zap.String("uri", req.RequestURI),
			)

			err := next(c)
			if err != nil {
				// settle the status code before logging
				c.Error(err)
			}

			status := c.Response().Status
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", status),
				zap.Duration("elapsed", time.Since(begin)),
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}
			switch {
			case 500 <= status:
				logger.Error("> response", fields...)
			case 400 <= status:
				logger.Warn("> response", fields...)
			default:
				logger.Info("> response", fields...)
			}
			return nil
		}
	}
}

// SetLevel sets the level of the echo's own logger.
//
// Unknown levels fall back to warn.
func SetLevel(e *echo.Echo, loglevel string) {
	switch strings.ToLower(loglevel) {
	case "debug":
		e.Logger.SetLevel(log.DEBUG)
	case "info":
		e.Logger.SetLevel(log.INFO)
	case "warn", "warning", "":
		e.Logger.SetLevel(log.WARN)
	case "error":
		e.Logger.SetLevel(log.ERROR)
	case "off":
		e.Logger.SetLevel(log.OFF)
	default:
		e.Logger.SetLevel(log.WARN)
		e.Logger.Warnf("unknown loglevel: %s . fall-backed to warn", loglevel)
	}
}
