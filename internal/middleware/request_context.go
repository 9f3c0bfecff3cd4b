package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/anonto42/nano-midea/social/pkg/logger"
)

const XRequestIDHeader = echo.HeaderXRequestID

// RequestID takes the request ID from X-Request-ID or generates one, echoes it in the
// response and stores it in the request context for log correlation.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			requestID := req.Header.Get(XRequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(XRequestIDHeader, requestID)
			c.SetRequest(req.WithContext(logger.WithRequestID(req.Context(), requestID)))
			return next(c)
		}
	}
}

// RequestLogger writes one access log entry per request through log.
func RequestLogger(log logger.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", float64(v.Latency) / float64(time.Millisecond),
				"remote_ip", v.RemoteIP,
			}
			ctx := c.Request().Context()
			switch {
			case v.Error != nil && v.Status >= 500:
				log.Error(ctx, "Request failed", append(fields, "error", v.Error.Error())...)
			case v.Status >= 400:
				log.Warn(ctx, "Request rejected", fields...)
			default:
				log.Info(ctx, "Request handled", fields...)
			}
			return nil
		},
	})
}
