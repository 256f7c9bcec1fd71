package middleware

import (
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
)

// Logger emits one structured line per request after the handler runs. The
// request id is the one Context() threaded through, so log lines correlate
// with engine logs for the same request.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			logger.WithContext(req.Context()).WithFields(map[string]any{
				"request_id": GetRequestID(req.Context()),
				"method":     req.Method,
				"route":      c.Path(),
				"uri":        req.RequestURI,
				"status":     res.Status,
				"remote_ip":  c.RealIP(),
				"user_agent": req.UserAgent(),
				"bytes_out":  res.Size,
				"latency_ms": time.Since(start).Milliseconds(),
			}).Info("Request handled")

			return nil
		}
	}
}
