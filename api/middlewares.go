package api

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
)

func (s *Server) statsdMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if s.sdClient == nil {
			return err
		}

		tags := []string{"path:" + c.Path(), "method:" + c.Request().Method}
		_ = s.sdClient.Incr("engine.http.requests", tags, 1)
		_ = s.sdClient.Timing("engine.http.response_time", time.Since(start), tags, 1)
		_ = s.sdClient.Incr("engine.http.status."+fmt.Sprint(c.Response().Status), tags, 1)

		return err
	}
}
