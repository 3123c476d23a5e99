package observability

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns an echo handler serving the default Prometheus registry
// in its scrape format.
func Handler() echo.HandlerFunc {
	h := promhttp.Handler()
	return func(c echo.Context) error {
		h.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}

// Register mounts the metrics handler at path on e. An empty path defaults
// to "/metrics".
func Register(e *echo.Echo, path string) {
	if path == "" {
		path = "/metrics"
	}
	e.GET(path, Handler())
}
