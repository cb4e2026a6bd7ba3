package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig lists what cross-origin callers may send and read.
type CORSConfig struct {
	AllowOrigins  []string
	AllowMethods  []string
	AllowHeaders  []string
	ExposeHeaders []string
	MaxAge        int // preflight cache in seconds, 0 leaves it unset
}

// CORS answers preflight requests and decorates responses for allowed origins.
// Requests from other origins pass through untouched.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	wildcard := slices.Contains(cfg.AllowOrigins, "*")
	static := map[string]string{}
	if v := strings.Join(cfg.AllowMethods, ", "); v != "" {
		static["Access-Control-Allow-Methods"] = v
	}
	if v := strings.Join(cfg.AllowHeaders, ", "); v != "" {
		static["Access-Control-Allow-Headers"] = v
	}
	if v := strings.Join(cfg.ExposeHeaders, ", "); v != "" {
		static["Access-Control-Expose-Headers"] = v
	}
	maxAge := ""
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(cfg.MaxAge)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			if len(cfg.AllowOrigins) > 0 && !wildcard && !slices.Contains(cfg.AllowOrigins, origin) {
				return next(c)
			}

			h := c.Response().Header()
			switch {
			case origin != "":
				h.Set(echo.HeaderAccessControlAllowOrigin, origin)
				h.Add(echo.HeaderVary, echo.HeaderOrigin)
			case wildcard:
				h.Set(echo.HeaderAccessControlAllowOrigin, "*")
			}
			for k, v := range static {
				h.Set(k, v)
			}

			if c.Request().Method != http.MethodOptions {
				return next(c)
			}
			if maxAge != "" {
				h.Set(echo.HeaderAccessControlMaxAge, maxAge)
			}
			return c.NoContent(http.StatusNoContent)
		}
	}
}
