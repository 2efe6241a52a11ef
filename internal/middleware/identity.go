package middleware

import "github.com/labstack/echo/v4"

// clientID identifies the caller for rate limiting.  Authenticated callers
// are keyed by their token subject; everyone else shares "guest" and is told
// apart by IP only.
func clientID(c echo.Context) string {
	if s, ok := c.Get(CtxSubject).(string); ok && s != "" {
		return s
	}
	return "guest"
}
