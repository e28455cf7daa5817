package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func TestSecurityHeadersWithConfig(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := SecurityHeadersWithConfig(SecurityConfig{})(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, handler(c))

	h := rec.Header()
	require.Equal(t, "DENY", h.Get("X-Frame-Options"))
	require.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	require.NotEmpty(t, h.Get("Strict-Transport-Security"))

	csp := h.Get("Content-Security-Policy")
	require.Contains(t, csp, "img-src 'self' data:")
	require.Contains(t, csp, "script-src 'self'")
	require.NotContains(t, csp, "unsafe-eval")
	require.NotContains(t, csp, "https:")
}

func TestBuildCSPConnectSources(t *testing.T) {
	csp := buildCSP(SecurityConfig{AllowedDomains: []string{"https://api.goodpass.id"}})
	require.Contains(t, csp, "connect-src 'self' https://api.goodpass.id")

	inline := buildCSP(SecurityConfig{AllowInlineJS: true})
	require.Contains(t, inline, "script-src 'self' 'unsafe-inline'")
}
