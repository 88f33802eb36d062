package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func corsEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS())
	r.POST("/api/roadmaps", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestCORS(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://roadmaps.example.com, ")
	r := corsEngine()

	cases := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"vite dev preflight", http.MethodOptions, "http://localhost:5173", http.StatusNoContent, "http://localhost:5173"},
		{"loopback preflight", http.MethodOptions, "http://127.0.0.1:3000", http.StatusNoContent, "http://127.0.0.1:3000"},
		{"configured origin", http.MethodPost, "https://roadmaps.example.com", http.StatusOK, "https://roadmaps.example.com"},
		{"unknown origin", http.MethodPost, "https://evil.example.com", http.StatusForbidden, ""},
		{"same-origin call", http.MethodPost, "", http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/roadmaps", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status: want=%d got=%d", tc.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantAllow {
				t.Fatalf("allow-origin: want=%q got=%q", tc.wantAllow, got)
			}
		})
	}
}

func TestCORSExposesCorrelationHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/roadmaps", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	corsEngine().ServeHTTP(rec, req)

	exposed := rec.Header().Get("Access-Control-Expose-Headers")
	for _, h := range []string{HeaderRequestID, HeaderTraceID} {
		if !strings.Contains(strings.ToLower(exposed), strings.ToLower(h)) {
			t.Fatalf("expose headers %q missing %s", exposed, h)
		}
	}
}
