package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/security"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func visitorRouter() *gin.Engine {
	r := gin.New()
	r.Use(VisitorMiddleware(false))
	r.GET("/", func(c *gin.Context) {
		id, _ := GetVisitorID(c)
		c.String(http.StatusOK, id)
	})
	return r
}

func TestVisitorMiddlewareIssuesCookie(t *testing.T) {
	w := httptest.NewRecorder()
	visitorRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	id := w.Body.String()
	if !security.IsULID(id) {
		t.Fatalf("visitor id %q is not a ULID", id)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != VisitorCookie || cookies[0].Value != id || !cookies[0].HttpOnly {
		t.Fatalf("cookies = %+v", cookies)
	}
}

func TestVisitorMiddlewareReusesCookieAndHeader(t *testing.T) {
	known := security.GenerateULID()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: VisitorCookie, Value: known})
	w := httptest.NewRecorder()
	visitorRouter().ServeHTTP(w, req)
	if w.Body.String() != known || len(w.Result().Cookies()) != 0 {
		t.Fatalf("cookie visitor: body=%q cookies=%v", w.Body.String(), w.Result().Cookies())
	}

	other := security.GenerateULID()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(VisitorHeader, other)
	req.AddCookie(&http.Cookie{Name: VisitorCookie, Value: known})
	w = httptest.NewRecorder()
	visitorRouter().ServeHTTP(w, req)
	if w.Body.String() != other {
		t.Fatalf("header should win, got %q", w.Body.String())
	}
}

func TestVisitorMiddlewareReplacesGarbage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(VisitorHeader, "'; drop table")
	w := httptest.NewRecorder()
	visitorRouter().ServeHTTP(w, req)
	if !security.IsULID(w.Body.String()) {
		t.Fatalf("visitor id = %q", w.Body.String())
	}
}

func TestAdminAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/admin", AdminAuthMiddleware("admin-secret", logging.NewDiscardLogger()), func(c *gin.Context) {
		c.String(http.StatusOK, AdminSubject(c))
	})
	unconfigured := gin.New()
	unconfigured.GET("/admin", AdminAuthMiddleware("", logging.NewDiscardLogger()), func(c *gin.Context) {})

	good, err := security.GenerateAdminToken("ops", time.Hour, "admin-secret")
	if err != nil {
		t.Fatal(err)
	}
	forged, _ := security.GenerateAdminToken("ops", time.Hour, "other")

	cases := []struct {
		name   string
		router *gin.Engine
		header string
		want   int
	}{
		{"valid", r, "Bearer " + good, http.StatusOK},
		{"missing", r, "", http.StatusUnauthorized},
		{"forged", r, "Bearer " + forged, http.StatusUnauthorized},
		{"unconfigured", unconfigured, "Bearer " + good, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			tc.router.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
			if tc.want == http.StatusOK && w.Body.String() != "ops" {
				t.Fatalf("subject = %q", w.Body.String())
			}
		})
	}
}
